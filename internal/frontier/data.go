package frontier

/*
 Frontier - manages crawl state & ordering
*/

import (
	"net/url"
	"time"
)

// CrawlAdmissionCandidate represents a URL that has already been
// admitted by the scheduler.
//
// Invariants:
// - Robots.txt checks have passed
// - Crawl scope and limits have been enforced
// - Frontier MUST treat this as an admitted URL
// - Frontier MUST NOT re-evaluate admission semantics
type CrawlAdmissionCandidate struct {
	// frontier MUST assume this URL is already admitted.
	targetURL url.URL

	// is it seed url or discovered during crawling?
	sourceContext SourceContext

	// additional information about the URL
	discoveryMetadata DiscoveryMetadata
}

func NewCrawlAdmissionCandidate(
	targetUrl url.URL,
	sourceContext SourceContext,
	discoveryMetadata DiscoveryMetadata,
) CrawlAdmissionCandidate {
	return CrawlAdmissionCandidate{
		targetURL:         targetUrl,
		sourceContext:     sourceContext,
		discoveryMetadata: discoveryMetadata,
	}
}

func (c *CrawlAdmissionCandidate) TargetURL() url.URL {
	return c.targetURL
}

func (c *CrawlAdmissionCandidate) SourceContext() SourceContext {
	return c.sourceContext
}

func (c *CrawlAdmissionCandidate) DiscoveryMetadata() DiscoveryMetadata {
	return c.discoveryMetadata
}

type SourceContext string

const (
	SourceSeed  = "Seed"
	SourceCrawl = "Crawl"
)

type DiscoveryMetadata struct {
	// the depth of the path relative to hostname where the url is found
	// hostname/root -> depth = 0
	depth         int
	delayOverride *time.Duration
	discoveredVia DiscoveredVia
	referer       *url.URL
}

func NewDiscoveryMetadata(
	depth int,
	delayOverride *time.Duration,
) DiscoveryMetadata {
	return DiscoveryMetadata{
		depth:         depth,
		delayOverride: delayOverride,
	}
}

// NewDiscoveryMetadataFull builds a DiscoveryMetadata carrying the full
// provenance spec.md's CrawlTask names: how the URL was discovered and,
// for anything but a seed, the page that linked to it.
func NewDiscoveryMetadataFull(
	depth int,
	delayOverride *time.Duration,
	discoveredVia DiscoveredVia,
	referer *url.URL,
) DiscoveryMetadata {
	return DiscoveryMetadata{
		depth:         depth,
		delayOverride: delayOverride,
		discoveredVia: discoveredVia,
		referer:       referer,
	}
}

func (d DiscoveryMetadata) Depth() int {
	return d.depth
}

func (d DiscoveryMetadata) DelayOverride() *time.Duration {
	return d.delayOverride
}

func (d DiscoveryMetadata) DiscoveredVia() DiscoveredVia {
	return d.discoveredVia
}

func (d DiscoveryMetadata) Referer() *url.URL {
	return d.referer
}

// DiscoveredVia is how a CrawlTask entered the frontier (spec.md §3).
type DiscoveredVia string

const (
	DiscoveredViaSeed           DiscoveredVia = "seed"
	DiscoveredViaSitemap        DiscoveredVia = "sitemap"
	DiscoveredViaHTMLLink       DiscoveredVia = "html-link"
	DiscoveredViaRobotsRedirect DiscoveredVia = "robots-redirect"
)

// CrawlTask is the frontier's unit of work: a URL at a given depth, with
// enough provenance (referer, discovery method) to explain why it was
// enqueued. Immutable once constructed, matching spec.md §3.
type CrawlTask struct {
	url           url.URL
	depth         int
	referer       *url.URL
	discoveredVia DiscoveredVia
}

// NewCrawlTask builds a CrawlTask. depth must be ≥ 1 per spec.md §3;
// referer is nil for seeds.
func NewCrawlTask(u url.URL, depth int, referer *url.URL, discoveredVia DiscoveredVia) CrawlTask {
	return CrawlTask{url: u, depth: depth, referer: referer, discoveredVia: discoveredVia}
}

func (t CrawlTask) URL() url.URL                    { return t.url }
func (t CrawlTask) Depth() int                       { return t.depth }
func (t CrawlTask) Referer() *url.URL                { return t.referer }
func (t CrawlTask) DiscoveredVia() DiscoveredVia      { return t.discoveredVia }

// EnqueueOutcome is the result of a Queue.Enqueue call (spec.md §4.3).
type EnqueueOutcome int

const (
	Enqueued EnqueueOutcome = iota
	Duplicate
	RejectedFull
)

func (o EnqueueOutcome) String() string {
	switch o {
	case Enqueued:
		return "enqueued"
	case Duplicate:
		return "duplicate"
	case RejectedFull:
		return "rejected_full"
	default:
		return "unknown"
	}
}
