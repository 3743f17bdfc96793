package robots

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"

	"github.com/crawlkit/engine/internal/metadata"
	"github.com/crawlkit/engine/internal/resolver"
	"github.com/crawlkit/engine/internal/robots/cache"
	"github.com/crawlkit/engine/pkg/failure"
	"github.com/crawlkit/engine/pkg/retry"
	"github.com/crawlkit/engine/pkg/timeutil"
)

/*
CachedRobot Responsibilities
- Fetch robots.txt per host, once, caching rules for the process lifetime
- Parse and match using temoto/robotstxt, which implements the full
  Allow/Disallow/wildcard/crawl-delay grammar the teacher's hand-rolled
  line scanner only approximated
- Enforce allow/disallow before a URL enters the frontier; a URL is only
  ever admitted after Decide reports it allowed
- Coordinate concurrent first-fetches for the same host through
  singleflight, so N workers discovering the same host at once produce
  one robots.txt request, not N
- Retry a transient robots.txt fetch failure (5xx/429/timeout) twice with
  exponential backoff; a persistent failure falls back to an allow-all
  record rather than failing the crawl (spec.md §4.4 failure policy)
*/

// Robot is the per-crawl robots.txt authority the coordinator consults
// before admitting any URL to the frontier.
type Robot interface {
	Init(userAgent string, res resolver.Resolver)
	Decide(u url.URL) (Decision, error)
	SitemapURLs(authority url.URL) []string
}

var _ Robot = (*CachedRobot)(nil)

// robotsRetryParam bounds the 2-retry, exponential-backoff policy
// spec.md §4.4 requires for 5xx/timeout/DNS robots.txt failures.
var robotsRetryParam = retry.NewRetryParam(
	200*time.Millisecond,
	100*time.Millisecond,
	time.Now().UnixNano(),
	3, // 1 initial attempt + 2 retries
	timeutil.NewBackoffParam(200*time.Millisecond, 2.0, 2*time.Second),
)

// hostRecord is the parsed, host-scoped robots.txt state kept between
// Decide calls.
type hostRecord struct {
	data *robotstxt.RobotsData
	// hadRobotsFile is false when the host has no robots.txt at all
	// (4xx response, or a persistent 5xx/timeout fallback), which Decide
	// reports as EmptyRuleSet rather than running it through the matcher.
	hadRobotsFile bool
	// isFallback is true when hadRobotsFile is false because the fetch
	// failed rather than because the host genuinely has no robots.txt.
	isFallback bool
	sitemaps   []string
}

// robotsStore holds CachedRobot's mutable state behind a single pointer
// field so CachedRobot itself stays a comparable struct.
type robotsStore struct {
	mu      sync.Mutex
	records map[string]*hostRecord
	fetcher *RobotsFetcher
	group   singleflight.Group
}

// CachedRobot decides whether a URL may be crawled according to its
// host's robots.txt. The zero value is not usable; call Init or
// InitWithCache first.
type CachedRobot struct {
	userAgent    string
	metadataSink metadata.MetadataSink
	store        *robotsStore
}

// NewCachedRobot builds a CachedRobot that records fetch/parse failures
// to sink.
func NewCachedRobot(sink metadata.MetadataSink) CachedRobot {
	return CachedRobot{metadataSink: sink}
}

// Init configures the robot with a private in-memory cache.
func (r *CachedRobot) Init(userAgent string, res resolver.Resolver) {
	r.InitWithCache(userAgent, cache.NewMemoryCache(), res)
}

// InitWithCache configures the robot with a caller-supplied cache, e.g.
// one shared across hosts or robots instances. res is threaded down to
// the underlying RobotsFetcher so robots.txt fetches are DNS-filtered
// the same as page fetches.
func (r *CachedRobot) InitWithCache(userAgent string, c cache.Cache, res resolver.Resolver) {
	r.userAgent = userAgent
	r.store = &robotsStore{
		records: make(map[string]*hostRecord),
		fetcher: NewRobotsFetcher(r.metadataSink, userAgent, c, res),
	}
}

// Decide reports whether u may be crawled under the configured user
// agent's robots.txt rules, fetching and caching the host's robots.txt
// on first use.
func (r *CachedRobot) Decide(u url.URL) (Decision, error) {
	record, err := r.recordFor(u)
	if err != nil {
		return Decision{}, err
	}

	if !record.hadRobotsFile {
		return Decision{Url: u, Allowed: true, Reason: EmptyRuleSet}, nil
	}

	path := u.Path
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}

	group := record.data.FindGroup(r.userAgent)
	allowed := group.Test(path)

	reason := DisallowedByRobots
	if allowed {
		reason = AllowedByRobots
	}

	return Decision{
		Url:        u,
		Allowed:    allowed,
		Reason:     reason,
		CrawlDelay: group.CrawlDelay,
	}, nil
}

// SitemapURLs returns the sitemap URLs robots.txt advertised for
// authority's host, fetching the record first if necessary. A host
// whose robots.txt was missing, could not be fetched or parsed, or
// carried no Sitemap: directives returns nil.
func (r *CachedRobot) SitemapURLs(authority url.URL) []string {
	record, err := r.recordFor(authority)
	if err != nil || record == nil {
		return nil
	}
	return record.sitemaps
}

// recordFor returns the cached robots.txt record for u's host, fetching
// it (once, even under concurrent callers) if this is the first time
// the host has been seen.
func (r *CachedRobot) recordFor(u url.URL) (*hostRecord, error) {
	host := u.Host

	r.store.mu.Lock()
	record, ok := r.store.records[host]
	r.store.mu.Unlock()
	if ok {
		return record, nil
	}

	scheme := u.Scheme
	if scheme == "" {
		scheme = "https"
	}

	v, err, _ := r.store.group.Do(host, func() (interface{}, error) {
		rec := r.fetchAndParse(scheme, host)

		r.store.mu.Lock()
		r.store.records[host] = rec
		r.store.mu.Unlock()
		return rec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*hostRecord), nil
}

// fetchAndParse retrieves and parses host's robots.txt, retrying a
// transient failure up to robotsRetryParam.MaxAttempts times. It never
// returns an error: a 4xx response, a parse failure, or an exhausted
// retry budget all land on an allow-all record. A 4xx is recorded
// nowhere; a parse failure or an exhausted retry budget is recorded
// once through recordFallback, which goes through RecordError (the
// metadata sink has no separate warning-level event).
func (r *CachedRobot) fetchAndParse(scheme, host string) *hostRecord {
	fetchTask := func() (RobotsFetchResult, failure.ClassifiedError) {
		result, err := r.store.fetcher.Fetch(context.Background(), scheme, host)
		if err != nil {
			return RobotsFetchResult{}, err
		}
		return result, nil
	}

	outcome := retry.Retry(robotsRetryParam, fetchTask)
	if outcome.IsFailure() {
		r.recordFallback(host, outcome.Err())
		return &hostRecord{hadRobotsFile: false, isFallback: true}
	}

	result := outcome.Value()
	if result.HTTPStatus >= 400 {
		// 4xx: no robots.txt exists, allow everything. Not a failure.
		return &hostRecord{hadRobotsFile: false, isFallback: false}
	}

	data, parseErr := robotstxt.FromBytes([]byte(result.RawBody))
	if parseErr != nil {
		robotsErr := &RobotsError{
			Message:   parseErr.Error(),
			Retryable: false,
			Cause:     ErrCauseParseError,
		}
		r.recordFallback(host, robotsErr)
		return &hostRecord{hadRobotsFile: false, isFallback: true}
	}

	return &hostRecord{
		hadRobotsFile: true,
		data:          data,
		sitemaps:      data.Sitemaps,
	}
}

// recordFallback records the robots.txt failure that forced a fallback
// allow-all record. It is recorded through RecordError with cause
// CauseNetworkFailure, whatever the underlying failure (parse failures
// included), plus a message attribute naming the allow-all fallback.
// The failure is not returned, so the crawl goes on.
func (r *CachedRobot) recordFallback(host string, err failure.ClassifiedError) {
	if r.metadataSink == nil {
		return
	}
	r.metadataSink.RecordError(
		time.Now(),
		"robots",
		"CachedRobot.fetchAndParse.fallback",
		metadata.CauseNetworkFailure,
		err.Error(),
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrHost, host),
			metadata.NewAttr(metadata.AttrMessage, "falling back to allow-all robots record"),
		},
	)
}
