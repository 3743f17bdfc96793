package scheduler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/crawlkit/engine/internal/config"
	"github.com/crawlkit/engine/internal/extractor"
	"github.com/crawlkit/engine/internal/fetcher"
	"github.com/crawlkit/engine/internal/frontier"
	"github.com/crawlkit/engine/internal/metadata"
	"github.com/crawlkit/engine/internal/resolver"
	"github.com/crawlkit/engine/internal/robots"
	"github.com/crawlkit/engine/internal/ruleset"
	"github.com/crawlkit/engine/internal/sitemap"
	"github.com/crawlkit/engine/internal/storage"
	"github.com/crawlkit/engine/pkg/failure"
	"github.com/crawlkit/engine/pkg/limiter"
	"github.com/crawlkit/engine/pkg/retry"
	"github.com/crawlkit/engine/pkg/timeutil"
	"github.com/crawlkit/engine/pkg/urlutil"
)

/*
Scheduler is the crawl coordinator of spec.md §4.8: the sole control-
plane authority of the crawl.

Determinism and admission guarantees:
  - Scheduler is the ONLY component allowed to decide whether a URL may
    enter the crawl frontier. All semantic admission checks (robots.txt,
    scope allowlist, depth, budgets) run inside admit before a
    CrawlAdmissionCandidate is ever constructed.
  - No other component may enqueue, reject, or reorder URLs; pipeline
    stages (fetcher, extractor, sitemap, storage) never see frontier
    types.
  - Metadata emission is observational only and never influences
    scheduling, retries, or crawl termination.
  - Per-task errors are recorded as results and never retried by the
    coordinator (spec.md §7); only the five termination triggers in
    ExecuteCrawl end the crawl early.
*/

// Scheduler coordinates one crawl end to end: seeding, the worker pool,
// discovery admission, and graceful termination.
type Scheduler struct {
	cfg            config.Config
	metadataSink   metadata.MetadataSink
	robot          robots.Robot
	frontier       *frontier.CrawlFrontier
	fetcher        fetcher.Fetcher
	extractor      extractor.DomExtractor
	sink           storage.Sink
	rules          *ruleset.Registry
	rateLimiter    limiter.RateLimiter
	sitemapFetcher *sitemap.Fetcher
	urlLimits      urlutil.Limits

	crawlID string
	state   int32 // CrawlState, accessed via atomic

	stopCh   chan struct{}
	stopOnce sync.Once

	activeWorkers   int32
	totalErrors     int64
	totalAssets     int64
	resultSeq       int64
	robotsAnnounced sync.Map // host -> struct{}
}

// NewScheduler wires every collaborator spec.md's component sections
// describe from cfg: the resolver-filtered fetcher, the robots
// authority, the frontier, the DOM extractor, the sitemap fetcher, the
// output sink, and the per-domain extraction ruleset. console is the
// writer an "output_sink: console" configuration writes results to
// (typically os.Stdout); it is unused for "file".
func NewScheduler(cfg config.Config, metadataSink metadata.MetadataSink, console io.Writer) (*Scheduler, error) {
	res := resolver.New(cfg.ResolverPolicy())
	httpFetcher := fetcher.NewHttpFetcher(metadataSink, res, cfg.FetchOptions())

	robot := robots.NewCachedRobot(metadataSink)
	robot.Init(cfg.UserAgent(), res)

	visited, err := frontier.NewVisitedSet(frontier.BackendName(cfg.URLQueueBackend()), uint(cfg.MaxUniqueURLCount()))
	if err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}
	front := frontier.NewCrawlFrontier()
	front.InitWithBackend(cfg, visited)
	front.SetMaxSize(cfg.URLQueueSizeLimit())

	extractParam := extractor.ExtractParam{
		LinkDensityThreshold: cfg.LinkDensityThreshold(),
		BodySpecificityBias:  cfg.BodySpecificityBias(),
	}
	domExtractor := extractor.NewDomExtractor(metadataSink, extractParam)

	sink, err := storage.NewSink(cfg.OutputSink(), cfg.OutputDir(), metadataSink, console)
	if err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}

	rules, err := buildRulesetRegistry(cfg.DomainsExtractionRules())
	if err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}

	rateLimiter := limiter.NewConcurrentRateLimiter()
	rateLimiter.SetBaseDelay(cfg.BaseDelay())
	rateLimiter.SetJitter(cfg.Jitter())
	rateLimiter.SetRandomSeed(cfg.RandomSeed())
	rateLimiter.SetBackoffParam(timeutil.NewBackoffParam(
		cfg.BackoffInitialDuration(),
		cfg.BackoffMultiplier(),
		cfg.BackoffMaxDuration(),
	))

	return &Scheduler{
		cfg:            cfg,
		metadataSink:   metadataSink,
		robot:          &robot,
		frontier:       front,
		fetcher:        httpFetcher,
		extractor:      domExtractor,
		sink:           sink,
		rules:          rules,
		rateLimiter:    rateLimiter,
		sitemapFetcher: sitemap.NewFetcher(metadataSink, cfg.UserAgent(), res),
		urlLimits: urlutil.Limits{
			MaxSegments: cfg.MaxURLSegments(),
			MaxParams:   cfg.MaxURLParams(),
			MaxLength:   cfg.MaxURLLength(),
		},
		stopCh: make(chan struct{}),
	}, nil
}

func buildRulesetRegistry(rules map[string]config.DomainExtractionRules) (*ruleset.Registry, error) {
	converted := make(map[string]ruleset.DomainRules, len(rules))
	for domain, r := range rules {
		filters := make([]ruleset.URLFilter, 0, len(r.URLFilters))
		for _, f := range r.URLFilters {
			filters = append(filters, ruleset.URLFilter{Kind: ruleset.FilterKind(f.Kind), Pattern: f.Pattern})
		}
		converted[domain] = ruleset.DomainRules{Domain: domain, URLFilters: filters, RawRules: r.Rules}
	}
	return ruleset.NewRegistry(converted)
}

// Stop signals the coordinator to begin Draining, matching spec.md
// §4.8's "external stop signal" termination trigger. Safe to call more
// than once or before ExecuteCrawl starts.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *Scheduler) setState(st CrawlState) {
	atomic.StoreInt32(&s.state, int32(st))
}

// State reports the coordinator's current lifecycle state.
func (s *Scheduler) State() CrawlState {
	return CrawlState(atomic.LoadInt32(&s.state))
}

// ExecuteCrawl runs one full crawl lifecycle: Seeding, Running,
// Draining, Terminated (spec.md §4.8). It returns once every worker has
// stopped (or the drain grace period elapsed) and the final stats
// snapshot has been recorded.
func (s *Scheduler) ExecuteCrawl(parentCtx context.Context) (CrawlSummary, error) {
	startTime := time.Now()
	s.setState(StateSeeding)

	s.crawlID = s.cfg.CrawlID()
	if s.crawlID == "" {
		s.crawlID = fmt.Sprintf("crawl-%d", startTime.UnixNano())
	}
	s.metadataSink.RecordCrawlStart(s.crawlID, len(s.cfg.SeedURLs()))

	workerCtx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	var reason TerminationReason
	var reasonOnce sync.Once
	terminate := func(r TerminationReason) {
		reasonOnce.Do(func() {
			reason = r
			s.setState(StateDraining)
			cancel()
		})
	}

	if maxDuration := s.cfg.MaxDuration(); maxDuration > 0 {
		timer := time.AfterFunc(maxDuration, func() { terminate(ReasonMaxDuration) })
		defer timer.Stop()
	}

	for _, seed := range s.cfg.SeedURLs() {
		s.admit(workerCtx, seed, frontier.SourceSeed, 1, nil, frontier.DiscoveredViaSeed)
	}

	if !s.cfg.SitemapDiscoveryDisabled() {
		s.seedSitemaps(workerCtx)
	}

	s.setState(StateRunning)

	group, groupCtx := errgroup.WithContext(workerCtx)
	workers := s.cfg.ThreadsPerCrawl()
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		group.Go(func() error {
			s.runWorker(groupCtx)
			return nil
		})
	}

	monitorDone := make(chan struct{})
	go s.monitor(workerCtx, startTime, terminate, monitorDone)

	<-workerCtx.Done()
	reasonOnce.Do(func() {
		reason = ReasonExternalStop
		s.setState(StateDraining)
	})
	<-monitorDone

	s.frontier.Close()

	waitDone := make(chan struct{})
	go func() {
		_ = group.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(workerDrainGrace):
	}

	s.setState(StateTerminated)
	duration := time.Since(startTime)

	summary := CrawlSummary{
		CrawlID:      s.crawlID,
		Reason:       reason,
		PagesVisited: s.frontier.VisitedCount(),
		TotalErrors:  int(atomic.LoadInt64(&s.totalErrors)),
		TotalAssets:  int(atomic.LoadInt64(&s.totalAssets)),
		Duration:     duration,
	}
	s.metadataSink.RecordFinalCrawlStats(summary.PagesVisited, summary.TotalErrors, summary.TotalAssets, duration)
	s.metadataSink.RecordCrawlEnd(string(reason), duration)
	return summary, nil
}

// monitor watches the three live termination triggers spec.md §4.8
// names beyond the max-duration timer and an external Stop(): the
// unique-URL budget, queue-empty-and-idle, and the stats_dump_interval
// snapshot cadence.
func (s *Scheduler) monitor(ctx context.Context, startTime time.Time, terminate func(TerminationReason), done chan<- struct{}) {
	defer close(done)

	idleTicker := time.NewTicker(200 * time.Millisecond)
	defer idleTicker.Stop()

	statsInterval := s.cfg.StatsDumpInterval()
	if statsInterval <= 0 {
		statsInterval = 30 * time.Second
	}
	statsTicker := time.NewTicker(statsInterval)
	defer statsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			terminate(ReasonExternalStop)
			return
		case <-idleTicker.C:
			if maxUnique := s.cfg.MaxUniqueURLCount(); maxUnique > 0 && s.frontier.VisitedCount() >= maxUnique {
				terminate(ReasonMaxUniqueURLCount)
				return
			}
			if s.frontier.Empty() && atomic.LoadInt32(&s.activeWorkers) == 0 {
				terminate(ReasonQueueDrained)
				return
			}
		case <-statsTicker.C:
			s.metadataSink.RecordFinalCrawlStats(
				s.frontier.VisitedCount(),
				int(atomic.LoadInt64(&s.totalErrors)),
				int(atomic.LoadInt64(&s.totalAssets)),
				time.Since(startTime),
			)
		}
	}
}

// runWorker is one of threads_per_crawl workers looping
// dequeue->robots-check->fetch->extract->emit->enqueue-children per
// spec.md §4.8. The robots check already happened at admission time
// (admit), so a dequeued task is always already allowed.
func (s *Scheduler) runWorker(ctx context.Context) {
	for {
		task, ok := s.frontier.DequeueWait()
		if !ok {
			return
		}
		atomic.AddInt32(&s.activeWorkers, 1)
		s.processTask(ctx, task)
		atomic.AddInt32(&s.activeWorkers, -1)

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (s *Scheduler) processTask(ctx context.Context, task frontier.CrawlTask) {
	host := task.URL().Host
	if err := s.rateLimiter.Wait(ctx, host); err != nil {
		return
	}

	startTime := time.Now()
	fetchParam := fetcher.NewFetchParam(task.URL(), s.cfg.UserAgent())
	fetchResult, ferr := s.fetcher.Fetch(ctx, task.Depth(), fetchParam, retryParamFromConfig(s.cfg))
	if ferr != nil {
		if shouldBackoff(ferr) {
			s.rateLimiter.Backoff(host)
		}
		s.writeResult(s.buildErrorResult(task, ferr, startTime))
		atomic.AddInt64(&s.totalErrors, 1)
		return
	}
	s.rateLimiter.MarkLastFetchAsNow(host)

	switch classifyContentType(fetchResult.ContentType(), s.cfg) {
	case extractor.ResultHTML:
		s.processHTML(ctx, task, fetchResult, startTime)
	case extractor.ResultSitemap:
		s.processSitemapFetch(ctx, task, fetchResult, startTime)
	case extractor.ResultContentExtractableFile:
		s.processContentExtractable(task, fetchResult, startTime)
	default:
		result := s.buildResult(task, fetchResult, extractor.ResultErrorUnsupportedMimeType, startTime)
		result.ErrorKind = "UnsupportedContentType"
		result.ErrorMessage = "unsupported content type: " + fetchResult.ContentType()
		s.writeResult(result)
		atomic.AddInt64(&s.totalErrors, 1)
	}
}

func (s *Scheduler) processHTML(ctx context.Context, task frontier.CrawlTask, fetchResult fetcher.FetchResult, startTime time.Time) {
	finalURL := fetchResult.FinalURL()

	extraction, eerr := s.extractor.Extract(finalURL, fetchResult.Body())
	if eerr != nil {
		s.writeResult(s.buildErrorResult(task, eerr, startTime))
		atomic.AddInt64(&s.totalErrors, 1)
		return
	}

	fields := extractor.ExtractFields(extraction.DocumentRoot, extraction.ContentNode, finalURL, s.cfg.FieldLimits())

	result := s.buildResult(task, fetchResult, extractor.ResultHTML, startTime)
	result.Title = fields.Title
	result.Body = fields.Body
	result.MetaKeywords = fields.MetaKeywords
	result.MetaDescription = fields.MetaDescription
	result.Headings = fields.Headings
	result.Links = fields.IndexedLinks
	s.writeResult(result)

	domainRules := s.rules.For(finalURL.Host)
	referer := finalURL
	for _, link := range fields.Links {
		if domainRules != nil && !domainRules.Matches(link) {
			continue
		}
		linkURL, err := url.Parse(link)
		if err != nil {
			continue
		}
		s.admit(ctx, *linkURL, frontier.SourceCrawl, task.Depth()+1, &referer, frontier.DiscoveredViaHTMLLink)
	}
}

// processSitemapFetch handles a sitemap document reached as an ordinary
// crawl task (e.g. a page linked to its own sitemap.xml), as opposed to
// seedSitemaps's one-time startup fan-out.
func (s *Scheduler) processSitemapFetch(ctx context.Context, task frontier.CrawlTask, fetchResult fetcher.FetchResult, startTime time.Time) {
	finalURL := fetchResult.FinalURL()
	parsed, perr := sitemap.Parse(bytes.NewReader(fetchResult.Body()), finalURL, sitemap.DefaultLimits)
	if perr != nil {
		s.writeResult(s.buildErrorResult(task, perr, startTime))
		atomic.AddInt64(&s.totalErrors, 1)
		return
	}

	s.writeResult(s.buildResult(task, fetchResult, extractor.ResultSitemap, startTime))

	// Sitemap entries (and child sitemaps) are depth=1 regardless of
	// where the sitemap itself was discovered (spec.md §4.7).
	for _, entry := range parsed.Entries {
		s.admit(ctx, entry.URL, frontier.SourceCrawl, 1, &finalURL, frontier.DiscoveredViaSitemap)
	}
	for _, child := range parsed.ChildSitemaps {
		s.admit(ctx, child, frontier.SourceCrawl, 1, &finalURL, frontier.DiscoveredViaSitemap)
	}
}

func (s *Scheduler) processContentExtractable(task frontier.CrawlTask, fetchResult fetcher.FetchResult, startTime time.Time) {
	limits := s.cfg.FieldLimits()
	body := fetchResult.Body()
	if limits.MaxBodySize > 0 && len(body) > limits.MaxBodySize {
		body = body[:limits.MaxBodySize]
	}
	result := s.buildResult(task, fetchResult, extractor.ResultContentExtractableFile, startTime)
	result.Body = string(body)
	s.writeResult(result)
	atomic.AddInt64(&s.totalAssets, 1)
}

// seedSitemaps fans out, once at crawl start, over configured
// sitemap_urls plus every seed authority's robots-advertised sitemaps.
// This is the one case where the coordinator recurses outside the
// normal worker pool: it is a bounded, startup-only fan-out, not an
// unbounded background process.
func (s *Scheduler) seedSitemaps(ctx context.Context) {
	urls := append([]url.URL{}, s.cfg.SitemapURLs()...)

	seenHost := map[string]bool{}
	for _, seed := range s.cfg.SeedURLs() {
		if seenHost[seed.Host] {
			continue
		}
		seenHost[seed.Host] = true
		for _, raw := range s.robot.SitemapURLs(seed) {
			if u, err := url.Parse(raw); err == nil {
				urls = append(urls, *u)
			}
		}
	}
	if len(urls) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, u := range urls {
		wg.Add(1)
		go func(target url.URL) {
			defer wg.Done()
			s.fetchAndSeedSitemap(ctx, target)
		}(u)
	}
	wg.Wait()
}

func (s *Scheduler) fetchAndSeedSitemap(ctx context.Context, target url.URL) {
	result, serr := s.sitemapFetcher.Fetch(ctx, target)
	if serr != nil {
		return // already recorded by sitemap.Fetcher
	}
	for _, entry := range result.Entries {
		s.admit(ctx, entry.URL, frontier.SourceCrawl, 1, &target, frontier.DiscoveredViaSitemap)
	}
	for _, child := range result.ChildSitemaps {
		s.fetchAndSeedSitemap(ctx, child)
	}
}

// admit is the sole admission choke point spec.md §4.8 requires: every
// path that wants a URL in the frontier (seeds, sitemap entries, HTML
// links) funnels through here, and only here is a
// CrawlAdmissionCandidate ever constructed or Submit ever called.
func (s *Scheduler) admit(
	ctx context.Context,
	target url.URL,
	source frontier.SourceContext,
	depth int,
	referer *url.URL,
	via frontier.DiscoveredVia,
) {
	if !s.authorityAllowed(target.Host) {
		s.metadataSink.RecordDrop(target.String(), "not_in_allowlist", depth)
		return
	}
	if maxDepth := s.cfg.MaxDepth(); maxDepth > 0 && depth > maxDepth {
		s.metadataSink.RecordDrop(target.String(), "depth_exceeded", depth)
		return
	}

	decision, err := s.robot.Decide(target)
	if err != nil {
		s.metadataSink.RecordError(time.Now(), "scheduler", "admit", metadata.CauseNetworkFailure, err.Error(), []metadata.Attribute{
			metadata.NewAttr(metadata.AttrURL, target.String()),
		})
		return
	}
	s.announceRobots(target.Host, decision)

	s.rateLimiter.ResetBackoff(target.Host)
	if decision.CrawlDelay > 0 {
		s.rateLimiter.SetCrawlDelay(target.Host, decision.CrawlDelay)
	}

	if !decision.Allowed {
		s.metadataSink.RecordDrop(target.String(), "robots_disallowed", depth)
		return
	}

	candidate := frontier.NewCrawlAdmissionCandidate(
		decision.Url,
		source,
		frontier.NewDiscoveryMetadataFull(depth, nil, via, referer),
	)

	switch s.frontier.Submit(candidate) {
	case frontier.Enqueued:
		refererStr := ""
		if referer != nil {
			refererStr = referer.String()
		}
		s.metadataSink.RecordDiscover(target.String(), string(via), depth, refererStr)
	case frontier.Duplicate:
		// Not emitted as a result or drop: spec.md §5 treats a repeat
		// submission as ordinary dedup, not a failure.
	case frontier.RejectedFull:
		reason := "queue_full"
		if maxPages := s.cfg.MaxPages(); maxPages > 0 && s.frontier.VisitedCount() >= maxPages {
			reason = "max_unique_url_count"
		}
		s.metadataSink.RecordDrop(target.String(), reason, depth)
	}
}

// announceRobots records a robots-fetched event the first time (and
// only the first time) this host's record is consulted, matching
// spec.md §5's "robots.txt is fetched at most once per authority".
func (s *Scheduler) announceRobots(host string, decision robots.Decision) {
	if _, already := s.robotsAnnounced.LoadOrStore(host, struct{}{}); already {
		return
	}
	hadRobotsFile := decision.Reason != robots.EmptyRuleSet
	s.metadataSink.RecordRobotsFetched(host, hadRobotsFile, decision.CrawlDelay)
}

func (s *Scheduler) authorityAllowed(host string) bool {
	allowed := s.cfg.AllowedHosts()
	if len(allowed) == 0 {
		return true
	}
	if _, ok := allowed[host]; ok {
		return true
	}
	for _, seed := range s.cfg.SeedURLs() {
		if seed.Host == host {
			return true
		}
	}
	return false
}

func (s *Scheduler) writeResult(result extractor.CrawlResult) {
	_ = s.sink.Write(result)
}

func (s *Scheduler) nextResultID() string {
	return fmt.Sprintf("%s-%d", s.crawlID, atomic.AddInt64(&s.resultSeq, 1))
}

func (s *Scheduler) buildResult(task frontier.CrawlTask, fetchResult fetcher.FetchResult, kind extractor.ResultKind, startTime time.Time) extractor.CrawlResult {
	now := time.Now()
	return extractor.CrawlResult{
		ID:            s.nextResultID(),
		URL:           task.URL().String(),
		StatusCode:    fetchResult.Code(),
		ContentType:   fetchResult.ContentType(),
		StartTime:     startTime,
		EndTime:       now,
		Duration:      now.Sub(startTime),
		Kind:          kind,
		Depth:         task.Depth(),
		DiscoveredVia: string(task.DiscoveredVia()),
	}
}

func (s *Scheduler) buildErrorResult(task frontier.CrawlTask, err failure.ClassifiedError, startTime time.Time) extractor.CrawlResult {
	now := time.Now()
	kind := extractor.ResultErrorTransient
	if err.Severity() == failure.SeverityFatal {
		kind = extractor.ResultErrorFatal
	}
	return extractor.CrawlResult{
		ID:            s.nextResultID(),
		URL:           task.URL().String(),
		StatusCode:    extractor.FatalErrorStatus,
		StartTime:     startTime,
		EndTime:       now,
		Duration:      now.Sub(startTime),
		Kind:          kind,
		Depth:         task.Depth(),
		DiscoveredVia: string(task.DiscoveredVia()),
		ErrorMessage:  err.Error(),
		ErrorKind:     fmt.Sprintf("%T", err),
	}
}

// classifyContentType dispatches a fetched response per spec.md §4.7:
// HTML, XML sitemap, a configured content-extractable passthrough, or
// unsupported.
func classifyContentType(contentType string, cfg config.Config) extractor.ResultKind {
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	switch ct {
	case "text/html", "application/xhtml+xml":
		return extractor.ResultHTML
	case "application/xml", "text/xml":
		return extractor.ResultSitemap
	}
	if cfg.ContentExtractionEnabled() {
		for _, mime := range cfg.ContentExtractionMimeTypes() {
			if strings.EqualFold(strings.TrimSpace(mime), ct) {
				return extractor.ResultContentExtractableFile
			}
		}
	}
	return extractor.ResultErrorUnsupportedMimeType
}

// shouldBackoff reports whether a fetch failure warrants the rate
// limiter's exponential backoff (repeated 429/5xx), matching spec.md
// §4.6's signal for politeness escalation.
func shouldBackoff(err failure.ClassifiedError) bool {
	fe, ok := err.(*fetcher.FetchError)
	if !ok {
		return false
	}
	return fe.Cause == fetcher.ErrCauseRequestTooMany || fe.Cause == fetcher.ErrCauseRequest5xx
}

func retryParamFromConfig(cfg config.Config) retry.RetryParam {
	return retry.NewRetryParam(
		cfg.BaseDelay(),
		cfg.Jitter(),
		cfg.RandomSeed(),
		cfg.MaxAttempt(),
		timeutil.NewBackoffParam(
			cfg.BackoffInitialDuration(),
			cfg.BackoffMultiplier(),
			cfg.BackoffMaxDuration(),
		),
	)
}
