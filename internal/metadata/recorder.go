package metadata

import (
	"encoding/json"
	"io"
	"strconv"
	"sync"
	"time"
)

/*
Metadata Collected
- Fetch timestamps
- HTTP status codes
- Content hashes
- Crawl depth

Logging Goals
- Debuggable crawl behavior
- Post-run auditability
- Failure diagnostics

Structured logging is preferred.

Allowed:
- Primitive values
- Timestamps
- URLs (as values, not objects with behavior)
- Hashes
- Status codes
- Durations
- Identifiers (page ID, crawl ID)
*/

// MetadataSink is the write side of the crawl's observability surface.
// Every package that performs I/O (fetch, robots, assets, storage, ...)
// is handed one of these and never reaches for a logger directly; it
// records facts, and the sink decides how (and whether) to emit them.
//
// Implementations must not block the caller for long: Recorder turns
// each call into an Event and hands it to an EventSink, which is free to
// buffer or drop under backpressure per its own policy.
type MetadataSink interface {
	RecordFetch(fetchURL string, httpStatus int, duration time.Duration, contentType string, retryCount int, crawlDepth int)
	RecordAssetFetch(fetchURL string, httpStatus int, duration time.Duration, retryCount int)
	RecordError(observedAt time.Time, packageName string, action string, cause ErrorCause, errorString string, attrs []Attribute)
	RecordArtifact(kind ArtifactKind, path string, attrs []Attribute)
	RecordFinalCrawlStats(totalPages int, totalErrors int, totalAssets int, duration time.Duration)
	RecordCrawlStart(crawlID string, seedCount int)
	RecordCrawlEnd(reason string, duration time.Duration)
	RecordDiscover(discoveredURL string, discoveredVia string, depth int, refererURL string)
	RecordDrop(droppedURL string, reason string, depth int)
	RecordRobotsFetched(host string, hadRobotsFile bool, crawlDelay time.Duration)
}

// EventKind names the lifecycle moments a crawl emits.
type EventKind string

const (
	EventCrawlStart    EventKind = "crawl_start"
	EventCrawlEnd      EventKind = "crawl_end"
	EventURLFetchStart EventKind = "url_fetch_start"
	EventURLFetchEnd   EventKind = "url_fetch_end"
	EventAssetFetch    EventKind = "asset_fetch"
	EventURLDiscover   EventKind = "url_discover"
	EventURLDrop       EventKind = "url_drop"
	EventRobotsFetched EventKind = "robots_fetched"
	EventArtifact      EventKind = "artifact_written"
	EventError         EventKind = "error"
	EventStatsSnapshot EventKind = "stats_snapshot"
)

// Event is the single wire shape every MetadataSink call is translated
// into. It is deliberately flat so it serializes to one JSON line.
type Event struct {
	Kind       EventKind   `json:"kind"`
	Time       time.Time   `json:"time"`
	Package    string      `json:"package,omitempty"`
	Action     string      `json:"action,omitempty"`
	URL        string      `json:"url,omitempty"`
	HTTPStatus int         `json:"http_status,omitempty"`
	Duration   string      `json:"duration,omitempty"`
	RetryCount int         `json:"retry_count,omitempty"`
	CrawlDepth int         `json:"crawl_depth,omitempty"`
	Cause      ErrorCause  `json:"cause,omitempty"`
	Message    string      `json:"message,omitempty"`
	Attrs      []Attribute `json:"attrs,omitempty"`
}

// EventSink is the read-out of the crawl's observability surface: one
// place responsible for turning Events into bytes on disk/stdout/wire.
type EventSink interface {
	EmitEvent(Event)
}

// JSONLineEventSink writes one JSON object per line to w. All writes are
// funneled through a single goroutine, matching the "serialized single
// writer" requirement so concurrent RecordXxx calls never interleave
// partial lines.
type JSONLineEventSink struct {
	events chan Event
	done   chan struct{}
}

// NewJSONLineEventSink starts the writer goroutine. Close must be called
// to flush and stop it.
func NewJSONLineEventSink(w io.Writer) *JSONLineEventSink {
	s := &JSONLineEventSink{
		events: make(chan Event, 256),
		done:   make(chan struct{}),
	}
	enc := json.NewEncoder(w)
	go func() {
		defer close(s.done)
		for ev := range s.events {
			// A malformed event must not take down the writer goroutine;
			// logging is best-effort and must never affect the crawl.
			_ = enc.Encode(ev)
		}
	}()
	return s
}

func (s *JSONLineEventSink) EmitEvent(ev Event) {
	select {
	case s.events <- ev:
	default:
		// Sink is saturated; drop rather than block the caller. Events
		// are observability, not control flow, so this is safe.
	}
}

// Close stops accepting events and waits for the writer goroutine to
// drain the channel.
func (s *JSONLineEventSink) Close() {
	close(s.events)
	<-s.done
}

// NopEventSink discards every event. Useful for dry runs and tests that
// don't care about observability output.
type NopEventSink struct{}

func (NopEventSink) EmitEvent(Event) {}

// NoopSink is a MetadataSink that discards every call. It exists so test
// doubles can embed it and override only the methods they care about,
// rather than having to implement the full interface by hand.
type NoopSink struct{}

func (NoopSink) RecordFetch(fetchURL string, httpStatus int, duration time.Duration, contentType string, retryCount int, crawlDepth int) {
}
func (NoopSink) RecordAssetFetch(fetchURL string, httpStatus int, duration time.Duration, retryCount int) {
}
func (NoopSink) RecordError(observedAt time.Time, packageName string, action string, cause ErrorCause, errorString string, attrs []Attribute) {
}
func (NoopSink) RecordArtifact(kind ArtifactKind, path string, attrs []Attribute) {}
func (NoopSink) RecordFinalCrawlStats(totalPages int, totalErrors int, totalAssets int, duration time.Duration) {
}
func (NoopSink) RecordCrawlStart(crawlID string, seedCount int) {}
func (NoopSink) RecordCrawlEnd(reason string, duration time.Duration) {}
func (NoopSink) RecordDiscover(discoveredURL string, discoveredVia string, depth int, refererURL string) {
}
func (NoopSink) RecordDrop(droppedURL string, reason string, depth int)                        {}
func (NoopSink) RecordRobotsFetched(host string, hadRobotsFile bool, crawlDelay time.Duration) {}

var _ MetadataSink = NoopSink{}

// Recorder is the canonical MetadataSink: it has no opinions about where
// events end up, it just shapes each RecordXxx call into an Event and
// forwards it to an EventSink.
type Recorder struct {
	mu   sync.Mutex
	sink EventSink
}

// NewRecorder builds a Recorder that forwards to sink. A nil sink is
// replaced by NopEventSink so callers never need a nil check.
func NewRecorder(sink EventSink) *Recorder {
	if sink == nil {
		sink = NopEventSink{}
	}
	return &Recorder{sink: sink}
}

func (r *Recorder) emit(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sink.EmitEvent(ev)
}

func (r *Recorder) RecordFetch(fetchURL string, httpStatus int, duration time.Duration, contentType string, retryCount int, crawlDepth int) {
	r.emit(Event{
		Kind:       EventURLFetchEnd,
		Time:       time.Now(),
		URL:        fetchURL,
		HTTPStatus: httpStatus,
		Duration:   duration.String(),
		RetryCount: retryCount,
		CrawlDepth: crawlDepth,
		Attrs: []Attribute{
			NewAttr(AttrField, contentType),
		},
	})
}

func (r *Recorder) RecordAssetFetch(fetchURL string, httpStatus int, duration time.Duration, retryCount int) {
	r.emit(Event{
		Kind:       EventAssetFetch,
		Time:       time.Now(),
		URL:        fetchURL,
		HTTPStatus: httpStatus,
		Duration:   duration.String(),
		RetryCount: retryCount,
	})
}

func (r *Recorder) RecordError(observedAt time.Time, packageName string, action string, cause ErrorCause, errorString string, attrs []Attribute) {
	r.emit(Event{
		Kind:    EventError,
		Time:    observedAt,
		Package: packageName,
		Action:  action,
		Cause:   cause,
		Message: errorString,
		Attrs:   attrs,
	})
}

func (r *Recorder) RecordArtifact(kind ArtifactKind, path string, attrs []Attribute) {
	r.emit(Event{
		Kind:    EventArtifact,
		Time:    time.Now(),
		Action:  kind.String(),
		Message: path,
		Attrs:   attrs,
	})
}

func (r *Recorder) RecordFinalCrawlStats(totalPages int, totalErrors int, totalAssets int, duration time.Duration) {
	r.emit(Event{
		Kind:     EventStatsSnapshot,
		Time:     time.Now(),
		Duration: duration.String(),
		Attrs: []Attribute{
			NewAttr(AttributeKey("total_pages"), strconv.Itoa(totalPages)),
			NewAttr(AttributeKey("total_errors"), strconv.Itoa(totalErrors)),
			NewAttr(AttributeKey("total_assets"), strconv.Itoa(totalAssets)),
		},
	})
}

func (r *Recorder) RecordCrawlStart(crawlID string, seedCount int) {
	r.emit(Event{
		Kind: EventCrawlStart,
		Time: time.Now(),
		Attrs: []Attribute{
			NewAttr(AttributeKey("crawl_id"), crawlID),
			NewAttr(AttributeKey("seed_count"), strconv.Itoa(seedCount)),
		},
	})
}

func (r *Recorder) RecordCrawlEnd(reason string, duration time.Duration) {
	r.emit(Event{
		Kind:     EventCrawlEnd,
		Time:     time.Now(),
		Duration: duration.String(),
		Message:  reason,
	})
}

func (r *Recorder) RecordDiscover(discoveredURL string, discoveredVia string, depth int, refererURL string) {
	r.emit(Event{
		Kind:       EventURLDiscover,
		Time:       time.Now(),
		URL:        discoveredURL,
		CrawlDepth: depth,
		Attrs: []Attribute{
			NewAttr(AttributeKey("discovered_via"), discoveredVia),
			NewAttr(AttrURL, refererURL),
		},
	})
}

func (r *Recorder) RecordDrop(droppedURL string, reason string, depth int) {
	r.emit(Event{
		Kind:       EventURLDrop,
		Time:       time.Now(),
		URL:        droppedURL,
		CrawlDepth: depth,
		Message:    reason,
	})
}

func (r *Recorder) RecordRobotsFetched(host string, hadRobotsFile bool, crawlDelay time.Duration) {
	r.emit(Event{
		Kind: EventRobotsFetched,
		Time: time.Now(),
		Attrs: []Attribute{
			NewAttr(AttrHost, host),
			NewAttr(AttributeKey("had_robots_file"), strconv.FormatBool(hadRobotsFile)),
			NewAttr(AttributeKey("crawl_delay"), crawlDelay.String()),
		},
	})
}
