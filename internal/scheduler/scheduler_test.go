package scheduler_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/crawlkit/engine/internal/config"
	"github.com/crawlkit/engine/internal/metadata"
	"github.com/crawlkit/engine/internal/scheduler"
)

func mustURL(t *testing.T, raw string) url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("invalid url %q: %v", raw, err)
	}
	return *u
}

// newTestServer serves a tiny linked page graph: "/" links to "/a" and
// "/b", both of which are leaves. Every response is plain HTML.
func newTestServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><h1>root</h1><a href="/a">a</a><a href="/b">b</a></body></html>`))
	})
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><h1>a</h1></body></html>`))
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><h1>b</h1></body></html>`))
	})
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	return httptest.NewServer(mux)
}

func newTestConfig(t *testing.T, seed url.URL) config.Config {
	cfg, err := config.WithDefault([]url.URL{seed}).
		WithThreadsPerCrawl(2).
		WithMaxDepth(3).
		WithSitemapDiscoveryDisabled(true).
		WithBaseDelay(0).
		WithJitter(0).
		Build()
	if err != nil {
		t.Fatalf("config build failed: %v", err)
	}
	return cfg
}

// TestExecuteCrawl_QueueDrained crawls a small, fully-linked graph to
// completion and expects the queue-drained termination trigger with
// every page visited exactly once.
func TestExecuteCrawl_QueueDrained(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	seed := mustURL(t, srv.URL+"/")
	cfg := newTestConfig(t, seed)

	sched, err := scheduler.NewScheduler(cfg, metadata.NoopSink{}, io.Discard)
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	summary, err := sched.ExecuteCrawl(ctx)
	if err != nil {
		t.Fatalf("ExecuteCrawl() error = %v", err)
	}

	if summary.Reason != scheduler.ReasonQueueDrained {
		t.Errorf("expected reason %q, got %q", scheduler.ReasonQueueDrained, summary.Reason)
	}
	if summary.PagesVisited != 3 {
		t.Errorf("expected 3 pages visited (/, /a, /b), got %d", summary.PagesVisited)
	}
	if summary.TotalErrors != 0 {
		t.Errorf("expected 0 errors, got %d", summary.TotalErrors)
	}
}

// TestExecuteCrawl_MaxUniqueURLCount stops the crawl once the unique-URL
// budget is hit, even though more links remain discoverable.
func TestExecuteCrawl_MaxUniqueURLCount(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	seed := mustURL(t, srv.URL+"/")
	cfg, err := config.WithDefault([]url.URL{seed}).
		WithThreadsPerCrawl(1).
		WithMaxDepth(3).
		WithSitemapDiscoveryDisabled(true).
		WithBaseDelay(0).
		WithJitter(0).
		WithMaxUniqueURLCount(1).
		Build()
	if err != nil {
		t.Fatalf("config build failed: %v", err)
	}

	sched, err := scheduler.NewScheduler(cfg, metadata.NoopSink{}, io.Discard)
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	summary, err := sched.ExecuteCrawl(ctx)
	if err != nil {
		t.Fatalf("ExecuteCrawl() error = %v", err)
	}

	if summary.Reason != scheduler.ReasonMaxUniqueURLCount {
		t.Errorf("expected reason %q, got %q", scheduler.ReasonMaxUniqueURLCount, summary.Reason)
	}
}

// TestExecuteCrawl_ExternalStop exercises Stop() as a termination
// trigger independent of any budget or timer.
func TestExecuteCrawl_ExternalStop(t *testing.T) {
	// A server that never responds keeps the single worker busy
	// indefinitely so the crawl only ends via Stop().
	block := make(chan struct{})
	defer close(block)
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		<-block
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	seed := mustURL(t, srv.URL+"/")
	cfg := newTestConfig(t, seed)

	sched, err := scheduler.NewScheduler(cfg, metadata.NoopSink{}, io.Discard)
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}

	go func() {
		time.Sleep(200 * time.Millisecond)
		sched.Stop()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	summary, err := sched.ExecuteCrawl(ctx)
	if err != nil {
		t.Fatalf("ExecuteCrawl() error = %v", err)
	}
	if summary.Reason != scheduler.ReasonExternalStop {
		t.Errorf("expected reason %q, got %q", scheduler.ReasonExternalStop, summary.Reason)
	}
}

// TestNewScheduler_InvalidRulesetRejected confirms a malformed
// per-domain URL filter surfaces as a scheduler construction error
// rather than a later panic or silent no-op.
func TestNewScheduler_InvalidRulesetRejected(t *testing.T) {
	seed := mustURL(t, "https://example.org/")
	cfg, err := config.WithDefault([]url.URL{seed}).
		WithDomainsExtractionRules(map[string]config.DomainExtractionRules{
			"example.org": {
				URLFilters: []config.URLFilterSpec{
					{Kind: "include", Pattern: "("},
				},
			},
		}).
		Build()
	if err != nil {
		t.Fatalf("config build failed: %v", err)
	}

	if _, err := scheduler.NewScheduler(cfg, metadata.NoopSink{}, io.Discard); err == nil {
		t.Error("expected NewScheduler() to reject an invalid url filter pattern, got nil error")
	}
}
