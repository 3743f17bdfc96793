package fetcher_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/crawlkit/engine/internal/fetcher"
	"github.com/crawlkit/engine/internal/metadata"
	"github.com/crawlkit/engine/internal/resolver"
	"github.com/crawlkit/engine/pkg/failure"
	"github.com/crawlkit/engine/pkg/retry"
	"github.com/crawlkit/engine/pkg/timeutil"
)

// mockMetadataSink is a test double for metadata.MetadataSink
type mockMetadataSink struct {
	fetchEvents    []fetchEvent
	errorEvents    []errorEvent
	artifactEvents []string
}

type fetchEvent struct {
	fetchUrl    string
	httpStatus  int
	duration    time.Duration
	contentType string
	retryCount  int
	crawlDepth  int
}

type errorEvent struct {
	observedAt  time.Time
	packageName string
	action      string
	cause       metadata.ErrorCause
	details     string
	attrs       []metadata.Attribute
}

func (m *mockMetadataSink) RecordFetch(
	fetchUrl string,
	httpStatus int,
	duration time.Duration,
	contentType string,
	retryCount int,
	crawlDepth int,
) {
	m.fetchEvents = append(m.fetchEvents, fetchEvent{
		fetchUrl:    fetchUrl,
		httpStatus:  httpStatus,
		duration:    duration,
		contentType: contentType,
		retryCount:  retryCount,
		crawlDepth:  crawlDepth,
	})
}

func (m *mockMetadataSink) RecordAssetFetch(
	fetchUrl string,
	httpStatus int,
	duration time.Duration,
	retryCount int,
) {
	m.fetchEvents = append(m.fetchEvents, fetchEvent{
		fetchUrl:   fetchUrl,
		httpStatus: httpStatus,
		duration:   duration,
		retryCount: retryCount,
	})
}

func (m *mockMetadataSink) RecordError(
	observedAt time.Time,
	packageName string,
	action string,
	cause metadata.ErrorCause,
	details string,
	attrs []metadata.Attribute,
) {
	m.errorEvents = append(m.errorEvents, errorEvent{
		observedAt:  observedAt,
		packageName: packageName,
		action:      action,
		cause:       cause,
		details:     details,
		attrs:       attrs,
	})
}

func (m *mockMetadataSink) RecordArtifact(kind metadata.ArtifactKind, path string, attrs []metadata.Attribute) {
	m.artifactEvents = append(m.artifactEvents, path)
}

func (m *mockMetadataSink) RecordFinalCrawlStats(totalPages int, totalErrors int, totalAssets int, duration time.Duration) {
}

// createTestRetryParam creates retry parameters for testing
func createTestRetryParam(maxAttempts int) retry.RetryParam {
	return retry.NewRetryParam(
		100*time.Millisecond, // baseDelay
		50*time.Millisecond,  // jitter
		42,                   // randomSeed
		maxAttempts,          // maxAttempts
		timeutil.NewBackoffParam(
			100*time.Millisecond,
			2.0,
			1*time.Second,
		),
	)
}

// testResolver builds a FilteringResolver that admits the loopback
// addresses httptest.Server binds to.
func testResolver() resolver.Resolver {
	return resolver.New(resolver.Policy{LoopbackAllowed: true})
}

func newTestFetcher(sink metadata.MetadataSink, opts fetcher.Options) *fetcher.HttpFetcher {
	return fetcher.NewHttpFetcher(sink, testResolver(), opts)
}

func TestHttpFetcher_Fetch_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("<html><body>Hello World</body></html>"))
	}))
	defer server.Close()

	sink := &mockMetadataSink{}
	f := newTestFetcher(sink, fetcher.DefaultOptions)

	fetchUrl, _ := url.Parse(server.URL)
	fetchParam := fetcher.NewFetchParam(*fetchUrl, "test-user-agent")
	retryParam := createTestRetryParam(3)

	result, err := f.Fetch(context.Background(), 0, fetchParam, retryParam)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if result.Code() != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, result.Code())
	}
	if string(result.Body()) != "<html><body>Hello World</body></html>" {
		t.Errorf("unexpected body: %s", string(result.Body()))
	}
	if result.FinalURL().String() != fetchUrl.String() {
		t.Errorf("expected final URL %s, got %s", fetchUrl.String(), result.FinalURL().String())
	}

	if len(sink.fetchEvents) != 1 {
		t.Fatalf("expected 1 fetch event, got %d", len(sink.fetchEvents))
	}
	fetchEvt := sink.fetchEvents[0]
	if fetchEvt.fetchUrl != server.URL {
		t.Errorf("expected URL %s, got %s", server.URL, fetchEvt.fetchUrl)
	}
	if fetchEvt.retryCount != 1 {
		t.Errorf("expected retry count 1 (actual attempts), got %d", fetchEvt.retryCount)
	}
	if len(sink.errorEvents) != 0 {
		t.Errorf("expected 0 error events, got %d", len(sink.errorEvents))
	}
}

func TestHttpFetcher_Fetch_NonHTMLContentPassesThrough(t *testing.T) {
	// Content-type dispatch moved to the extractor; the fetcher no
	// longer rejects non-HTML bodies.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"message": "not html"}`))
	}))
	defer server.Close()

	sink := &mockMetadataSink{}
	f := newTestFetcher(sink, fetcher.DefaultOptions)

	fetchUrl, _ := url.Parse(server.URL)
	fetchParam := fetcher.NewFetchParam(*fetchUrl, "test-user-agent")
	retryParam := createTestRetryParam(3)

	result, err := f.Fetch(context.Background(), 1, fetchParam, retryParam)
	if err != nil {
		t.Fatalf("expected no error for non-HTML content, got: %v", err)
	}
	if result.ContentType() != "application/json" {
		t.Errorf("expected content type application/json, got %s", result.ContentType())
	}
}

func TestHttpFetcher_Fetch_HTTP404(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	sink := &mockMetadataSink{}
	f := newTestFetcher(sink, fetcher.DefaultOptions)

	fetchUrl, _ := url.Parse(server.URL)
	fetchParam := fetcher.NewFetchParam(*fetchUrl, "test-user-agent")
	retryParam := createTestRetryParam(3)

	_, err := f.Fetch(context.Background(), 0, fetchParam, retryParam)
	if err == nil {
		t.Fatal("expected error for 404, got nil")
	}

	var fetchErr *fetcher.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %T", err)
	}
	if fetchErr.IsRetryable() {
		t.Error("expected non-retryable error for 404")
	}
}

func TestHttpFetcher_Fetch_HTTP403(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	sink := &mockMetadataSink{}
	f := newTestFetcher(sink, fetcher.DefaultOptions)

	fetchUrl, _ := url.Parse(server.URL)
	fetchParam := fetcher.NewFetchParam(*fetchUrl, "test-user-agent")
	retryParam := createTestRetryParam(3)

	_, err := f.Fetch(context.Background(), 0, fetchParam, retryParam)
	if err == nil {
		t.Fatal("expected error for 403, got nil")
	}

	var fetchErr *fetcher.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %T", err)
	}
	if fetchErr.IsRetryable() {
		t.Error("expected non-retryable error for 403")
	}
}

func TestHttpFetcher_Fetch_HTTP500_Retryable(t *testing.T) {
	requestCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	sink := &mockMetadataSink{}
	f := newTestFetcher(sink, fetcher.DefaultOptions)

	fetchUrl, _ := url.Parse(server.URL)
	fetchParam := fetcher.NewFetchParam(*fetchUrl, "test-user-agent")
	retryParam := createTestRetryParam(2)

	_, err := f.Fetch(context.Background(), 0, fetchParam, retryParam)
	if err == nil {
		t.Fatal("expected error after retries exhausted, got nil")
	}
	if requestCount < 2 {
		t.Errorf("expected at least 2 requests due to retry, got %d", requestCount)
	}

	var retryErr *retry.RetryError
	if !errors.As(err, &retryErr) {
		t.Fatalf("expected RetryError after exhausted retries, got %T", err)
	}

	if len(sink.errorEvents) != 1 {
		t.Fatalf("expected 1 error event, got %d", len(sink.errorEvents))
	}
	if sink.errorEvents[0].cause != metadata.CauseRetryFailure {
		t.Errorf("expected cause CauseRetryFailure, got %v", sink.errorEvents[0].cause)
	}
}

func TestHttpFetcher_Fetch_HTTP429_Retryable(t *testing.T) {
	requestCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	sink := &mockMetadataSink{}
	f := newTestFetcher(sink, fetcher.DefaultOptions)

	fetchUrl, _ := url.Parse(server.URL)
	fetchParam := fetcher.NewFetchParam(*fetchUrl, "test-user-agent")
	retryParam := createTestRetryParam(2)

	_, err := f.Fetch(context.Background(), 0, fetchParam, retryParam)
	if err == nil {
		t.Fatal("expected error after retries exhausted, got nil")
	}
	if requestCount < 2 {
		t.Errorf("expected at least 2 requests due to retry, got %d", requestCount)
	}

	var retryErr *retry.RetryError
	if !errors.As(err, &retryErr) {
		t.Fatalf("expected RetryError after exhausted retries, got %T", err)
	}
}

func TestHttpFetcher_Fetch_SuccessAfterRetry(t *testing.T) {
	requestCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++
		if requestCount == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("<html>Success</html>"))
	}))
	defer server.Close()

	sink := &mockMetadataSink{}
	f := newTestFetcher(sink, fetcher.DefaultOptions)

	fetchUrl, _ := url.Parse(server.URL)
	fetchParam := fetcher.NewFetchParam(*fetchUrl, "test-user-agent")
	retryParam := createTestRetryParam(3)

	result, err := f.Fetch(context.Background(), 0, fetchParam, retryParam)
	if err != nil {
		t.Fatalf("expected success after retry, got error: %v", err)
	}
	if requestCount != 2 {
		t.Errorf("expected 2 requests (1 fail + 1 success), got %d", requestCount)
	}
	if result.Code() != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, result.Code())
	}

	if len(sink.fetchEvents) != 1 {
		t.Fatalf("expected 1 fetch event, got %d", len(sink.fetchEvents))
	}
	if sink.fetchEvents[0].retryCount != 2 {
		t.Errorf("expected retry count 2 (actual attempts), got %d", sink.fetchEvents[0].retryCount)
	}
	if len(sink.errorEvents) != 0 {
		t.Errorf("expected 0 error events, got %d", len(sink.errorEvents))
	}
}

func TestHttpFetcher_FetchResult_Accessors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("X-Custom-Header", "test-value")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("<html>Test</html>"))
	}))
	defer server.Close()

	sink := &mockMetadataSink{}
	f := newTestFetcher(sink, fetcher.DefaultOptions)

	fetchUrl, _ := url.Parse(server.URL)
	fetchParam := fetcher.NewFetchParam(*fetchUrl, "test-user-agent")
	retryParam := createTestRetryParam(3)

	result, err := f.Fetch(context.Background(), 0, fetchParam, retryParam)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resultURL := result.URL()
	if resultURL.String() != fetchUrl.String() {
		t.Errorf("expected URL %s, got %s", fetchUrl.String(), resultURL.String())
	}
	if result.Code() != http.StatusOK {
		t.Errorf("expected code %d, got %d", http.StatusOK, result.Code())
	}

	expectedSize := uint64(len("<html>Test</html>"))
	if result.SizeByte() != expectedSize {
		t.Errorf("expected size %d, got %d", expectedSize, result.SizeByte())
	}

	headers := result.Headers()
	if headers["Content-Type"] != "text/html; charset=utf-8" {
		t.Errorf("unexpected Content-Type header: %s", headers["Content-Type"])
	}
	if headers["X-Custom-Header"] != "test-value" {
		t.Errorf("unexpected X-Custom-Header: %s", headers["X-Custom-Header"])
	}
}

func TestHttpFetcher_Fetch_ResponseSizeExceeded(t *testing.T) {
	body := strings.Repeat("a", 2048)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(body))
	}))
	defer server.Close()

	sink := &mockMetadataSink{}
	opts := fetcher.DefaultOptions
	opts.MaxResponseSizeBytes = 1024
	f := newTestFetcher(sink, opts)

	fetchUrl, _ := url.Parse(server.URL)
	fetchParam := fetcher.NewFetchParam(*fetchUrl, "test-user-agent")
	retryParam := createTestRetryParam(1)

	_, err := f.Fetch(context.Background(), 0, fetchParam, retryParam)
	if err == nil {
		t.Fatal("expected error for oversized response, got nil")
	}

	var retryErr *retry.RetryError
	var fetchErr *fetcher.FetchError
	if errors.As(err, &retryErr) {
		if !strings.Contains(retryErr.Error(), fetcher.ErrCauseResponseSizeExceeded) {
			t.Errorf("expected retry error to reference %q, got %q", fetcher.ErrCauseResponseSizeExceeded, retryErr.Error())
		}
	} else if errors.As(err, &fetchErr) {
		if fetchErr.Cause != fetcher.ErrCauseResponseSizeExceeded {
			t.Errorf("expected cause %q, got %q", fetcher.ErrCauseResponseSizeExceeded, fetchErr.Cause)
		}
	} else {
		t.Fatalf("expected FetchError or RetryError, got %T", err)
	}
}

func TestHttpFetcher_Fetch_RedirectFinalURL(t *testing.T) {
	var targetServer *httptest.Server
	targetServer = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/start" {
			http.Redirect(w, r, targetServer.URL+"/final", http.StatusFound)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("<html>final</html>"))
	}))
	defer targetServer.Close()

	sink := &mockMetadataSink{}
	f := newTestFetcher(sink, fetcher.DefaultOptions)

	fetchUrl, _ := url.Parse(targetServer.URL + "/start")
	fetchParam := fetcher.NewFetchParam(*fetchUrl, "test-user-agent")
	retryParam := createTestRetryParam(1)

	result, err := f.Fetch(context.Background(), 0, fetchParam, retryParam)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasSuffix(result.FinalURL().String(), "/final") {
		t.Errorf("expected final URL to end in /final, got %s", result.FinalURL().String())
	}
}

func TestHttpFetcher_Fetch_RedirectDeniedAuthority(t *testing.T) {
	var originServer *httptest.Server
	originServer = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://other-host.invalid/page", http.StatusFound)
	}))
	defer originServer.Close()

	sink := &mockMetadataSink{}
	opts := fetcher.DefaultOptions
	opts.Redirect = fetcher.RedirectPolicy{
		MaxRedirects:     3,
		AuthorityAllowed: func(host string) bool { return false },
	}
	f := newTestFetcher(sink, opts)

	fetchUrl, _ := url.Parse(originServer.URL)
	fetchParam := fetcher.NewFetchParam(*fetchUrl, "test-user-agent")
	retryParam := createTestRetryParam(1)

	_, err := f.Fetch(context.Background(), 0, fetchParam, retryParam)
	if err == nil {
		t.Fatal("expected redirect-denied error, got nil")
	}
}

func TestFetchError_Classification(t *testing.T) {
	tests := []struct {
		name            string
		statusCode      int
		contentType     string
		expectRetryable bool
	}{
		{name: "500 Internal Server Error - retryable", statusCode: http.StatusInternalServerError, contentType: "text/html", expectRetryable: true},
		{name: "502 Bad Gateway - retryable", statusCode: http.StatusBadGateway, contentType: "text/html", expectRetryable: true},
		{name: "503 Service Unavailable - retryable", statusCode: http.StatusServiceUnavailable, contentType: "text/html", expectRetryable: true},
		{name: "400 Bad Request - not retryable", statusCode: http.StatusBadRequest, contentType: "text/html", expectRetryable: false},
		{name: "401 Unauthorized - not retryable", statusCode: http.StatusUnauthorized, contentType: "text/html", expectRetryable: false},
		{name: "403 Forbidden - not retryable", statusCode: http.StatusForbidden, contentType: "text/html", expectRetryable: false},
		{name: "404 Not Found - not retryable", statusCode: http.StatusNotFound, contentType: "text/html", expectRetryable: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			sink := &mockMetadataSink{}
			f := newTestFetcher(sink, fetcher.DefaultOptions)

			fetchUrl, _ := url.Parse(server.URL)
			fetchParam := fetcher.NewFetchParam(*fetchUrl, "test-user-agent")
			retryParam := createTestRetryParam(1)

			_, err := f.Fetch(context.Background(), 0, fetchParam, retryParam)
			if err == nil {
				t.Fatal("expected error")
			}

			var fetchErr *fetcher.FetchError
			if errors.As(err, &fetchErr) {
				if fetchErr.IsRetryable() != tt.expectRetryable {
					t.Errorf("expected retryable=%v, got retryable=%v", tt.expectRetryable, fetchErr.IsRetryable())
				}
			}
		})
	}
}

func TestHttpFetcher_MetadataSinkInterface(t *testing.T) {
	var _ metadata.MetadataSink = &mockMetadataSink{}
}

func TestHttpFetcher_FetchError_Severity(t *testing.T) {
	err := &fetcher.FetchError{
		Message:   "test error",
		Retryable: true,
		Cause:     fetcher.ErrCauseNetworkFailure,
	}

	var classifiedErr failure.ClassifiedError = err
	if classifiedErr.Severity() != failure.SeverityRecoverable {
		t.Errorf("expected SeverityRecoverable for retryable error, got %d", classifiedErr.Severity())
	}

	tlsErr := &fetcher.FetchError{
		Message:   "test error",
		Retryable: false,
		Cause:     fetcher.ErrCauseTlsError,
	}
	classifiedErr = tlsErr
	if classifiedErr.Severity() != failure.SeverityFatal {
		t.Errorf("expected SeverityFatal for a TLS error, got %d", classifiedErr.Severity())
	}

	// Severity is keyed off Cause, not Retryable: every non-retryable
	// cause other than ErrCauseTlsError is still transient per spec.md
	// §7 ("all transient except TlsError").
	nonRetryableNonTLSCauses := []fetcher.FetchErrorCause{
		fetcher.ErrCauseRedirectLimitExceeded,
		fetcher.ErrCauseResponseSizeExceeded,
		fetcher.ErrCauseRequestPageForbidden,
		fetcher.ErrCauseInvalidHost,
		fetcher.ErrCauseRepeated403,
	}
	for _, cause := range nonRetryableNonTLSCauses {
		nonRetryableErr := &fetcher.FetchError{
			Message:   "test error",
			Retryable: false,
			Cause:     cause,
		}
		classifiedErr = nonRetryableErr
		if classifiedErr.Severity() != failure.SeverityRecoverable {
			t.Errorf("expected SeverityRecoverable for non-retryable cause %q (only TlsError is fatal), got %d", cause, classifiedErr.Severity())
		}
	}
}

func TestHttpFetcher_Fetch_ReadResponseBodyError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Fatal("response writer does not support hijacking")
		}
		conn, bufrw, err := hj.Hijack()
		if err != nil {
			t.Fatal("hijack failed:", err)
		}
		defer conn.Close()

		headers := "HTTP/1.1 200 OK\r\n" +
			"Content-Type: text/html; charset=utf-8\r\n" +
			"Content-Length: 100\r\n" +
			"\r\n"
		if _, err := bufrw.WriteString(headers); err != nil {
			t.Fatal("write headers failed:", err)
		}
		if _, err := bufrw.WriteString("partial"); err != nil {
			t.Fatal("write body failed:", err)
		}
		bufrw.Flush()
		conn.Close()
	}))
	defer server.Close()

	sink := &mockMetadataSink{}
	f := newTestFetcher(sink, fetcher.DefaultOptions)

	fetchUrl, _ := url.Parse(server.URL)
	fetchParam := fetcher.NewFetchParam(*fetchUrl, "test-user-agent")
	retryParam := createTestRetryParam(1)

	_, err := f.Fetch(context.Background(), 0, fetchParam, retryParam)
	if err == nil {
		t.Fatal("expected error for read response body failure, got nil")
	}

	var retryErr *retry.RetryError
	if !errors.As(err, &retryErr) {
		t.Fatalf("expected RetryError, got %T", err)
	}
	if !strings.Contains(retryErr.Error(), fetcher.ErrCauseReadResponseBodyError) {
		t.Errorf("expected error message to contain cause %q, got %q", fetcher.ErrCauseReadResponseBodyError, retryErr.Error())
	}

	if len(sink.fetchEvents) != 1 {
		t.Fatalf("expected 1 fetch event, got %d", len(sink.fetchEvents))
	}
	if len(sink.errorEvents) != 1 {
		t.Fatalf("expected 1 error event, got %d", len(sink.errorEvents))
	}
	if sink.errorEvents[0].cause != metadata.CauseRetryFailure {
		t.Errorf("expected cause CauseRetryFailure, got %v", sink.errorEvents[0].cause)
	}
}

func (m *mockMetadataSink) RecordCrawlStart(crawlID string, seedCount int) {}
func (m *mockMetadataSink) RecordDiscover(discoveredURL string, discoveredVia string, depth int, refererURL string) {
}
func (m *mockMetadataSink) RecordDrop(droppedURL string, reason string, depth int) {}
func (m *mockMetadataSink) RecordRobotsFetched(host string, hadRobotsFile bool, crawlDelay time.Duration) {
}

func (m *mockMetadataSink) RecordCrawlEnd(reason string, duration time.Duration) {}
