package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/crawlkit/engine/internal/metadata"
	"github.com/crawlkit/engine/internal/resolver"
	"github.com/crawlkit/engine/pkg/failure"
	"github.com/crawlkit/engine/pkg/retry"
)

/*
Responsibilities

- Perform HTTP requests through a resolver-backed transport
- Apply headers, timeouts, TLS, and proxy policy
- Follow redirects within policy, recording the final URL
- Abort a response that exceeds the configured size cap
- Optionally HEAD pre-flight before a GET
- Classify responses

The fetcher never parses content; it only returns bytes and metadata.
Dispatch on Content-Type is the extractor's job.
*/

// HttpFetcher is the content-type-agnostic HTTP client wrapper. It
// dials exclusively through the resolver it was built with, so DNS
// filtering (§4.2-equivalent loopback/private-network denial) applies
// to every request it ever makes.
type HttpFetcher struct {
	metadataSink metadata.MetadataSink
	httpClient   *http.Client
	options      Options
}

// NewHttpFetcher builds an HttpFetcher whose transport dials through
// res and enforces opts.
func NewHttpFetcher(metadataSink metadata.MetadataSink, res resolver.Resolver, opts Options) *HttpFetcher {
	transport := buildTransport(res, opts)
	client := &http.Client{
		Transport:     transport,
		Timeout:       opts.Timeouts.RequestTotal,
		CheckRedirect: buildCheckRedirect(opts.Redirect),
	}
	return &HttpFetcher{
		metadataSink: metadataSink,
		httpClient:   client,
		options:      opts,
	}
}

// Init satisfies the Fetcher interface for callers that construct an
// HttpFetcher before a transport is available (tests substitute their
// own client this way).
func (h *HttpFetcher) Init(httpClient *http.Client) {
	h.httpClient = httpClient
}

func (h *HttpFetcher) Fetch(
	ctx context.Context,
	crawlDepth int,
	fetchParam FetchParam,
	retryParam retry.RetryParam,
) (FetchResult, failure.ClassifiedError) {
	callerMethod := "HttpFetcher.Fetch"
	startTime := time.Now()

	result, attempts, err := h.fetchWithRetry(ctx, fetchParam, retryParam)

	duration := time.Since(startTime)

	var statusCode int
	var contentType string
	var retryCount int

	if err != nil {
		var retryErr *retry.RetryError
		if errors.As(err, &retryErr) {
			retryCount = retryParam.MaxAttempts
		}
	} else {
		statusCode = result.Code()
		contentType = result.ContentType()
		retryCount = attempts
	}

	h.metadataSink.RecordFetch(
		fetchParam.fetchUrl.String(),
		statusCode,
		duration,
		contentType,
		retryCount,
		crawlDepth,
	)

	if err != nil {
		var retryErr *retry.RetryError
		if errors.As(err, &retryErr) {
			h.recordRetryError(callerMethod, fetchParam.fetchUrl, err)
		} else {
			h.recordFetchError(callerMethod, fetchParam.fetchUrl, err)
		}
		return FetchResult{}, err
	}

	return result, nil
}

func (h *HttpFetcher) recordFetchError(callerMethod string, fetchUrl url.URL, err failure.ClassifiedError) {
	var fetchError *FetchError
	if errors.As(err, &fetchError) {
		h.metadataSink.RecordError(
			time.Now(),
			"fetcher",
			callerMethod,
			mapFetchErrorToMetadataCause(fetchError),
			err.Error(),
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrURL, fetchUrl.String()),
			},
		)
	}
}

func (h *HttpFetcher) recordRetryError(callerMethod string, fetchUrl url.URL, err failure.ClassifiedError) {
	var retryError *retry.RetryError
	if errors.As(err, &retryError) {
		h.metadataSink.RecordError(
			time.Now(),
			"fetcher",
			callerMethod,
			metadata.CauseRetryFailure,
			err.Error(),
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrMessage, retryError.Error()),
				metadata.NewAttr(metadata.AttrURL, fetchUrl.String()),
			},
		)
	}
}

func (h *HttpFetcher) fetchWithRetry(ctx context.Context, fetchParam FetchParam, retryParam retry.RetryParam) (FetchResult, int, failure.ClassifiedError) {
	fetchTask := func() (FetchResult, failure.ClassifiedError) {
		return h.performFetch(ctx, fetchParam.fetchUrl, fetchParam.userAgent)
	}

	result := retry.Retry(retryParam, fetchTask)
	if result.IsFailure() {
		return FetchResult{}, result.Attempts(), result.Err()
	}
	return result.Value(), result.Attempts(), nil
}

func (h *HttpFetcher) performFetch(ctx context.Context, fetchUrl url.URL, userAgent string) (FetchResult, failure.ClassifiedError) {
	if h.options.HeadPreflightEnabled {
		if ferr := h.headPreflight(ctx, fetchUrl, userAgent); ferr != nil {
			return FetchResult{}, ferr
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchUrl.String(), nil)
	if err != nil {
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("failed to create request: %v", err),
			Retryable: false,
			Cause:     ErrCauseNetworkFailure,
		}
	}

	headers := requestHeaders(userAgent, h.options.CompressionEnabled)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return FetchResult{}, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if ferr := classifyStatus(resp.StatusCode); ferr != nil {
		return FetchResult{}, ferr
	}

	body, sizeErr := readBodyWithCap(resp.Body, h.options.MaxResponseSizeBytes)
	if sizeErr != nil {
		return FetchResult{}, sizeErr
	}

	responseHeaders := make(map[string]string)
	for key, values := range resp.Header {
		if len(values) > 0 {
			responseHeaders[key] = values[0]
		}
	}

	finalURL := fetchUrl
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = *resp.Request.URL
	}

	result := FetchResult{
		url:       fetchUrl,
		finalURL:  finalURL,
		body:      body,
		fetchedAt: time.Now(),
		meta: ResponseMeta{
			statusCode:          resp.StatusCode,
			transferredSizeByte: uint64(len(body)),
			responseHeaders:     responseHeaders,
		},
	}

	return result, nil
}

// headPreflight issues a HEAD request and fails fast when the
// advertised Content-Length already exceeds the size cap, sparing a GET
// that would only be discarded. The Content-Type is not checked here: a
// response of any content type proceeds to the GET.
func (h *HttpFetcher) headPreflight(ctx context.Context, fetchUrl url.URL, userAgent string) failure.ClassifiedError {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, fetchUrl.String(), nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		// A HEAD failure is not conclusive; let the GET attempt speak.
		return nil
	}
	defer resp.Body.Close()

	if resp.ContentLength > 0 && h.options.MaxResponseSizeBytes > 0 && resp.ContentLength > h.options.MaxResponseSizeBytes {
		return &FetchError{
			Message:   fmt.Sprintf("content-length %d exceeds cap %d", resp.ContentLength, h.options.MaxResponseSizeBytes),
			Retryable: false,
			Cause:     ErrCauseResponseSizeExceeded,
		}
	}

	return nil
}

func classifyTransportError(err error) *FetchError {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if fe, ok := urlErr.Err.(*FetchError); ok {
			return fe
		}
		if urlErr.Timeout() {
			return &FetchError{Message: fmt.Sprintf("request timed out: %v", err), Retryable: true, Cause: ErrCauseTimeout}
		}
	}
	if fe, ok := err.(*FetchError); ok {
		return fe
	}
	return &FetchError{Message: fmt.Sprintf("request failed: %v", err), Retryable: true, Cause: ErrCauseNetworkFailure}
}

func classifyStatus(statusCode int) *FetchError {
	switch {
	case statusCode >= 500:
		return &FetchError{Message: fmt.Sprintf("server error: %d", statusCode), Retryable: true, Cause: ErrCauseRequest5xx}
	case statusCode == http.StatusTooManyRequests:
		return &FetchError{Message: "rate limited (429)", Retryable: true, Cause: ErrCauseRequestTooMany}
	case statusCode == http.StatusForbidden:
		return &FetchError{Message: "access forbidden (403)", Retryable: false, Cause: ErrCauseRequestPageForbidden}
	case statusCode >= 400 && statusCode < 500:
		return &FetchError{Message: fmt.Sprintf("client error: %d", statusCode), Retryable: false, Cause: ErrCauseRequestPageForbidden}
	case statusCode >= 300 && statusCode < 400:
		return &FetchError{Message: fmt.Sprintf("redirect error: %d", statusCode), Retryable: false, Cause: ErrCauseRedirectLimitExceeded}
	}
	return nil
}

// readBodyWithCap reads at most maxBytes+1 bytes, returning
// ErrCauseResponseSizeExceeded the moment the body runs past the cap
// rather than buffering the whole (possibly huge) response first. A
// zero or negative maxBytes means no cap.
func readBodyWithCap(r io.Reader, maxBytes int64) ([]byte, *FetchError) {
	if maxBytes <= 0 {
		body, err := io.ReadAll(r)
		if err != nil {
			return nil, &FetchError{Message: fmt.Sprintf("failed to read response body: %v", err), Retryable: true, Cause: ErrCauseReadResponseBodyError}
		}
		return body, nil
	}

	limited := io.LimitReader(r, maxBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, &FetchError{Message: fmt.Sprintf("failed to read response body: %v", err), Retryable: true, Cause: ErrCauseReadResponseBodyError}
	}
	if int64(len(body)) > maxBytes {
		return nil, &FetchError{
			Message:   fmt.Sprintf("response body exceeded %d byte cap", maxBytes),
			Retryable: false,
			Cause:     ErrCauseResponseSizeExceeded,
		}
	}
	return body, nil
}

func requestHeaders(userAgent string, compressionEnabled bool) map[string]string {
	headers := map[string]string{
		"User-Agent":      userAgent,
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.5",
		"DNT":             "1",
		"Connection":      "keep-alive",
	}
	if compressionEnabled {
		headers["Accept-Encoding"] = "gzip, deflate, br"
	}
	return headers
}
