package sitemap

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/crawlkit/engine/internal/metadata"
	"github.com/crawlkit/engine/internal/resolver"
)

/*
Fetcher responsibilities
- GET a sitemap or sitemap-index document
- Transparently decode gzip, whether signalled by Content-Encoding or
  by the gzip magic bytes themselves (a static sitemap.xml.gz rarely
  carries Content-Encoding: gzip, it just is gzip)
- Hand the decoded stream to Parse, which knows nothing about HTTP
*/

// Fetcher retrieves sitemap documents over HTTP.
type Fetcher struct {
	httpClient   *http.Client
	userAgent    string
	metadataSink metadata.MetadataSink
	limits       Limits
}

// NewFetcher builds a Fetcher with a default 30s-timeout client and
// DefaultLimits. res is the same DNS-filtering resolver internal/fetcher
// dials page requests through — sitemap URLs (discovered via robots.txt
// or a seed) are attacker-influenced the same as any other URL.
func NewFetcher(sink metadata.MetadataSink, userAgent string, res resolver.Resolver) *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: resolver.NewTransport(res, 10*time.Second),
		},
		userAgent:    userAgent,
		metadataSink: sink,
		limits:       DefaultLimits,
	}
}

// NewFetcherWithClient builds a Fetcher with a caller-supplied client,
// for tests.
func NewFetcherWithClient(sink metadata.MetadataSink, userAgent string, client *http.Client) *Fetcher {
	return &Fetcher{
		httpClient:   client,
		userAgent:    userAgent,
		metadataSink: sink,
		limits:       DefaultLimits,
	}
}

// SetLimits overrides the per-document caps used by subsequent Fetch
// calls.
func (f *Fetcher) SetLimits(limits Limits) {
	f.limits = limits
}

// Fetch retrieves and parses the sitemap document at target. It does
// not follow a sitemap-index's child <sitemap> entries; the caller
// decides whether and how to recurse via ParseResult.ChildSitemaps.
func (f *Fetcher) Fetch(ctx context.Context, target url.URL) (ParseResult, *SitemapError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return ParseResult{}, f.fail(target, ErrCausePreFetchFailure, fmt.Sprintf("failed to create request: %v", err), false)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("Accept", "application/xml,text/xml,*/*")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return ParseResult{}, f.fail(target, ErrCauseHttpFetchFailure, fmt.Sprintf("failed to fetch sitemap: %v", err), true)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ParseResult{}, f.fail(
			target, ErrCauseHttpUnexpectedStatus,
			fmt.Sprintf("unexpected status %d for %s", resp.StatusCode, target.String()),
			resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests,
		)
	}

	reader, decodeErr := decodeBody(resp)
	if decodeErr != nil {
		return ParseResult{}, f.fail(target, ErrCauseMalformedXML, fmt.Sprintf("failed to decode sitemap body: %v", decodeErr), false)
	}

	result, parseErr := Parse(reader, target, f.limits)
	if parseErr != nil {
		f.recordError(target, parseErr)
		return result, parseErr
	}
	return result, nil
}

// decodeBody transparently gunzips resp.Body when either the
// Content-Encoding header or the leading gzip magic bytes say it is
// compressed.
func decodeBody(resp *http.Response) (io.Reader, error) {
	br := bufio.NewReader(resp.Body)

	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		return gzip.NewReader(br)
	}

	peek, err := br.Peek(2)
	if err == nil && len(peek) == 2 && peek[0] == 0x1f && peek[1] == 0x8b {
		return gzip.NewReader(br)
	}

	return br, nil
}

func (f *Fetcher) fail(target url.URL, cause SitemapErrorCause, message string, retryable bool) *SitemapError {
	err := &SitemapError{Message: message, Cause: cause, Retryable: retryable}
	f.recordError(target, err)
	return err
}

func (f *Fetcher) recordError(target url.URL, err *SitemapError) {
	if f.metadataSink == nil {
		return
	}
	f.metadataSink.RecordError(
		time.Now(), "sitemap", "Fetcher.Fetch",
		mapSitemapErrorToMetadataCause(err), err.Error(),
		[]metadata.Attribute{metadata.NewAttr(metadata.AttrURL, target.String())},
	)
}

func (f *Fetcher) UserAgent() string {
	return f.userAgent
}

func (f *Fetcher) HttpClient() *http.Client {
	return f.httpClient
}
