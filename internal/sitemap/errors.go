package sitemap

import (
	"fmt"

	"github.com/crawlkit/engine/internal/metadata"
	"github.com/crawlkit/engine/pkg/failure"
)

type SitemapErrorCause string

const (
	ErrCausePreFetchFailure      SitemapErrorCause = "failed before making fetch"
	ErrCauseHttpFetchFailure     SitemapErrorCause = "failed to fetch"
	ErrCauseHttpUnexpectedStatus SitemapErrorCause = "unexpected http status"
	ErrCauseMalformedXML         SitemapErrorCause = "malformed sitemap xml"
)

type SitemapError struct {
	Message   string
	Retryable bool
	Cause     SitemapErrorCause
}

func (e *SitemapError) Error() string {
	return fmt.Sprintf("sitemap error: %s", e.Cause)
}

func (e *SitemapError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *SitemapError) IsRetryable() bool {
	return e.Retryable
}

// mapSitemapErrorToMetadataCause maps sitemap-local error semantics to
// the canonical metadata.ErrorCause table. Observational only.
func mapSitemapErrorToMetadataCause(err *SitemapError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCausePreFetchFailure:
		return metadata.CauseUnknown
	case ErrCauseHttpFetchFailure:
		return metadata.CauseNetworkFailure
	case ErrCauseHttpUnexpectedStatus:
		return metadata.CauseNetworkFailure
	case ErrCauseMalformedXML:
		return metadata.CauseContentInvalid
	default:
		return metadata.CauseUnknown
	}
}
