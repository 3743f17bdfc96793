package urlutil

import (
	"fmt"

	"github.com/crawlkit/engine/pkg/failure"
)

type URLErrorCause string

const (
	ErrCauseUnparseable URLErrorCause = "unparseable url"
	ErrCauseTooComplex  URLErrorCause = "invalid url - too complex"
	ErrCauseBadScheme   URLErrorCause = "unsupported scheme"
)

type URLError struct {
	Message string
	Cause   URLErrorCause
}

func (e *URLError) Error() string {
	return fmt.Sprintf("url error: %s: %s", e.Cause, e.Message)
}

// Severity is always fatal for the task at hand: a URL that fails to
// normalize can never be fetched, retried, or re-derived.
func (e *URLError) Severity() failure.Severity {
	return failure.SeverityFatal
}

func (e *URLError) IsRetryable() bool {
	return false
}
