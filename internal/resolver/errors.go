package resolver

import (
	"fmt"

	"github.com/crawlkit/engine/pkg/failure"
)

type ResolverErrorCause string

const (
	ErrCauseLookupFailed  ResolverErrorCause = "dns lookup failed"
	ErrCauseAllFiltered   ResolverErrorCause = "all resolved addresses filtered"
	ErrCauseInvalidHost   ResolverErrorCause = "invalid host"
)

// ResolverError is always fatal for the task: per spec.md §4.2, a host
// that cannot be resolved to an admissible address fails the crawl task
// outright, it is never retried by this component.
type ResolverError struct {
	Host    string
	Cause   ResolverErrorCause
	Wrapped error
}

func (e *ResolverError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("resolver error: %s: %s: %v", e.Cause, e.Host, e.Wrapped)
	}
	return fmt.Sprintf("resolver error: %s: %s", e.Cause, e.Host)
}

func (e *ResolverError) Severity() failure.Severity {
	return failure.SeverityFatal
}

func (e *ResolverError) IsRetryable() bool {
	return false
}

func (e *ResolverError) Unwrap() error {
	return e.Wrapped
}
