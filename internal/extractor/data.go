package extractor

import (
	"time"

	"golang.org/x/net/html"
)

// ExtractionResult holds the extraction outcome.
// DocumentRoot is the original parsed HTML document.
// ContentNode is the extracted meaningful content node (semantic container).
type ExtractionResult struct {
	DocumentRoot *html.Node
	ContentNode  *html.Node
}

// ExtractParam tunes the heuristic content-container scoring used by
// layer 2 (explicit chrome removal + text-density scoring).
type ExtractParam struct {
	// LinkDensityThreshold is the link-text/total-text ratio above which
	// a candidate's score is penalized.
	LinkDensityThreshold float64
	// BodySpecificityBias is how close (as a fraction of <body>'s score)
	// a child candidate must be to be preferred over <body> itself.
	BodySpecificityBias float64
}

// ResultKind is the tagged variant discriminator for CrawlResult,
// replacing a sum-of-subclass-checks design with an exhaustive switch.
type ResultKind string

const (
	ResultHTML                   ResultKind = "html"
	ResultSitemap                ResultKind = "sitemap"
	ResultRobotsTxt              ResultKind = "robots_txt"
	ResultContentExtractableFile ResultKind = "content_extractable_file"
	ResultRedirect               ResultKind = "redirect"

	ResultErrorTransient            ResultKind = "error_transient"
	ResultErrorFatal                ResultKind = "error_fatal"
	ResultErrorUnsupportedMimeType  ResultKind = "error_unsupported_content_type"
)

// FatalErrorStatus is the reserved status_code sentinel for fatal Error
// results, guaranteed distinct from any real HTTP status code.
const FatalErrorStatus = -1

// Heading is one h1-h6 node captured in document order.
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// CrawlResult is the sum type spec.md §3 describes: a Success variant
// (html/sitemap/robots_txt/content_extractable_file/redirect) or an Error
// variant (transient/fatal/unsupported_content_type), sharing a common
// set of attributes. Callers discriminate on Kind rather than on type
// assertions or embedded subclass checks.
type CrawlResult struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	StatusCode  int       `json:"status_code"`
	ContentType string    `json:"content_type"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Duration    time.Duration `json:"duration"`
	Kind        ResultKind `json:"kind"`
	Depth       int        `json:"depth"`
	DiscoveredVia string   `json:"discovered_via,omitempty"`

	// HTML-only fields, populated only when Kind == ResultHTML.
	Title           string    `json:"title,omitempty"`
	Body            string    `json:"body,omitempty"`
	MetaKeywords    string    `json:"meta_keywords,omitempty"`
	MetaDescription string    `json:"meta_description,omitempty"`
	Headings        []Heading `json:"headings,omitempty"`
	Links           []string  `json:"links,omitempty"`

	// RedirectTo is populated only when Kind == ResultRedirect.
	RedirectTo string `json:"redirect_to,omitempty"`

	// ErrorMessage and ErrorKind are populated only for the Error variants.
	ErrorMessage string `json:"error_message,omitempty"`
	ErrorKind    string `json:"error_kind,omitempty"`
}

// IsSuccess reports whether r is one of the Success variants.
func (r CrawlResult) IsSuccess() bool {
	switch r.Kind {
	case ResultHTML, ResultSitemap, ResultRobotsTxt, ResultContentExtractableFile, ResultRedirect:
		return true
	default:
		return false
	}
}

// IsError reports whether r is one of the Error variants.
func (r CrawlResult) IsError() bool {
	return !r.IsSuccess()
}
