package sitemap

import (
	"net/url"
	"time"
)

/*
Sitemap parser responsibilities
- Stream <url> and <sitemap> entries out of an XML sitemap or
  sitemap-index document without materializing the whole tree
- Cap URL count and uncompressed byte count, truncating rather than
  failing when a document runs past either cap
- Skip malformed individual entries with a warning instead of aborting
  the whole document
- Know nothing about fetching, robots admission, or the frontier: a
  ParseResult is handed to the caller (the crawl coordinator) to turn
  into CrawlTasks
*/

// Entry is one <url> record from a sitemap document.
type Entry struct {
	URL     url.URL
	LastMod *time.Time
}

// ParseResult is everything Parse recovered from one sitemap or
// sitemap-index document. ChildSitemaps is only populated for a
// sitemap-index document; recursing into them is the caller's job.
type ParseResult struct {
	Entries       []Entry
	ChildSitemaps []url.URL

	// Truncated is true when the document exceeded the configured URL
	// count or byte size cap and was cut short.
	Truncated bool

	// Warnings records malformed entries that were skipped, in the
	// order encountered.
	Warnings []string
}

// Limits bounds how much of a single sitemap document Parse will
// consume.
type Limits struct {
	MaxURLs  int
	MaxBytes int64
}

// DefaultLimits matches the 50,000 URL / 50 MiB caps for a single
// sitemap document.
var DefaultLimits = Limits{
	MaxURLs:  50000,
	MaxBytes: 50 * 1024 * 1024,
}
