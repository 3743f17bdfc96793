package sitemap

import (
	"encoding/xml"
	"errors"
	"io"
	"net/url"
	"strings"
	"time"
)

type xmlURLEntry struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod"`
}

type xmlSitemapEntry struct {
	Loc string `xml:"loc"`
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// Parse streams a sitemap or sitemap-index document from r, resolving
// relative <loc> values against base. It reads at most limits.MaxBytes
// and yields at most limits.MaxURLs entries; running past either cap
// sets ParseResult.Truncated instead of failing. A malformed <url> or
// <sitemap> element is skipped and recorded in Warnings, never aborts
// the document.
func Parse(r io.Reader, base url.URL, limits Limits) (ParseResult, *SitemapError) {
	counter := &countingReader{r: r}
	limited := io.LimitReader(counter, limits.MaxBytes+1)

	decoder := xml.NewDecoder(limited)
	decoder.Strict = false

	var result ParseResult

	for {
		tok, err := decoder.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if counter.n > limits.MaxBytes {
				result.Truncated = true
				result.Warnings = append(result.Warnings, "sitemap exceeded byte cap, truncated")
				break
			}
			return result, &SitemapError{Message: err.Error(), Cause: ErrCauseMalformedXML}
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		switch start.Name.Local {
		case "url":
			if len(result.Entries) >= limits.MaxURLs {
				result.Truncated = true
				if err := decoder.Skip(); err != nil {
					break
				}
				continue
			}
			var e xmlURLEntry
			if err := decoder.DecodeElement(&e, &start); err != nil {
				result.Warnings = append(result.Warnings, "malformed <url> entry: "+err.Error())
				continue
			}
			resolved, err := resolveLoc(base, e.Loc)
			if err != nil {
				result.Warnings = append(result.Warnings, "invalid <loc> "+e.Loc+": "+err.Error())
				continue
			}
			result.Entries = append(result.Entries, Entry{URL: resolved, LastMod: parseLastMod(e.LastMod)})

		case "sitemap":
			var e xmlSitemapEntry
			if err := decoder.DecodeElement(&e, &start); err != nil {
				result.Warnings = append(result.Warnings, "malformed <sitemap> entry: "+err.Error())
				continue
			}
			resolved, err := resolveLoc(base, e.Loc)
			if err != nil {
				result.Warnings = append(result.Warnings, "invalid child sitemap loc "+e.Loc+": "+err.Error())
				continue
			}
			result.ChildSitemaps = append(result.ChildSitemaps, resolved)
		}
	}

	if counter.n > limits.MaxBytes {
		result.Truncated = true
	}

	return result, nil
}

func resolveLoc(base url.URL, loc string) (url.URL, error) {
	trimmed := strings.TrimSpace(loc)
	if trimmed == "" {
		return url.URL{}, errors.New("empty loc")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return url.URL{}, err
	}
	resolved := base.ResolveReference(parsed)
	resolved.Fragment = ""
	return *resolved, nil
}

func parseLastMod(v string) *time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return &t
		}
	}
	return nil
}
