package extractor

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

/*
Field extraction is layer 3, after a content container has been located
(or not) by the two heuristic layers in dom.go. It walks the whole
document for title/meta/headings/links (those aren't chrome-sensitive)
and the isolated content node for body text, so noise stripped by
extractContainerAfterExplicitChromesRemoval doesn't leak into Body.
*/

// FieldLimits bounds the HTML field extraction, matching spec.md §6's
// byte/count caps.
type FieldLimits struct {
	MaxTitleSize           int
	MaxBodySize            int
	MaxKeywordsSize        int
	MaxDescriptionSize     int
	MaxExtractedLinksCount int
	MaxIndexedLinksCount   int
	MaxHeadingsCount       int
}

// DefaultFieldLimits matches spec.md §6's documented defaults.
var DefaultFieldLimits = FieldLimits{
	MaxTitleSize:           1024,
	MaxBodySize:            5 * 1024 * 1024,
	MaxKeywordsSize:        512,
	MaxDescriptionSize:     1024,
	MaxExtractedLinksCount: 1000,
	MaxIndexedLinksCount:   25,
	MaxHeadingsCount:       25,
}

// ExtractedFields is the HTML-specific payload of a Success{html} result.
type ExtractedFields struct {
	Title           string
	MetaKeywords    string
	MetaDescription string
	Headings        []Heading
	Body            string
	// Links holds every discovered link, up to MaxExtractedLinksCount —
	// this is the set handed to discovery/enqueue.
	Links []string
	// IndexedLinks holds the first MaxIndexedLinksCount of Links — this
	// is the set that rides along on the result payload itself.
	IndexedLinks []string
}

var noiseElements = map[string]bool{
	"script": true, "style": true, "noscript": true, "nav": true,
}

// ExtractFields walks doc for title/meta/headings/links, and contentNode
// (falling back to doc itself) for body text, per spec.md §4.7's HTML
// path. baseURL resolves relative hrefs found on the page.
func ExtractFields(doc *html.Node, contentNode *html.Node, baseURL url.URL, limits FieldLimits) ExtractedFields {
	gqDoc := goquery.NewDocumentFromNode(doc)
	fields := ExtractedFields{}

	if title := gqDoc.Find("title").First(); title.Length() > 0 {
		fields.Title = truncateBytes(strings.TrimSpace(title.Text()), limits.MaxTitleSize)
	}

	gqDoc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		name, _ := s.Attr("name")
		content, _ := s.Attr("content")
		content = strings.TrimSpace(content)
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "keywords":
			if fields.MetaKeywords == "" {
				fields.MetaKeywords = truncateBytes(content, limits.MaxKeywordsSize)
			}
		case "description":
			if fields.MetaDescription == "" {
				fields.MetaDescription = truncateBytes(content, limits.MaxDescriptionSize)
			}
		}
	})

	maxHeadings := limits.MaxHeadingsCount
	gqDoc.Find("h1, h2, h3, h4, h5, h6").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if maxHeadings > 0 && len(fields.Headings) >= maxHeadings {
			return false
		}
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return true
		}
		fields.Headings = append(fields.Headings, Heading{
			Level: headingLevel(goquery.NodeName(s)),
			Text:  text,
		})
		return true
	})

	bodySource := contentNode
	if bodySource == nil {
		bodySource = doc
	}
	fields.Body = truncateBytes(visibleText(bodySource), limits.MaxBodySize)

	fields.Links = extractLinks(gqDoc, baseURL, limits.MaxExtractedLinksCount)
	indexedCount := limits.MaxIndexedLinksCount
	if indexedCount <= 0 || indexedCount > len(fields.Links) {
		indexedCount = len(fields.Links)
	}
	fields.IndexedLinks = append([]string(nil), fields.Links[:indexedCount]...)

	return fields
}

func headingLevel(tag string) int {
	switch tag {
	case "h1":
		return 1
	case "h2":
		return 2
	case "h3":
		return 3
	case "h4":
		return 4
	case "h5":
		return 5
	case "h6":
		return 6
	default:
		return 0
	}
}

// visibleText concatenates text nodes under node in document order,
// skipping script/style/nav/noscript subtrees.
func visibleText(node *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n == nil {
			return
		}
		if n.Type == html.ElementNode && noiseElements[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(node)
	return strings.Join(strings.Fields(b.String()), " ")
}

// extractLinks collects <a href>, <link rel=canonical>, and <area href>
// targets, resolved against baseURL and deduplicated, capped at maxCount.
// Scheme filtering here only drops non-http(s) targets (mailto:, javascript:,
// etc); allowlist/visited filtering happens downstream in the coordinator,
// which alone knows the crawl's scope and VisitedSet.
func extractLinks(doc *goquery.Document, baseURL url.URL, maxCount int) []string {
	var links []string
	seen := make(map[string]bool)

	add := func(href string) bool {
		href = strings.TrimSpace(href)
		if href == "" {
			return true
		}
		resolved, err := baseURL.Parse(href)
		if err != nil {
			return true
		}
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return true
		}
		resolved.Fragment = ""
		normalized := resolved.String()
		if seen[normalized] {
			return true
		}
		seen[normalized] = true
		links = append(links, normalized)
		return maxCount <= 0 || len(links) < maxCount
	}

	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		return add(href)
	})
	doc.Find("link[rel=canonical]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		return add(href)
	})
	doc.Find("area[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		return add(href)
	})

	return links
}

// truncateBytes cuts s to at most max bytes without splitting a multi-byte
// rune, matching spec.md §6's byte-size caps.
func truncateBytes(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	b := []byte(s)[:max]
	for len(b) > 0 {
		r, size := utf8.DecodeLastRune(b)
		if r != utf8.RuneError || size != 1 {
			break
		}
		b = b[:len(b)-1]
	}
	return string(b)
}
