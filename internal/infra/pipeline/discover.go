package pipeline

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// feedLinkTypes are the MIME types announced by feed autodiscovery links.
var feedLinkTypes = map[string]struct{}{
	"application/rss+xml":   {},
	"application/atom+xml":  {},
	"application/feed+json": {},
	"application/json":      {},
}

// discoverFeedURL scans an HTML page for a feed autodiscovery link
// (<link rel="alternate" type="application/rss+xml" href=...>) and returns
// the first advertised feed URL resolved against the page URL. Sites often
// hand back their landing page when a feed path moved; one discovery pass
// recovers the new location without user intervention.
func discoverFeedURL(body []byte, pageURL string) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", false
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return "", false
	}

	var found string
	doc.Find(`link[rel="alternate"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		linkType := strings.ToLower(strings.TrimSpace(sel.AttrOr("type", "")))
		if _, ok := feedLinkTypes[linkType]; !ok {
			return true
		}
		href := strings.TrimSpace(sel.AttrOr("href", ""))
		if href == "" {
			return true
		}
		ref, err := url.Parse(href)
		if err != nil {
			return true
		}
		resolved := base.ResolveReference(ref)
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return true
		}
		found = resolved.String()
		return false
	})

	return found, found != ""
}

// looksLikeHTML reports whether a response body is an HTML page rather than
// a feed document.
func looksLikeHTML(body []byte) bool {
	head := strings.ToLower(string(bytes.TrimSpace(body[:min(len(body), 512)])))
	return strings.HasPrefix(head, "<!doctype html") ||
		strings.HasPrefix(head, "<html") ||
		strings.Contains(head, "<head") && strings.Contains(head, "<body")
}
