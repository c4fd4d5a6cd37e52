package entity

import (
	"net/url"
	"strings"
)

// placeholderPatterns are substrings that mark an enclosure URL as a stock
// placeholder rather than real media. Feeds from aggregator proxies often
// inject these.
var placeholderPatterns = []string{
	"placeholder",
	"default.jpg",
	"default.png",
	"no-image",
	"noimage",
	"missing.",
	"spacer.gif",
	"blank.gif",
	"1x1.",
	"pixel.gif",
	"example.com",
}

// ValidEnclosureURL reports whether an image or audio enclosure URL is worth
// keeping: absolute http/https, a real host, and not an obvious placeholder.
func ValidEnclosureURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if u.Hostname() == "" {
		return false
	}
	lower := strings.ToLower(raw)
	for _, p := range placeholderPatterns {
		if strings.Contains(lower, p) {
			return false
		}
	}
	return true
}
