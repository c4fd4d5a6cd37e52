package pipeline

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"feedgate/internal/domain/entity"
)

// Patterns removed from feed fields before the tag-stripping pass. Stripping
// alone is not enough: entity-encoded markup survives one decode, so markers
// are removed after decoding as well.
var (
	scriptPattern       = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script>`)
	iframePattern       = regexp.MustCompile(`(?is)<iframe\b[^>]*>.*?</iframe>`)
	eventHandlerPattern = regexp.MustCompile(`(?i)\son\w+\s*=\s*("[^"]*"|'[^']*'|[^\s>]+)`)
	javascriptPattern   = regexp.MustCompile(`(?i)javascript\s*:`)
)

// Sanitizer cleans text fields coming out of untrusted feed payloads.
// Each field is sanitized independently so one poisoned field cannot leak
// markup into its siblings.
type Sanitizer struct {
	policy *bluemonday.Policy
}

// NewSanitizer creates a sanitizer with a strict strip-everything policy.
// Feed text is rendered as plain text downstream, so no markup survives.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Text sanitizes a single feed text field. HTML entities are decoded first so
// encoded markup is visible to the strip pass, then scripts, iframes and
// inline event handlers are removed, then all remaining tags are stripped.
func (s *Sanitizer) Text(raw string) string {
	if raw == "" {
		return ""
	}

	decoded := html.UnescapeString(raw)
	decoded = scriptPattern.ReplaceAllString(decoded, "")
	decoded = iframePattern.ReplaceAllString(decoded, "")
	decoded = eventHandlerPattern.ReplaceAllString(decoded, "")
	decoded = javascriptPattern.ReplaceAllString(decoded, "")

	stripped := s.policy.Sanitize(decoded)
	// StrictPolicy re-encodes entities it preserved; decode once more so
	// callers get plain text.
	return strings.TrimSpace(html.UnescapeString(stripped))
}

// Article sanitizes every text field of an article in place and drops
// enclosure URLs that fail validation.
func (s *Sanitizer) Article(a *entity.Article) {
	a.Title = s.Text(a.Title)
	a.Description = s.Text(a.Description)
	a.Content = s.Text(a.Content)
	a.Author = s.Text(a.Author)
	a.SourceTitle = s.Text(a.SourceTitle)

	for i, category := range a.Categories {
		a.Categories[i] = s.Text(category)
	}

	if a.ImageURL != "" && !entity.ValidEnclosureURL(a.ImageURL) {
		a.ImageURL = ""
	}
	if a.AudioURL != "" && !entity.ValidEnclosureURL(a.AudioURL) {
		a.AudioURL = ""
	}
}
