package proxy

import (
	"fmt"
	"regexp"
	"strings"

	"feedgate/internal/domain/entity"
)

var scriptPattern = regexp.MustCompile(`(?i)<\s*script[\s>]`)

// ValidateResponse checks that a relay response plausibly contains feed data
// before it reaches a parser. It rejects empty bodies, oversized bodies,
// HTML documents, script payloads, and anything that resembles neither XML
// nor JSON. All rejections wrap entity.ErrSecurityValidation.
func ValidateResponse(body []byte, maxBytes int64) error {
	if len(body) == 0 {
		return fmt.Errorf("%w: empty response body", entity.ErrSecurityValidation)
	}
	if int64(len(body)) > maxBytes {
		return fmt.Errorf("%w: response body %d bytes exceeds limit %d",
			entity.ErrSecurityValidation, len(body), maxBytes)
	}

	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return fmt.Errorf("%w: blank response body", entity.ErrSecurityValidation)
	}

	lower := strings.ToLower(trimmed)
	if strings.HasPrefix(lower, "<!doctype html") || strings.HasPrefix(lower, "<html") {
		return fmt.Errorf("%w: HTML document instead of feed data", entity.ErrSecurityValidation)
	}
	if scriptPattern.MatchString(trimmed) {
		return fmt.Errorf("%w: script payload in response", entity.ErrSecurityValidation)
	}

	if !looksLikeXML(trimmed) && !looksLikeJSON(trimmed) {
		return fmt.Errorf("%w: response resembles neither XML nor JSON", entity.ErrSecurityValidation)
	}
	return nil
}

func looksLikeXML(s string) bool {
	return strings.HasPrefix(s, "<?xml") || strings.HasPrefix(s, "<")
}

func looksLikeJSON(s string) bool {
	return strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[")
}
