// Package fetcher provides full-article content fetching for feed items whose
// syndicated description is too short to be useful. It fetches the article
// page under SSRF, size and redirect limits and extracts readable text.
package fetcher

import "errors"

// Sentinel errors for content fetching operations.
var (
	// ErrInvalidURL indicates a URL that failed validation before fetching.
	ErrInvalidURL = errors.New("invalid content URL")

	// ErrPrivateIP indicates a URL resolving to a private or loopback address.
	ErrPrivateIP = errors.New("URL resolves to private IP")

	// ErrTooManyRedirects indicates the redirect limit was exceeded.
	ErrTooManyRedirects = errors.New("too many redirects")

	// ErrBodyTooLarge indicates the response exceeded the size limit.
	ErrBodyTooLarge = errors.New("response body too large")

	// ErrExtractionFailed indicates readable content could not be extracted.
	ErrExtractionFailed = errors.New("content extraction failed")
)
