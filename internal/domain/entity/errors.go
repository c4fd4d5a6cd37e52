package entity

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

// Sentinel errors for feed acquisition operations.
var (
	// ErrAllProvidersFailed indicates that the direct fetch and every
	// configured proxy provider failed for a feed URL.
	ErrAllProvidersFailed = errors.New("all providers failed")

	// ErrSecurityValidation indicates that a response was rejected by
	// content validation (HTML payload, script injection, oversized body).
	ErrSecurityValidation = errors.New("security validation rejected response")

	// ErrNotFound indicates an HTTP 404-class response for the feed URL.
	ErrNotFound = errors.New("feed not found")

	// ErrFeedParse indicates that the response could not be parsed as a feed.
	ErrFeedParse = errors.New("feed parse failed")
)

// ErrorType classifies a feed acquisition failure.
// The taxonomy is stable: persisted error-history records reference these
// values, so they must not be renamed.
type ErrorType string

const (
	ErrorTypeNetwork            ErrorType = "network_error"
	ErrorTypeTimeout            ErrorType = "timeout_error"
	ErrorTypeParse              ErrorType = "parse_error"
	ErrorTypeCORS               ErrorType = "cors_error"
	ErrorTypeSecurityValidation ErrorType = "security_validation_error"
	ErrorTypeNotFound           ErrorType = "not_found"
	ErrorTypeUnknown            ErrorType = "unknown_error"
)

// ClassifyError maps an acquisition failure onto the error taxonomy.
// Classification inspects sentinel errors first, then the error chain,
// then falls back to message matching for errors produced by third-party
// parsers and proxies.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTimeout
	}
	if errors.Is(err, ErrSecurityValidation) {
		return ErrorTypeSecurityValidation
	}
	if errors.Is(err, ErrNotFound) {
		return ErrorTypeNotFound
	}
	if errors.Is(err, ErrFeedParse) {
		return ErrorTypeParse
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorTypeTimeout
		}
		return ErrorTypeNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return ErrorTypeTimeout
	case strings.Contains(msg, "404") || strings.Contains(msg, "not found"):
		return ErrorTypeNotFound
	case strings.Contains(msg, "cors") || strings.Contains(msg, "cross-origin"):
		return ErrorTypeCORS
	case strings.Contains(msg, "parse") || strings.Contains(msg, "invalid xml") || strings.Contains(msg, "invalid json"):
		return ErrorTypeParse
	case strings.Contains(msg, "connection") || strings.Contains(msg, "no such host") || strings.Contains(msg, "refused"):
		return ErrorTypeNetwork
	default:
		return ErrorTypeUnknown
	}
}

// FeedError is the per-feed failure record aggregated by the batch loader.
// One feed's failure never aborts its batch; it is converted into a FeedError
// and appended to the loading state's error list.
type FeedError struct {
	URL       string    `json:"url"`
	Err       string    `json:"error"`
	Type      ErrorType `json:"errorType"`
	Timestamp time.Time `json:"timestamp"`
	FeedTitle string    `json:"feedTitle,omitempty"`
}
