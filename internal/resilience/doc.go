// Package resilience groups the reliability primitives used by the feed
// acquisition engine:
//
//   - breaker: per-endpoint health tracking with consecutive-failure gating
//     and deterministic health scoring, used to order failover candidates
//   - circuitbreaker: gobreaker-based circuit breakers keyed by provider
//     name, used by the fetch pipeline
//   - retry: exponential backoff with jitter for transient failures
package resilience
