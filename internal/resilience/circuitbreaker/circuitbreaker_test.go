package circuitbreaker

import (
	"errors"
	"testing"

	"github.com/sony/gobreaker"
)

func TestNew_StartsClosed(t *testing.T) {
	cb := New(ProviderConfig("rss2json"))

	if cb.Name() != "rss2json" {
		t.Errorf("expected name rss2json, got %q", cb.Name())
	}
	if cb.State() != gobreaker.StateClosed {
		t.Errorf("expected closed state, got %v", cb.State())
	}
	if cb.IsOpen() {
		t.Error("new breaker should not be open")
	}
}

func TestExecute_PassesThroughResult(t *testing.T) {
	cb := New(ProviderConfig("rss2json"))

	result, err := cb.Execute(func() (interface{}, error) {
		return "feed-body", nil
	})

	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.(string) != "feed-body" {
		t.Errorf("expected feed-body, got %v", result)
	}
}

func TestExecute_TripsAfterFailureRatio(t *testing.T) {
	cfg := Config{
		Name:             "flaky-provider",
		MaxRequests:      1,
		Interval:         0,
		Timeout:          0,
		FailureThreshold: 0.6,
		MinRequests:      5,
	}
	cb := New(cfg)
	failure := errors.New("provider down")

	for i := 0; i < 5; i++ {
		_, _ = cb.Execute(func() (interface{}, error) {
			return nil, failure
		})
	}

	if !cb.IsOpen() {
		t.Fatal("expected breaker to open after sustained failures")
	}

	_, err := cb.Execute(func() (interface{}, error) {
		t.Error("function should not run while breaker is open")
		return nil, nil
	})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("expected ErrOpenState, got %v", err)
	}
}

func TestExecute_StaysClosedBelowMinRequests(t *testing.T) {
	cb := New(ProviderConfig("rss2json"))
	failure := errors.New("provider down")

	for i := 0; i < 3; i++ {
		_, _ = cb.Execute(func() (interface{}, error) {
			return nil, failure
		})
	}

	if cb.IsOpen() {
		t.Error("breaker should stay closed below MinRequests")
	}
}
