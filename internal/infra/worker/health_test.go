package worker

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthServer_Liveness(t *testing.T) {
	h := NewHealthServer(":0", testLogger())

	rec := httptest.NewRecorder()
	h.handleLiveness(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("liveness status = %d", rec.Code)
	}
}

func TestHealthServer_ReadinessTransitions(t *testing.T) {
	h := NewHealthServer(":0", testLogger())

	rec := httptest.NewRecorder()
	h.handleReadiness(rec, httptest.NewRequest(http.MethodGet, "/healthz/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readiness before init = %d, want 503", rec.Code)
	}

	h.SetReady(true)
	rec = httptest.NewRecorder()
	h.handleReadiness(rec, httptest.NewRequest(http.MethodGet, "/healthz/ready", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("readiness after init = %d, want 200", rec.Code)
	}

	h.SetReady(false)
	rec = httptest.NewRecorder()
	h.handleReadiness(rec, httptest.NewRequest(http.MethodGet, "/healthz/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readiness after shutdown signal = %d, want 503", rec.Code)
	}
}
