package load

import (
	"testing"
	"time"

	"feedgate/internal/domain/entity"
	"feedgate/internal/infra/store"
)

func TestHistory_FailureAndClear(t *testing.T) {
	h := newHistory(nil, testLogger())

	h.failure("https://a.example/feed", entity.ErrorTypeTimeout)
	h.failure("https://a.example/feed", entity.ErrorTypeNetwork)

	recs := h.snapshot()
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	if recs[0].Failures != 2 {
		t.Errorf("Failures = %d, want 2", recs[0].Failures)
	}
	if recs[0].LastErrorType != entity.ErrorTypeNetwork {
		t.Errorf("LastErrorType = %q, want latest failure's type", recs[0].LastErrorType)
	}

	h.success("https://a.example/feed")
	if len(h.snapshot()) != 0 {
		t.Error("success should clear the record entirely")
	}
}

func TestHistory_ProblematicWindow(t *testing.T) {
	h := newHistory(nil, testLogger())
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	h.clock = func() time.Time { return now }

	h.failure("https://a.example/feed", entity.ErrorTypeParse)

	if !h.problematic("https://a.example/feed", 7*24*time.Hour) {
		t.Error("recent failure should mark feed problematic")
	}
	if h.problematic("https://other.example/feed", 7*24*time.Hour) {
		t.Error("unknown feed should not be problematic")
	}

	now = now.Add(8 * 24 * time.Hour)
	if h.problematic("https://a.example/feed", 7*24*time.Hour) {
		t.Error("failure outside window should not be problematic")
	}
}

func TestHistory_PersistsAcrossRestart(t *testing.T) {
	snaps, err := store.Open("")
	if err != nil {
		t.Fatal(err)
	}
	defer snaps.Close()

	h1 := newHistory(snaps, testLogger())
	h1.failure("https://a.example/feed", entity.ErrorTypeNotFound)
	h1.failure("https://b.example/feed", entity.ErrorTypeTimeout)
	h1.success("https://b.example/feed")

	h2 := newHistory(snaps, testLogger())
	recs := h2.snapshot()
	if len(recs) != 1 {
		t.Fatalf("restored %d records, want 1", len(recs))
	}
	if recs[0].URL != "https://a.example/feed" || recs[0].LastErrorType != entity.ErrorTypeNotFound {
		t.Errorf("restored record = %+v", recs[0])
	}
}

func TestHistory_CorruptSnapshotIgnored(t *testing.T) {
	snaps, err := store.Open("")
	if err != nil {
		t.Fatal(err)
	}
	defer snaps.Close()

	if err := snaps.PutRaw(store.BucketHistory, historyKey, []byte("{broken")); err != nil {
		t.Fatal(err)
	}

	h := newHistory(snaps, testLogger())
	if len(h.snapshot()) != 0 {
		t.Error("corrupt snapshot should restore as empty")
	}
}
