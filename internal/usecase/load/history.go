package load

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"feedgate/internal/domain/entity"
	"feedgate/internal/infra/store"
)

// historyKey is the store key holding the persisted record list.
const historyKey = "records"

// HistoryRecord is the persisted rolling failure record for one feed URL.
// Records only reorder future batches; they never suppress retries.
type HistoryRecord struct {
	URL           string           `json:"url"`
	Failures      int              `json:"failures"`
	LastError     int64            `json:"lastError"` // epoch millis
	LastErrorType entity.ErrorType `json:"lastErrorType"`
}

// history tracks per-feed failure records, persisted through the snapshot
// store. Safe for concurrent use; fetch completions from one batch settle
// concurrently.
type history struct {
	snaps  *store.SnapshotStore
	logger *slog.Logger
	clock  func() time.Time

	mu      sync.Mutex
	records map[string]HistoryRecord
}

func newHistory(snaps *store.SnapshotStore, logger *slog.Logger) *history {
	if logger == nil {
		logger = slog.Default()
	}
	h := &history{
		snaps:   snaps,
		logger:  logger,
		clock:   time.Now,
		records: make(map[string]HistoryRecord),
	}
	h.restore()
	return h
}

// failure increments the feed's failure count and stamps the error type.
func (h *history) failure(url string, errType entity.ErrorType) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rec := h.records[url]
	rec.URL = url
	rec.Failures++
	rec.LastError = h.clock().UnixMilli()
	rec.LastErrorType = errType
	h.records[url] = rec
	h.persistLocked()
}

// success clears the feed's record entirely.
func (h *history) success(url string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.records[url]; !ok {
		return
	}
	delete(h.records, url)
	h.persistLocked()
}

// problematic reports whether the feed failed within the window.
func (h *history) problematic(url string, window time.Duration) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	rec, ok := h.records[url]
	if !ok {
		return false
	}
	return h.clock().Sub(time.UnixMilli(rec.LastError)) <= window
}

// snapshot returns the records sorted by URL.
func (h *history) snapshot() []HistoryRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]HistoryRecord, 0, len(h.records))
	for _, rec := range h.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

// persistLocked writes the record list through to the store. Persistence
// failures are logged and swallowed; history is advisory.
func (h *history) persistLocked() {
	if h.snaps == nil {
		return
	}

	out := make([]HistoryRecord, 0, len(h.records))
	for _, rec := range h.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })

	if err := h.snaps.Put(store.BucketHistory, historyKey, out); err != nil {
		h.logger.Warn("error history persist failed", slog.Any("error", err))
	}
}

func (h *history) restore() {
	if h.snaps == nil {
		return
	}

	var records []HistoryRecord
	ok, err := h.snaps.Get(store.BucketHistory, historyKey, &records)
	if err != nil || !ok {
		return
	}
	for _, rec := range records {
		if rec.URL == "" {
			continue
		}
		h.records[rec.URL] = rec
	}
	h.logger.Debug("error history restored", slog.Int("records", len(h.records)))
}
