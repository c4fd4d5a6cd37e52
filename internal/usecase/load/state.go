package load

import "feedgate/internal/domain/entity"

// Status is the loader's lifecycle phase.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// State is an immutable snapshot of loading progress. The loader replaces
// the whole snapshot on every observable transition; callers can hold a
// returned State without racing in-flight updates.
type State struct {
	Status      Status
	Progress    int // percent of feeds settled, 0-100
	LoadedCount int
	TotalCount  int
	Errors      []entity.FeedError

	// IsBackgroundRefresh is set when cached articles allowed immediate
	// display and the network refresh runs underneath.
	IsBackgroundRefresh bool

	// PriorityComplete is set once every feed in the priority category
	// has settled, success or failure.
	PriorityComplete bool
}

// clone returns a deep copy so the stored snapshot can be replaced without
// sharing the error slice.
func (s State) clone() State {
	out := s
	out.Errors = make([]entity.FeedError, len(s.Errors))
	copy(out.Errors, s.Errors)
	return out
}
