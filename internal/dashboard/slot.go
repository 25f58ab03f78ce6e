package dashboard

import (
	"sync"
	"time"

	"monitora-dashboard/internal/client"
	"monitora-dashboard/internal/poller"
)

// Status of a section as the views render it
type Status string

const (
	StatusLoading Status = "loading" // nothing fetched yet
	StatusReady   Status = "ready"
	StatusStale   Status = "stale"  // last fetch failed, showing last-good data
	StatusFailed  Status = "failed" // fetch failed before any data arrived
)

// Slot holds the last-good snapshot of one polled resource. A failed fetch keeps the
// previous data and only records the error.
type Slot[T any] struct {
	resource string

	mu        sync.RWMutex
	data      T
	loaded    bool
	err       error
	updatedAt time.Time
	failedAt  time.Time
}

func newSlot[T any](resource string) *Slot[T] {
	return &Slot[T]{resource: resource}
}

// Apply stores a fetch result
func (s *Slot[T]) Apply(res poller.Result[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if res.Err != nil {
		s.err = res.Err
		s.failedAt = res.CompletedAt
		return
	}
	s.data = res.Data
	s.loaded = true
	s.err = nil
	s.updatedAt = res.CompletedAt
}

// Set stores data fetched out of band, e.g. restored from the snapshot cache
func (s *Slot[T]) Set(data T, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
	s.loaded = true
	s.err = nil
	s.updatedAt = at
}

// Reset drops the snapshot, used when the data belongs to a previous selection
func (s *Slot[T]) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	s.data = zero
	s.loaded = false
	s.err = nil
	s.updatedAt = time.Time{}
	s.failedAt = time.Time{}
}

// Get returns the last-good data and whether any has arrived
func (s *Slot[T]) Get() (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data, s.loaded
}

// Err returns the error of the last fetch, nil after a success
func (s *Slot[T]) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Section is the renderable state of one slot
type Section[T any] struct {
	Status    Status     `json:"status"`
	Data      T          `json:"data"`
	Error     string     `json:"error,omitempty"`
	Retry     string     `json:"retry,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Section renders the slot
func (s *Slot[T]) Section() Section[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sec := Section[T]{Data: s.data}
	switch {
	case s.loaded && s.err == nil:
		sec.Status = StatusReady
	case s.loaded:
		sec.Status = StatusStale
	case s.err != nil:
		sec.Status = StatusFailed
	default:
		sec.Status = StatusLoading
	}
	if s.err != nil {
		sec.Error = client.Message(s.err)
		sec.Retry = s.resource
	}
	if s.loaded {
		at := s.updatedAt
		sec.UpdatedAt = &at
	}
	return sec
}

// MapSection converts a section's data. f only runs when data is present.
func MapSection[A, B any](s Section[A], f func(A) B) Section[B] {
	out := Section[B]{
		Status:    s.Status,
		Error:     s.Error,
		Retry:     s.Retry,
		UpdatedAt: s.UpdatedAt,
	}
	if s.Status == StatusReady || s.Status == StatusStale {
		out.Data = f(s.Data)
	}
	return out
}
