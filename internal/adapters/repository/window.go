package repository

import (
	"context"
	"sync"

	"github.com/okian/guardline/internal/domain/model"
)

const defaultWindowSize = 10

// WindowStore keeps the most recent events per subject, oldest first.
type WindowStore struct {
	mu      sync.RWMutex
	windows map[string][]model.Event
	size    int
}

// WindowOption configures a WindowStore.
type WindowOption func(*WindowStore)

// WithWindowSize bounds how many events are kept per subject.
func WithWindowSize(n int) WindowOption {
	return func(s *WindowStore) {
		if n > 0 {
			s.size = n
		}
	}
}

// NewWindowStore creates an empty store.
func NewWindowStore(opts ...WindowOption) *WindowStore {
	s := &WindowStore{
		windows: make(map[string][]model.Event),
		size:    defaultWindowSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Size returns the per-subject bound.
func (s *WindowStore) Size() int { return s.size }

// Window returns a copy of the subject's window.
func (s *WindowStore) Window(_ context.Context, subjectID string) []model.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Event(nil), s.windows[subjectID]...)
}

// Append adds e to the subject's window and returns the resulting window.
func (s *WindowStore) Append(ctx context.Context, subjectID string, e model.Event) ([]model.Event, error) {
	if subjectID == "" {
		return nil, ErrInvalidSubject
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	w := Truncate(append(s.windows[subjectID], e), s.size)
	s.windows[subjectID] = w
	return append([]model.Event(nil), w...), nil
}

// Replace sets the subject's window to the last Size() events of events.
func (s *WindowStore) Replace(_ context.Context, subjectID string, events []model.Event) error {
	if subjectID == "" {
		return ErrInvalidSubject
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows[subjectID] = Truncate(append([]model.Event(nil), events...), s.size)
	return nil
}

// Forget drops the subject's window.
func (s *WindowStore) Forget(_ context.Context, subjectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, subjectID)
}

// Count returns the number of subjects with a window.
func (s *WindowStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.windows)
}

// Truncate keeps the last n events of events.
func Truncate(events []model.Event, n int) []model.Event {
	if n <= 0 || len(events) <= n {
		return events
	}
	out := make([]model.Event, n)
	copy(out, events[len(events)-n:])
	return out
}
