package repository

import (
	"context"
	"sync"
)

// MemorySink keeps records in memory. It backs deployments without Redis.
type MemorySink struct {
	mu      sync.Mutex
	records []Record
	limit   int
	closed  bool
}

// NewMemorySink creates a sink that keeps at most limit records, dropping
// the oldest. A non-positive limit keeps everything.
func NewMemorySink(limit int) *MemorySink {
	return &MemorySink{limit: limit}
}

// Write stores r.
func (m *MemorySink) Write(_ context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrSinkClosed
	}
	m.records = append(m.records, r)
	if m.limit > 0 && len(m.records) > m.limit {
		m.records = append([]Record(nil), m.records[len(m.records)-m.limit:]...)
	}
	return nil
}

// Records returns a copy of the stored records.
func (m *MemorySink) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.records...)
}

// Close marks the sink closed.
func (m *MemorySink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
