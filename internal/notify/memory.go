package notify

import (
	"context"
	"sync"

	"github.com/BD4L/breachwatch/internal/pipeline"
)

// MemoryDispatcher records dispatched events for inspection in tests.
type MemoryDispatcher struct {
	mu     sync.RWMutex
	events []pipeline.PersistedRecord
}

// NewMemory returns a MemoryDispatcher.
func NewMemory() *MemoryDispatcher {
	return &MemoryDispatcher{}
}

// RecordInserted implements pipeline.Dispatcher.
func (d *MemoryDispatcher) RecordInserted(_ context.Context, rec pipeline.PersistedRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, rec)
	return nil
}

// Events returns the recorded dispatches.
func (d *MemoryDispatcher) Events() []pipeline.PersistedRecord {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]pipeline.PersistedRecord, len(d.events))
	copy(out, d.events)
	return out
}
