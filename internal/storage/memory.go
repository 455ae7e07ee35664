package storage

import (
	"context"
	"sync"

	"botmon/internal/registry"
)

// Memory is a process-local registry.Store.
//
// Reads share the lock; writes take it exclusively so no entry is ever seen
// half-linked between the two indexes.
type Memory struct {
	mu     sync.RWMutex
	ix     index
	closed bool
}

func NewMemory() *Memory {
	return &Memory{ix: newIndex()}
}

func (m *Memory) Add(_ context.Context, e registry.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.ix.add(e)
	return nil
}

func (m *Memory) Remove(_ context.Context, e registry.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.ix.remove(e)
	return nil
}

func (m *Memory) FetchBySubject(_ context.Context, subjectID string) ([]registry.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	return m.ix.subject(subjectID), nil
}

func (m *Memory) FetchByWatcher(_ context.Context, watcherID string) ([]registry.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	return m.ix.watcher(watcherID), nil
}

// Len reports the number of stored pairs.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ix.len()
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
