package store

import (
	"context"
	"sync"
	"time"

	"github.com/git-hulk/go-nodup/guard/engine"
)

const memorySweepEvery = 1024

var (
	_ engine.Store             = (*Memory)(nil)
	_ engine.CompareAndDeleter = (*Memory)(nil)
)

type memoryItem struct {
	value    string
	expireAt time.Time
}

// Memory is a process-local engine.Store. It only provides mutual exclusion
// between callers sharing the same instance.
type Memory struct {
	mu     sync.Mutex
	now    func() time.Time
	items  map[string]memoryItem
	writes int
}

// NewMemory creates an in-memory store, now defaults to time.Now.
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{
		now:   now,
		items: make(map[string]memoryItem),
	}
}

// lookup must be called with mu held.
func (m *Memory) lookup(key string) (memoryItem, bool) {
	item, ok := m.items[key]
	if !ok {
		return memoryItem{}, false
	}
	if !item.expireAt.After(m.now()) {
		delete(m.items, key)
		return memoryItem{}, false
	}
	return item, true
}

// put must be called with mu held.
func (m *Memory) put(key, value string, ttl time.Duration) {
	m.items[key] = memoryItem{value: value, expireAt: m.now().Add(ttl)}
	m.writes++
	if m.writes%memorySweepEvery == 0 {
		now := m.now()
		for k, item := range m.items {
			if !item.expireAt.After(now) {
				delete(m.items, k)
			}
		}
	}
}

func (m *Memory) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.lookup(key); ok {
		return false, nil
	}
	m.put(key, value, ttl)
	return true, nil
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.lookup(key)
	return item.value, ok, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

func (m *Memory) Replace(_ context.Context, key, old, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.lookup(key)
	if !ok || item.value != old {
		return false, nil
	}
	m.put(key, value, ttl)
	return true, nil
}

func (m *Memory) CompareAndDelete(_ context.Context, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.lookup(key)
	if !ok || item.value != value {
		return false, nil
	}
	delete(m.items, key)
	return true, nil
}
