package engine

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errStoreDown = errors.New("store is down")

// fakeStore never evicts keys by itself, which is how a store with lagging
// TTL eviction looks to the Manager. It has no CompareAndDelete, so release
// goes through Get and Delete.
type fakeStore struct {
	mu    sync.Mutex
	items map[string]string
	ttls  map[string]time.Duration

	err            error
	evictBeforeGet map[string]bool
	setNXCalls     int
	deletes        int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		items:          make(map[string]string),
		ttls:           make(map[string]time.Duration),
		evictBeforeGet: make(map[string]bool),
	}
}

func (s *fakeStore) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setNXCalls++
	if s.err != nil {
		return false, s.err
	}
	if _, ok := s.items[key]; ok {
		return false, nil
	}
	s.items[key] = value
	s.ttls[key] = ttl
	return true, nil
}

func (s *fakeStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", false, s.err
	}
	if s.evictBeforeGet[key] {
		delete(s.evictBeforeGet, key)
		delete(s.items, key)
	}
	value, ok := s.items[key]
	return value, ok, nil
}

func (s *fakeStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.deletes++
	delete(s.items, key)
	return nil
}

func (s *fakeStore) Replace(_ context.Context, key, old, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	if current, ok := s.items[key]; !ok || current != old {
		return false, nil
	}
	s.items[key] = value
	s.ttls[key] = ttl
	return true, nil
}

func (s *fakeStore) put(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = value
}

func (s *fakeStore) value(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.items[key]
	return value, ok
}

func (s *fakeStore) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

type failingScheduler struct{}

func (failingScheduler) Schedule(time.Duration, func()) error {
	return ErrSchedulerFull
}
