package engine

import (
	"context"
	"time"

	"go.uber.org/atomic"
)

const (
	mutexStateInit = iota + 1
	mutexStateLocked
	mutexStateReleased
)

// Mutex is a single acquisition of a lock key by one owner.
type Mutex interface {
	ID() string
	Key() string
	Timeout() time.Duration
	IsLocked() bool
	TryLock(ctx context.Context) error
	Release(ctx context.Context) error
	ReleaseAfter(ctx context.Context, delay time.Duration) error
}

type lockMutex struct {
	manager *Manager
	state   atomic.Int32

	id      string
	key     string
	timeout time.Duration
}

func newLockMutex(m *Manager, id, key string, timeout time.Duration) *lockMutex {
	mu := &lockMutex{
		manager: m,
		id:      id,
		key:     key,
		timeout: timeout,
	}
	mu.state.Store(mutexStateInit)
	return mu
}

// ID returns the owner token of the mutex.
func (mu *lockMutex) ID() string {
	return mu.id
}

func (mu *lockMutex) Key() string {
	return mu.key
}

// Timeout returns the lease duration requested on TryLock.
func (mu *lockMutex) Timeout() time.Duration {
	return mu.timeout
}

// IsLocked reports whether this handle acquired the lock and has not
// released it yet. It does not consult the store, so a lease that expired
// and was taken over still reports true.
func (mu *lockMutex) IsLocked() bool {
	return mu.state.Load() == mutexStateLocked
}

// TryLock tries to obtain the lock once, it returns ErrNotObtained if the
// lock is already held.
func (mu *lockMutex) TryLock(ctx context.Context) error {
	if mu.state.Load() != mutexStateInit {
		return ErrInvalidArgument
	}
	ok, err := mu.manager.Acquire(ctx, mu.key, mu.id, mu.timeout)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotObtained
	}
	mu.state.Store(mutexStateLocked)
	return nil
}

// Release releases the lock, subsequent calls are no-ops.
func (mu *lockMutex) Release(ctx context.Context) error {
	return mu.ReleaseAfter(ctx, 0)
}

// ReleaseAfter keeps the lock for delay before releasing it.
func (mu *lockMutex) ReleaseAfter(ctx context.Context, delay time.Duration) error {
	if !mu.state.CompareAndSwap(mutexStateLocked, mutexStateReleased) {
		return nil
	}
	if err := mu.manager.ReleaseDelayed(ctx, mu.key, mu.id, delay); err != nil {
		mu.state.Store(mutexStateLocked)
		return err
	}
	return nil
}
