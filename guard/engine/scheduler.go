package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/git-hulk/go-nodup/internal"
	"github.com/git-hulk/go-nodup/metrics"
)

const (
	schedulerStateRunning = iota + 1
	schedulerStateClosed
)

// DefaultMaxPending bounds the number of delayed releases a TimerScheduler
// keeps in flight when no explicit limit is given.
const DefaultMaxPending = 4096

// Scheduler runs fn once after delay without blocking the caller.
type Scheduler interface {
	Schedule(delay time.Duration, fn func()) error
}

// TimerScheduler is a Scheduler backed by one runtime timer per task. It
// refuses new tasks once maxPending tasks are waiting instead of queueing
// them, so the caller learns that its release was not scheduled.
type TimerScheduler struct {
	maxPending int64

	mu      sync.Mutex
	state   atomic.Int32
	pending atomic.Int64
	wg      sync.WaitGroup
}

// NewTimerScheduler creates a scheduler accepting at most maxPending
// outstanding tasks, DefaultMaxPending is used if maxPending <= 0.
func NewTimerScheduler(maxPending int) *TimerScheduler {
	if maxPending <= 0 {
		maxPending = DefaultMaxPending
	}
	s := &TimerScheduler{maxPending: int64(maxPending)}
	s.state.Store(schedulerStateRunning)
	return s
}

func (s *TimerScheduler) Schedule(delay time.Duration, fn func()) error {
	if fn == nil {
		return ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Load() == schedulerStateClosed {
		return ErrSchedulerClosed
	}
	if s.pending.Load() >= s.maxPending {
		return ErrSchedulerFull
	}
	s.pending.Inc()
	s.wg.Add(1)
	metrics.DelayedReleaseGauge.Inc()
	time.AfterFunc(delay, func() {
		defer func() {
			if r := recover(); r != nil {
				internal.GetLogger().Printf("Scheduled task panicked: %v", r)
			}
			s.pending.Dec()
			metrics.DelayedReleaseGauge.Dec()
			s.wg.Done()
		}()
		fn()
	})
	return nil
}

// Pending returns the number of scheduled tasks that have not finished yet.
func (s *TimerScheduler) Pending() int {
	return int(s.pending.Load())
}

// Shutdown stops accepting tasks and waits until the pending ones have run
// or ctx is done. Pending tasks still fire at their scheduled time.
func (s *TimerScheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.state.Store(schedulerStateClosed)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
