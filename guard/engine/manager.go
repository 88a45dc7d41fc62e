package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/git-hulk/go-nodup/internal"
	"github.com/git-hulk/go-nodup/metrics"
)

// DefaultReleaseTimeout bounds the store round-trips of a delayed release,
// which runs detached from its caller's context.
const DefaultReleaseTimeout = 3 * time.Second

const tracerName = "github.com/git-hulk/go-nodup/guard/engine"

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the clock used to compute and check lease expiry.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithReleaseTimeout sets the timeout of delayed releases.
func WithReleaseTimeout(timeout time.Duration) Option {
	return func(m *Manager) {
		if timeout > 0 {
			m.releaseTimeout = timeout
		}
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(m *Manager) {
		if tp != nil {
			m.tracer = tp.Tracer(tracerName)
		}
	}
}

// Manager implements the fail-fast TTL lock protocol on top of a Store.
// It keeps no per-key state, so any number of Managers in any number of
// processes may share one store.
type Manager struct {
	store     Store
	scheduler Scheduler

	now            func() time.Time
	releaseTimeout time.Duration
	tracer         trace.Tracer
}

// NewManager creates a Manager. A TimerScheduler with the default bound is
// used when scheduler is nil.
func NewManager(store Store, scheduler Scheduler, opts ...Option) *Manager {
	if scheduler == nil {
		scheduler = NewTimerScheduler(DefaultMaxPending)
	}
	m := &Manager{
		store:          store,
		scheduler:      scheduler,
		now:            time.Now,
		releaseTimeout: DefaultReleaseTimeout,
		tracer:         otel.GetTracerProvider().Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Acquire tries once to take the lock for owner. It returns false without
// waiting if a live lease is held by someone else. Store failures are
// returned as errors and never reported as contention.
func (m *Manager) Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	if key == "" || owner == "" || ttl <= 0 {
		return false, fmt.Errorf("%w: key and owner must be set and ttl positive", ErrInvalidArgument)
	}
	if strings.Contains(owner, RecordDelimiter) {
		return false, fmt.Errorf("%w: owner must not contain %q", ErrInvalidArgument, RecordDelimiter)
	}

	ctx, span := m.tracer.Start(ctx, "Manager.Acquire", trace.WithAttributes(attribute.String("nodup.lock.key", key)))
	defer span.End()

	result, err := m.acquire(ctx, key, owner, ttl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.AcquireCounter.WithLabelValues(metrics.ResultError).Inc()
		return false, err
	}
	span.SetAttributes(attribute.String("nodup.lock.result", result))
	metrics.AcquireCounter.WithLabelValues(result).Inc()
	return result == metrics.ResultAcquired || result == metrics.ResultTakeover, nil
}

func (m *Manager) acquire(ctx context.Context, key, owner string, ttl time.Duration) (string, error) {
	ok, err := m.setNX(ctx, key, owner, ttl)
	if err != nil {
		return "", err
	}
	if ok {
		return metrics.ResultAcquired, nil
	}

	raw, found, err := m.store.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("get lock record: %w", err)
	}
	if !found {
		// The record went away between the two calls, try once more.
		ok, err = m.setNX(ctx, key, owner, ttl)
		if err != nil {
			return "", err
		}
		if ok {
			return metrics.ResultAcquired, nil
		}
		return metrics.ResultContended, nil
	}

	record, err := DecodeRecord(raw)
	if err == nil && !record.Expired(m.now()) {
		return metrics.ResultContended, nil
	}
	if err != nil {
		internal.GetLogger().Printf("Taking over lock[%s] with unreadable record, err: %v", key, err)
	}

	// The lease has elapsed but the store still keeps the key. Only the
	// caller whose write still sees the stale value wins the takeover.
	ok, err = m.store.Replace(ctx, key, raw, EncodeRecord(m.now().Add(ttl), owner), ttl)
	if err != nil {
		return "", fmt.Errorf("replace lock record: %w", err)
	}
	if ok {
		return metrics.ResultTakeover, nil
	}
	return metrics.ResultContended, nil
}

func (m *Manager) setNX(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	ok, err := m.store.SetNX(ctx, key, EncodeRecord(m.now().Add(ttl), owner), ttl)
	if err != nil {
		return false, fmt.Errorf("set lock record: %w", err)
	}
	return ok, nil
}

// Release deletes the lock if it is still held by owner. Releasing an absent
// lock, a malformed record or a lock taken over by another owner is a no-op.
func (m *Manager) Release(ctx context.Context, key, owner string) error {
	if key == "" {
		return nil
	}
	ctx, span := m.tracer.Start(ctx, "Manager.Release", trace.WithAttributes(attribute.String("nodup.lock.key", key)))
	defer span.End()

	result, err := m.release(ctx, key, owner)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.ReleaseCounter.WithLabelValues(metrics.ResultError).Inc()
		return err
	}
	span.SetAttributes(attribute.String("nodup.lock.result", result))
	metrics.ReleaseCounter.WithLabelValues(result).Inc()
	return nil
}

func (m *Manager) release(ctx context.Context, key, owner string) (string, error) {
	raw, found, err := m.store.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("get lock record: %w", err)
	}
	if !found {
		return metrics.ResultAbsent, nil
	}
	record, err := DecodeRecord(raw)
	if err != nil {
		return metrics.ResultAbsent, nil
	}
	if !record.OwnedBy(owner) {
		return metrics.ResultNotOwner, nil
	}

	if cad, ok := m.store.(CompareAndDeleter); ok {
		deleted, err := cad.CompareAndDelete(ctx, key, raw)
		if err != nil {
			return "", fmt.Errorf("delete lock record: %w", err)
		}
		if !deleted {
			return metrics.ResultNotOwner, nil
		}
		return metrics.ResultReleased, nil
	}
	if err := m.store.Delete(ctx, key); err != nil {
		return "", fmt.Errorf("delete lock record: %w", err)
	}
	return metrics.ResultReleased, nil
}

// ReleaseDelayed keeps the lock for delay and then releases it on the
// scheduler. A non-positive delay releases immediately. If the release
// cannot be scheduled the error wraps ErrScheduleFailed and the key stays
// locked until its TTL runs out.
func (m *Manager) ReleaseDelayed(ctx context.Context, key, owner string, delay time.Duration) error {
	if delay <= 0 {
		return m.Release(ctx, key, owner)
	}
	if key == "" {
		return nil
	}
	parent := context.WithoutCancel(ctx)
	err := m.scheduler.Schedule(delay, func() {
		releaseCtx, cancel := context.WithTimeout(parent, m.releaseTimeout)
		defer cancel()
		if err := m.Release(releaseCtx, key, owner); err != nil {
			internal.GetLogger().Printf("Failed to release lock[%s] after %s, err: %v", key, delay, err)
		}
	})
	if err != nil {
		metrics.ScheduleFailureCounter.Inc()
		internal.GetLogger().Printf("Lock[%s] is kept until it expires, failed to schedule release: %v", key, err)
		return fmt.Errorf("%w for lock[%s]: %w", ErrScheduleFailed, key, err)
	}
	return nil
}

// Inspect returns the record currently stored under key.
func (m *Manager) Inspect(ctx context.Context, key string) (Record, bool, error) {
	raw, found, err := m.store.Get(ctx, key)
	if err != nil || !found {
		return Record{}, false, err
	}
	record, err := DecodeRecord(raw)
	if err != nil {
		return Record{}, true, err
	}
	return record, true, nil
}

// TryLock acquires key with a freshly generated owner and returns a handle
// bound to it, or ErrNotObtained if the lock is held.
func (m *Manager) TryLock(ctx context.Context, key string, ttl time.Duration) (Mutex, error) {
	mu := newLockMutex(m, uuid.NewString(), key, ttl)
	if err := mu.TryLock(ctx); err != nil {
		return nil, err
	}
	return mu, nil
}
