package guard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/git-hulk/go-nodup/guard/engine"
	"github.com/git-hulk/go-nodup/internal"
	"github.com/git-hulk/go-nodup/metrics"
)

type Option func(*Guard)

// WithOwnerFunc overrides the owner token generator. Tokens must be unique
// per call and must not contain engine.RecordDelimiter.
func WithOwnerFunc(fn func() string) Option {
	return func(g *Guard) {
		if fn != nil {
			g.newOwner = fn
		}
	}
}

// WithReleaseTimeout bounds the store round-trips of an immediate release.
func WithReleaseTimeout(timeout time.Duration) Option {
	return func(g *Guard) {
		if timeout > 0 {
			g.releaseTimeout = timeout
		}
	}
}

// Guard rejects concurrent or repeated calls of registered operations that
// derive the same lock key.
type Guard struct {
	manager        *engine.Manager
	newOwner       func() string
	releaseTimeout time.Duration

	mu      sync.RWMutex
	configs map[string]Config
}

// New is used to create a guard on top of a lock manager
func New(manager *engine.Manager, opts ...Option) (*Guard, error) {
	if manager == nil {
		return nil, errors.New("lock manager cannot be nil")
	}
	g := &Guard{
		manager:        manager,
		newOwner:       uuid.NewString,
		releaseTimeout: engine.DefaultReleaseTimeout,
		configs:        make(map[string]Config),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Register validates cfg and binds it to op, replacing any previous config.
func (g *Guard) Register(op string, cfg Config) error {
	if op == "" {
		return fmt.Errorf("%w: operation name cannot be empty", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("operation %s: %w", op, err)
	}
	if len(cfg.Key.Params) == 0 && len(cfg.Key.Fields) == 0 {
		internal.GetLogger().Printf("Operation %s has no identifying arguments, all its calls share lock[%s]", op, cfg.Prefix)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.configs[op] = cfg.withDefaults()
	return nil
}

func (g *Guard) Lookup(op string) (Config, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	cfg, ok := g.configs[op]
	return cfg, ok
}

// Do runs fn under the lock of call, see Run.
func (g *Guard) Do(ctx context.Context, call Call, fn func(ctx context.Context) error) error {
	_, err := Run(ctx, g, call, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Run derives the lock key of call, takes the lock with a fresh owner and
// runs fn while holding it.
//
// It fails with ErrLockContention when the key is held, with
// ErrLockUnavailable when the store cannot be reached, and with an
// *OperationError when fn fails or panics. Once the lock is taken it is
// released on every path, after the configured release delay, and a
// release failure is joined to the returned error.
func Run[T any](ctx context.Context, g *Guard, call Call, fn func(ctx context.Context) (T, error)) (result T, err error) {
	cfg, ok := g.Lookup(call.Operation)
	if !ok {
		return result, fmt.Errorf("%w: %s", ErrUnknownOperation, call.Operation)
	}
	if err := cfg.Validate(); err != nil {
		return result, fmt.Errorf("operation %s: %w", call.Operation, err)
	}

	key, degenerate := DeriveKey(cfg.Prefix, cfg.Delimiter, cfg.Key, call)
	if degenerate {
		internal.GetLogger().Printf("No identifying value in call of %s, falling back to global lock[%s]", call.Operation, key)
	}
	owner := g.newOwner()

	acquired, err := g.manager.Acquire(ctx, key, owner, cfg.TTL)
	if err != nil {
		metrics.GuardCounter.WithLabelValues(call.Operation, metrics.ResultError).Inc()
		return result, fmt.Errorf("%w: acquire lock[%s]: %w", ErrLockUnavailable, key, err)
	}
	if !acquired {
		metrics.GuardCounter.WithLabelValues(call.Operation, metrics.ResultRejected).Inc()
		return result, fmt.Errorf("%w: lock[%s]", ErrLockContention, key)
	}

	defer func() {
		if releaseErr := g.release(ctx, key, owner, cfg.ReleaseDelay); releaseErr != nil {
			err = errors.Join(err, releaseErr)
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			err = &OperationError{Operation: call.Operation, Key: key, Err: fmt.Errorf("panic: %v", r)}
		}
		if err != nil {
			metrics.GuardCounter.WithLabelValues(call.Operation, metrics.ResultFailed).Inc()
		} else {
			metrics.GuardCounter.WithLabelValues(call.Operation, metrics.ResultSuccess).Inc()
		}
	}()

	result, err = fn(ctx)
	if err != nil {
		return result, &OperationError{Operation: call.Operation, Key: key, Err: err}
	}
	return result, nil
}

// release runs detached from the caller's cancellation, a canceled request
// must not leave its lock behind.
func (g *Guard) release(ctx context.Context, key, owner string, delay time.Duration) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.releaseTimeout)
	defer cancel()
	if err := g.manager.ReleaseDelayed(ctx, key, owner, delay); err != nil {
		internal.GetLogger().Printf("Failed to release lock[%s], err: %v", key, err)
		return err
	}
	return nil
}
