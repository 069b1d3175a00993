package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const defaultRetryInterval = time.Minute

// FailoverBackend serves from primary and switches to fallback when primary
// fails. While down, primary is retried once per retry interval.
//
// Invalidations always reach fallback. Those that could not reach primary are
// replayed before primary serves again.
type FailoverBackend struct {
	primary  Backend
	fallback Backend
	logger   *zerolog.Logger

	isDown        atomic.Bool
	mu            sync.Mutex
	lastCheck     time.Time
	retryInterval time.Duration
	pending       map[string]struct{}
}

func NewFailoverBackend(primary, fallback Backend, logger *zerolog.Logger) *FailoverBackend {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &FailoverBackend{
		primary:       primary,
		fallback:      fallback,
		logger:        logger,
		retryInterval: defaultRetryInterval,
		pending:       make(map[string]struct{}),
	}
}

// usePrimary reports whether primary should be tried, replaying missed
// invalidations when it is due for a retry.
func (f *FailoverBackend) usePrimary(ctx context.Context) bool {
	if !f.isDown.Load() {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if time.Since(f.lastCheck) < f.retryInterval {
		return false
	}
	f.lastCheck = time.Now()
	for tag := range f.pending {
		if err := f.primary.InvalidateTag(ctx, tag); err != nil {
			return false
		}
		delete(f.pending, tag)
	}
	return true
}

func (f *FailoverBackend) markDown(err error) {
	if !f.isDown.Swap(true) {
		f.logger.Warn().Err(err).Msg("Cache primary failed, switching to fallback")
	}
	f.mu.Lock()
	f.lastCheck = time.Now()
	f.mu.Unlock()
}

func (f *FailoverBackend) markUp() {
	if f.isDown.Swap(false) {
		f.logger.Info().Msg("Cache primary recovered")
	}
}

func (f *FailoverBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if f.usePrimary(ctx) {
		val, err := f.primary.Get(ctx, key)
		if err == nil || errors.Is(err, ErrMiss) {
			f.markUp()
			return val, err
		}
		f.markDown(err)
	}
	return f.fallback.Get(ctx, key)
}

func (f *FailoverBackend) Set(ctx context.Context, tag, key string, val []byte, ttl time.Duration) error {
	if f.usePrimary(ctx) {
		err := f.primary.Set(ctx, tag, key, val, ttl)
		if err == nil {
			f.markUp()
			return nil
		}
		f.markDown(err)
	}
	return f.fallback.Set(ctx, tag, key, val, ttl)
}

func (f *FailoverBackend) InvalidateTag(ctx context.Context, tag string) error {
	fbErr := f.fallback.InvalidateTag(ctx, tag)
	if f.usePrimary(ctx) {
		err := f.primary.InvalidateTag(ctx, tag)
		if err == nil {
			f.markUp()
			return fbErr
		}
		f.markDown(err)
	}
	f.mu.Lock()
	f.pending[tag] = struct{}{}
	f.mu.Unlock()
	return fbErr
}

// Down reports whether the fallback is serving.
func (f *FailoverBackend) Down() bool {
	return f.isDown.Load()
}
