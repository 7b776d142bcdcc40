package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/facetally/internal/domain/embedding"
	"github.com/okian/facetally/pkg/logger"
	"github.com/okian/facetally/pkg/metrics"
)

// Loader produces the persisted centroid set.
type Loader interface {
	Load(ctx context.Context) (map[string]embedding.Vector, error)
}

// Registry publishes the current Snapshot. Reads are lock free; writers are
// serialized so reloads never interleave.
type Registry struct {
	snapshot atomic.Pointer[Snapshot]
	writeMu  sync.Mutex
	logger   logger.Logger
}

// New returns a registry holding an empty snapshot unless WithInitial is given.
func New(opts ...Option) *Registry {
	r := &Registry{logger: logger.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	if r.snapshot.Load() == nil {
		r.snapshot.Store(&Snapshot{builtAt: time.Now()})
	}
	metrics.UpdateRegistryIdentities(r.Current().Len())
	return r
}

// Current returns the published snapshot. It is never nil.
func (r *Registry) Current() *Snapshot {
	return r.snapshot.Load()
}

// Swap publishes s and returns the snapshot it replaced. A nil or empty s is
// refused and the current snapshot stays.
func (r *Registry) Swap(s *Snapshot) (*Snapshot, error) {
	if s == nil || s.Len() == 0 {
		metrics.RecordRegistryReloadError()
		return nil, fmt.Errorf("%w: %w", ErrRebuild, ErrEmptyRegistry)
	}
	r.writeMu.Lock()
	old := r.snapshot.Swap(s)
	r.writeMu.Unlock()

	metrics.RecordRegistrySwap()
	metrics.UpdateRegistryIdentities(s.Len())
	r.logger.Info(context.Background(), "registry swapped",
		logger.Int("identities", s.Len()),
		logger.Int("dim", s.Dim()),
		logger.Int("previous", old.Len()))
	return old, nil
}

// Reload loads centroids from l, builds a snapshot and swaps it in. On any
// failure the error wraps ErrRebuild and the last good snapshot stays.
func (r *Registry) Reload(ctx context.Context, l Loader) (*Snapshot, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRegistryReloadDuration(float64(time.Since(start).Milliseconds()))
	}()

	centroids, err := l.Load(ctx)
	if err != nil {
		return nil, r.reloadFailed(ctx, fmt.Errorf("%w: load: %w", ErrRebuild, err))
	}
	if len(centroids) == 0 {
		return nil, r.reloadFailed(ctx, fmt.Errorf("%w: %w", ErrRebuild, ErrEmptyRegistry))
	}
	s, err := NewSnapshot(centroids)
	if err != nil {
		return nil, r.reloadFailed(ctx, fmt.Errorf("%w: %w", ErrRebuild, err))
	}
	if _, err := r.Swap(s); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *Registry) reloadFailed(ctx context.Context, err error) error {
	metrics.RecordRegistryReloadError()
	level := r.logger.Error
	if errors.Is(err, ErrEmptyRegistry) {
		level = r.logger.Warn
	}
	level(ctx, "registry reload failed, keeping current snapshot",
		logger.Error(err),
		logger.Int("identities", r.Current().Len()))
	return err
}
