// Package service wires the consensus engine, the attendance ledger and the
// identity registry behind the operations the HTTP API exposes.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/okian/facetally/internal/adapters/ledger"
	jobqueue "github.com/okian/facetally/internal/adapters/mq/queue"
	workerpool "github.com/okian/facetally/internal/adapters/mq/worker"
	"github.com/okian/facetally/internal/domain/consensus"
	"github.com/okian/facetally/internal/domain/dedupe"
	"github.com/okian/facetally/internal/domain/model"
	"github.com/okian/facetally/internal/domain/registry"
	"github.com/okian/facetally/internal/domain/types"
	"github.com/okian/facetally/pkg/logger"
	"github.com/okian/facetally/pkg/metrics"
)

// Engine decides a session verdict from frames.
type Engine interface {
	Run(ctx context.Context, frames []model.Frame) (model.Verdict, error)
}

// History reads back a day of attendance.
type History interface {
	Read(ctx context.Context, day time.Time) ([]model.AttendanceRecord, error)
}

// Outcome is the result of one recognition request.
type Outcome struct {
	Verdict model.Verdict
	// Recorded is true when a ledger row was written for this session.
	Recorded bool
}

// Service implements the API dependencies for attendance recognition.
type Service struct {
	mu sync.RWMutex

	engine   Engine
	ledger   ledger.Ledger
	registry *registry.Registry
	loader   registry.Loader
	deduper  dedupe.Deduper
	queue    *jobqueue.InMemoryQueue
	pool     *workerpool.Pool

	workerCount int
	queueSize   int
	dedupeSize  int
	oncePerDay  bool
	now         func() time.Time

	started bool
	logger  logger.Logger
}

// New constructs a Service around its collaborators.
func New(engine Engine, l ledger.Ledger, reg *registry.Registry, opts ...Option) *Service {
	s := &Service{
		engine:      engine,
		ledger:      l,
		registry:    reg,
		workerCount: runtime.NumCPU() * 2,
		queueSize:   256,
		dedupeSize:  10000,
		now:         time.Now,
		logger:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start creates the job queue and starts the worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.oncePerDay {
		s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	}
	s.queue = jobqueue.NewInMemoryQueue(jobqueue.WithCapacity(s.queueSize))
	s.pool = workerpool.NewPool(s.workerCount, s.queue, workerpool.ProcessorFunc(s.process),
		workerpool.WithLogger(s.logger))
	s.pool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "recognition service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queue_size", s.queueSize),
		logger.Bool("once_per_day", s.oncePerDay),
		logger.Int("identities", s.registry.Current().Len()))
	return nil
}

// Stop drains queued sessions and stops the workers.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping recognition service...")
	err := s.pool.Shutdown(ctx)
	s.started = false
	s.logger.Info(ctx, "recognition service stopped")
	return err
}

// Recognize runs a session over frames on the worker pool and waits for the
// outcome. When the identity is accepted but the ledger write fails, the
// outcome is returned together with an error wrapping
// ErrAttendanceNotRecorded.
func (s *Service) Recognize(ctx context.Context, frames []model.Frame) (Outcome, error) {
	if len(frames) == 0 {
		return Outcome{}, consensus.ErrNoFrames
	}

	s.mu.RLock()
	started, q := s.started, s.queue
	s.mu.RUnlock()
	if !started {
		return Outcome{}, ErrNotStarted
	}

	job := jobqueue.NewJob(ctx, frames)
	if err := q.Enqueue(ctx, job); err != nil {
		switch {
		case errors.Is(err, jobqueue.ErrFull):
			s.logger.Warn(ctx, "recognition rejected, queue full", logger.Int("queue_size", s.queueSize))
			return Outcome{}, fmt.Errorf("%w: %w", ErrBackpressure, err)
		case errors.Is(err, jobqueue.ErrClosed):
			return Outcome{}, ErrNotStarted
		}
		return Outcome{}, err
	}

	select {
	case res := <-job.Result:
		return Outcome{Verdict: res.Verdict, Recorded: res.Recorded}, res.Err
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// process is run by a worker for every queued job.
func (s *Service) process(ctx context.Context, j jobqueue.Job) jobqueue.Result { //nolint:gocritic // hugeParam: Job is passed by value for channel semantics
	v, err := s.engine.Run(ctx, j.Frames)
	if err != nil {
		return jobqueue.Result{Err: err}
	}
	rec, ok := model.RecordFromVerdict(v, s.now())
	if !ok {
		return jobqueue.Result{Verdict: v}
	}
	recorded, err := s.record(ctx, rec)
	if err != nil {
		metrics.RecordErrorByComponent("service", "attendance_not_recorded")
		return jobqueue.Result{Verdict: v, Err: fmt.Errorf("%w: %w", ErrAttendanceNotRecorded, err)}
	}
	return jobqueue.Result{Verdict: v, Recorded: recorded}
}

// record writes rec unless the once-per-day guard already saw it today.
func (s *Service) record(ctx context.Context, rec model.AttendanceRecord) (bool, error) {
	if s.deduper == nil {
		return true, s.ledger.Record(ctx, rec)
	}
	key := dedupe.Key(rec.Time, rec.Name)
	if s.deduper.SeenAndRecord(ctx, key) || s.loggedToday(ctx, rec) {
		metrics.RecordLedgerSkipped()
		s.logger.Debug(ctx, "attendance already recorded today", logger.String("name", rec.Name))
		return false, nil
	}
	if err := s.ledger.Record(ctx, rec); err != nil {
		s.deduper.Unrecord(ctx, key)
		return false, err
	}
	return true, nil
}

// loggedToday reports whether the ledger already holds a row for rec's name on
// rec's day. It covers guard entries lost to a restart or to eviction. A read
// failure counts as not logged.
func (s *Service) loggedToday(ctx context.Context, rec model.AttendanceRecord) bool {
	h, ok := s.ledger.(History)
	if !ok {
		return false
	}
	recs, err := h.Read(ctx, rec.Time)
	if err != nil {
		s.logger.Warn(ctx, "attendance history unreadable", logger.String("name", rec.Name), logger.Error(err))
		return false
	}
	for _, r := range recs {
		if r.Name == rec.Name {
			return true
		}
	}
	return false
}

// ReloadRegistry rebuilds the registry from the configured loader. On
// failure the current registry keeps serving.
func (s *Service) ReloadRegistry(ctx context.Context) (*registry.Snapshot, error) {
	if s.loader == nil {
		return nil, ErrNoLoader
	}
	return s.registry.Reload(ctx, s.loader)
}

// Identities lists the enrolled identities of the current snapshot.
func (s *Service) Identities(ctx context.Context) []types.Identity {
	snap := s.registry.Current()
	out := make([]types.Identity, 0, snap.Len())
	for _, name := range snap.Names() {
		out = append(out, types.Identity{Name: name, Dim: snap.Dim()})
	}
	return out
}

// Attendance returns the records of the calendar day of day.
func (s *Service) Attendance(ctx context.Context, day time.Time) ([]model.AttendanceRecord, error) {
	h, ok := s.ledger.(History)
	if !ok {
		return nil, ErrNoHistory
	}
	return h.Read(ctx, day)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.registry.Current()
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"oncePerDay":  s.oncePerDay,
		"identities":  snap.Len(),
		"dim":         snap.Dim(),
		"registryAt":  snap.BuiltAt().UTC().Format(time.RFC3339),
	}
	if s.started {
		stats["queueLength"] = s.queue.Len(context.Background())
	}
	if s.deduper != nil {
		stats["dedupeEntries"] = s.deduper.Size()
	}
	return stats
}
