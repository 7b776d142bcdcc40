package service

import (
	"time"

	"github.com/okian/facetally/internal/domain/registry"
	"github.com/okian/facetally/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of recognition workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets how many sessions may wait for a worker.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the once-per-day cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithOncePerDay records each identity at most once per calendar day. Off by
// default: every accepted session appends a row. When the ledger can be read
// back, an identity missing from the in-memory guard is looked up in the day's
// file, so restarts and guard evictions do not produce a second row.
func WithOncePerDay(on bool) Option {
	return func(s *Service) {
		s.oncePerDay = on
	}
}

// WithLoader sets where ReloadRegistry reads centroids from.
func WithLoader(l registry.Loader) Option {
	return func(s *Service) {
		s.loader = l
	}
}

// WithClock overrides the time source used to stamp attendance.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
