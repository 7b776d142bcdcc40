package registrystore

import (
	"time"

	"github.com/okian/facetally/pkg/logger"
)

// Option applies a configuration option to the BoltStore.
type Option func(*BoltStore)

// WithLockTimeout bounds how long opening the file waits for its lock.
func WithLockTimeout(d time.Duration) Option {
	return func(s *BoltStore) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(s *BoltStore) {
		if l != nil {
			s.logger = l
		}
	}
}
