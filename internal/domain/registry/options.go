package registry

import "github.com/okian/facetally/pkg/logger"

// Option applies a configuration option to the Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithInitial publishes s as the first snapshot instead of an empty one.
func WithInitial(s *Snapshot) Option {
	return func(r *Registry) {
		if s != nil {
			r.snapshot.Store(s)
		}
	}
}
