package consensus

import "github.com/okian/facetally/pkg/logger"

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithPolicy sets the acceptance thresholds.
func WithPolicy(p Policy) Option {
	return func(e *Engine) {
		e.policy = p
	}
}

// WithLogger sets the engine logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMaxFrames caps how many frames of one session are looked at. Extra
// frames are ignored. Zero means no cap.
func WithMaxFrames(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.maxFrames = n
		}
	}
}

// WithSessionIDFunc overrides session ID generation.
func WithSessionIDFunc(fn func() string) Option {
	return func(e *Engine) {
		if fn != nil {
			e.newSessionID = fn
		}
	}
}
