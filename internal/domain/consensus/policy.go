package consensus

import "fmt"

// Default acceptance thresholds.
const (
	DefaultPerFrameSim      = 0.60
	DefaultConsensusFrames  = 2
	DefaultInstantSim       = 0.82
	DefaultMaxUnknownFrames = 2
)

// Policy holds the acceptance thresholds of a session.
type Policy struct {
	// PerFrameSim is the minimum similarity for a frame to count as evidence.
	PerFrameSim float64
	// ConsensusFrames is how many qualifying frames one identity needs.
	ConsensusFrames int
	// InstantSim accepts on a single frame at or above it.
	InstantSim float64
	// MaxUnknownFrames stops the session once reached.
	MaxUnknownFrames int
}

// DefaultPolicy returns the stock thresholds.
func DefaultPolicy() Policy {
	return Policy{
		PerFrameSim:      DefaultPerFrameSim,
		ConsensusFrames:  DefaultConsensusFrames,
		InstantSim:       DefaultInstantSim,
		MaxUnknownFrames: DefaultMaxUnknownFrames,
	}
}

// Validate checks the thresholds are usable.
func (p Policy) Validate() error {
	switch {
	case p.PerFrameSim < -1 || p.PerFrameSim > 1:
		return fmt.Errorf("%w: per-frame similarity %v outside [-1, 1]", ErrInvalidPolicy, p.PerFrameSim)
	case p.InstantSim < -1 || p.InstantSim > 1:
		return fmt.Errorf("%w: instant similarity %v outside [-1, 1]", ErrInvalidPolicy, p.InstantSim)
	case p.InstantSim < p.PerFrameSim:
		return fmt.Errorf("%w: instant similarity %v below per-frame similarity %v", ErrInvalidPolicy, p.InstantSim, p.PerFrameSim)
	case p.ConsensusFrames < 1:
		return fmt.Errorf("%w: consensus frames must be at least 1", ErrInvalidPolicy)
	case p.MaxUnknownFrames < 1:
		return fmt.Errorf("%w: max unknown frames must be at least 1", ErrInvalidPolicy)
	}
	return nil
}
