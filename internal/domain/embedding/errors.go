package embedding

import "errors"

// Sentinel kinds for vector errors.
var (
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrNoSamples         = errors.New("no samples")
	ErrEmptyVector       = errors.New("empty embedding")
)
