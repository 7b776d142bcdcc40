package consensus

import "errors"

// Sentinel kinds for consensus errors.
var (
	ErrNoFrames      = errors.New("no frames received")
	ErrInvalidPolicy = errors.New("invalid consensus policy")
	ErrNoDetector    = errors.New("detector is required")
	ErrNoEmbedder    = errors.New("embedder is required")
	ErrNoRegistry    = errors.New("registry is required")
)
