package registrystore

import "errors"

// Sentinel kinds for registry store errors.
var (
	ErrNoPath        = errors.New("registry store path is required")
	ErrCorruptRecord = errors.New("corrupt centroid record")
	ErrEmptySnapshot = errors.New("refusing to save an empty registry")
)
