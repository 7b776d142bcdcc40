package registry

import "errors"

// Sentinel kinds for registry errors.
var (
	ErrDimensionMismatch = errors.New("embedding dimension does not match registry")
	ErrRebuild           = errors.New("registry rebuild failed")
	ErrEmptyRegistry     = errors.New("registry has no identities")
	ErrInvalidName       = errors.New("invalid identity name")
	ErrDuplicateIdentity = errors.New("duplicate identity")
)
