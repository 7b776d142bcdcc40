package worker

import "errors"

// Sentinel kinds for worker errors.
var (
	ErrPanic = errors.New("processor panicked")
)
