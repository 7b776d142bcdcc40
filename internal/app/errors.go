package service

import "errors"

// Sentinel kinds for service errors.
var (
	// ErrAttendanceNotRecorded means the identity was accepted but the ledger
	// write failed. The verdict is still returned alongside it.
	ErrAttendanceNotRecorded = errors.New("attendance not recorded")
	ErrBackpressure          = errors.New("recognition queue is full")
	ErrNotStarted            = errors.New("service not started")
	ErrNoLoader              = errors.New("no registry loader configured")
	ErrNoHistory             = errors.New("ledger cannot be read back")
)
