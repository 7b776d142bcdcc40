package ledger

import "errors"

// Sentinel kinds for ledger errors.
var (
	ErrWrite         = errors.New("attendance write failed")
	ErrRead          = errors.New("attendance read failed")
	ErrInvalidRecord = errors.New("invalid attendance record")
	ErrNoDirectory   = errors.New("ledger directory is required")
)
