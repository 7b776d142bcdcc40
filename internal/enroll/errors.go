package enroll

import "errors"

// Sentinel kinds for build errors.
var (
	ErrNoUsersDir   = errors.New("users directory not readable")
	ErrNoIdentities = errors.New("no identity has a usable image")
	ErrReload       = errors.New("server reload failed")
)
