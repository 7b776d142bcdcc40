package model

import "errors"

// Sentinel kinds for model errors.
var (
	ErrUndecodableFrame = errors.New("undecodable frame")
)
