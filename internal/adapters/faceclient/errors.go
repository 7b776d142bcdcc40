package faceclient

import "errors"

// Sentinel kinds for face service errors.
var (
	ErrUndecodable    = errors.New("undecodable image")
	ErrEmptyCrop      = errors.New("face region is empty")
	ErrEmptyEmbedding = errors.New("empty embedding returned")
	ErrService        = errors.New("face service error")
)
