// Package enroll builds the identity registry from a directory of face crops
// and writes it to the registry store.
package enroll

import (
	"io"
	"time"
)

// Config holds the settings of one registry build.
type Config struct {
	UsersDir  string        // one sub-directory of face crops per identity
	OutPath   string        // bbolt registry file
	BaseURL   string        // face service
	ReloadURL string        // optional running server to reload afterwards
	FaceSize  int           // square side crops are resized to
	Timeout   time.Duration // per request
	Workers   int           // concurrent embedding requests
	Verbose   bool
	Progress  io.Writer // progress bar output, nil disables it
}

// Stats summarizes a build.
type Stats struct {
	Identities      int
	Skipped         []string // identities without one usable image
	ImagesEmbedded  int
	ImagesUnusable  int
	ReloadedServing []string // names reported by the reloaded server
	StartTime       time.Time
	Duration        time.Duration
}
