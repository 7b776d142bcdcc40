// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Load layers a YAML file and FACETALLY_ environment variables on top.
// - Errors wrap this package's sentinel kinds.
package config

import (
	"context"
	"runtime"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// Acceptance thresholds of a recognition session.
	PerFrameSim      float64 `koanf:"per_frame_sim"`
	ConsensusFrames  int     `koanf:"consensus_frames"`
	InstantSim       float64 `koanf:"instant_sim"`
	MaxUnknownFrames int     `koanf:"max_unknown_frames"`

	// MaxFramesPerSession caps how many frames of one request are looked at.
	// Zero means no cap.
	MaxFramesPerSession int `koanf:"max_frames_per_session"`

	// LedgerDir holds the Attendance_DD-MM-YYYY.csv files.
	LedgerDir string `koanf:"ledger_dir"`

	// LedgerOncePerDay records each identity at most once per day.
	LedgerOncePerDay bool `koanf:"ledger_once_per_day"`

	// RegistryPath is the bbolt file holding enrolled centroids.
	RegistryPath string `koanf:"registry_path"`

	// EmbedderURL is the base URL of the face service.
	EmbedderURL string `koanf:"embedder_url"`

	// EmbedderTimeoutMS bounds each call to the face service.
	EmbedderTimeoutMS int `koanf:"embedder_timeout_ms"`

	// FaceSize is the square side face crops are resized to.
	FaceSize int `koanf:"face_size"`

	// MinFaceSize drops smaller detections.
	MinFaceSize int `koanf:"min_face_size"`

	// WorkerCount sets the number of recognition workers.
	WorkerCount int `koanf:"worker_count"`

	// QueueSize bounds the sessions waiting for a worker.
	QueueSize int `koanf:"queue_size"`

	// DedupeSize sets the size of the once-per-day cache.
	DedupeSize int `koanf:"dedupe_size"`
}

// New creates a Config holding the defaults. Context is accepted first to
// satisfy the project-wide convention and is currently unused.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":9080",
		PerFrameSim:         0.60,
		ConsensusFrames:     2,
		InstantSim:          0.82,
		MaxUnknownFrames:    2,
		MaxFramesPerSession: 30,
		LedgerDir:           "data/Attendance",
		LedgerOncePerDay:    false,
		RegistryPath:        "data/registry.db",
		EmbedderURL:         "http://localhost:8000",
		EmbedderTimeoutMS:   10_000,
		FaceSize:            160,
		MinFaceSize:         60,
		WorkerCount:         runtime.NumCPU() * 2,
		QueueSize:           256,
		DedupeSize:          10_000,
	}
}

// EmbedderTimeout returns EmbedderTimeoutMS as a duration.
func (c *Config) EmbedderTimeout() time.Duration {
	return time.Duration(c.EmbedderTimeoutMS) * time.Millisecond
}
