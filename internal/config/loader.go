package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment variable names.
const (
	EnvPrefix = "FACETALLY_"
	EnvConfig = EnvPrefix + "CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if FACETALLY_CONFIG is set
//  3. env (prefix FACETALLY_)
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	k := koanf.New(".")

	if path := os.Getenv(EnvConfig); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// FACETALLY_PER_FRAME_SIM -> per_frame_sim. Underscores are kept so keys
	// stay flat and match the koanf tags.
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.PerFrameSim < -1 || c.PerFrameSim > 1:
		return fmt.Errorf("%w: per_frame_sim must be within [-1, 1]", ErrInvalidConfig)
	case c.InstantSim < -1 || c.InstantSim > 1:
		return fmt.Errorf("%w: instant_sim must be within [-1, 1]", ErrInvalidConfig)
	case c.InstantSim < c.PerFrameSim:
		return fmt.Errorf("%w: instant_sim must not be below per_frame_sim", ErrInvalidConfig)
	case c.ConsensusFrames < 1:
		return fmt.Errorf("%w: consensus_frames must be at least 1", ErrInvalidConfig)
	case c.MaxUnknownFrames < 1:
		return fmt.Errorf("%w: max_unknown_frames must be at least 1", ErrInvalidConfig)
	case c.MaxFramesPerSession < 0:
		return fmt.Errorf("%w: max_frames_per_session must not be negative", ErrInvalidConfig)
	case strings.TrimSpace(c.LedgerDir) == "":
		return fmt.Errorf("%w: ledger_dir must not be empty", ErrInvalidConfig)
	case strings.TrimSpace(c.RegistryPath) == "":
		return fmt.Errorf("%w: registry_path must not be empty", ErrInvalidConfig)
	case c.FaceSize < 1:
		return fmt.Errorf("%w: face_size must be positive", ErrInvalidConfig)
	case c.MinFaceSize < 0:
		return fmt.Errorf("%w: min_face_size must not be negative", ErrInvalidConfig)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return fmt.Errorf("%w: log_format must be text or json", ErrInvalidConfig)
	}
	return nil
}
