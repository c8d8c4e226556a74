package store

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config selects and parameterizes a persistence backend. The zero value
// resolves to the in-memory backend.
type Config struct {
	// Driver names a registered backend: "memory", "bolt", or "sqlite" when
	// the corresponding packages are linked in.
	Driver string `env:"STATES_STORE_DRIVER" envDefault:"memory"`
	// Path is the backend-specific location (file path for bolt/sqlite,
	// ignored by memory).
	Path string `env:"STATES_STORE_PATH"`
}

// FromEnv loads a Config from environment variables.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("store: parse env: %w", err)
	}
	return cfg, nil
}

// OpenFromEnv is a convenience combining FromEnv and Open.
func OpenFromEnv() (Store, error) {
	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}
	return Open(cfg)
}
