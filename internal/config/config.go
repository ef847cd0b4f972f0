// Package config loads per-process configuration from environment
// variables, with an optional .env file for local development:
// caarlos0/env struct tags for parsing and defaults, joho/godotenv for
// the optional file, and a Validate step for checks struct tags can't
// express.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Validatable is implemented by per-service config structs that have
// range/enum checks beyond what struct tags express.
type Validatable interface {
	Validate() error
}

// Load reads a .env file if present (ignored if missing — production
// deployments set real environment variables) and parses env vars into
// cfg, which must be a pointer to a struct tagged for github.com/caarlos0/env.
func Load(cfg any) error {
	if err := godotenv.Load(); err != nil {
		// Optional; production runs on real env vars.
	}

	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("config: parse: %w", err)
	}

	if v, ok := cfg.(Validatable); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("config: validate: %w", err)
		}
	}

	return nil
}
