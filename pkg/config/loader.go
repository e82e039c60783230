package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Validatable is implemented by configs that check cross-field constraints
// after the environment has been parsed.
type Validatable interface {
	Validate() error
}

// Load parses environment variables into the provided struct.
// The struct should use `env` tags to define mappings.
//
// Example:
//
//	type Config struct {
//	    HTTPPort     int           `env:"HTTP_PORT" envDefault:"8080"`
//	    PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"1s"`
//	}
func Load(cfg any) error {
	return LoadWithPrefix(cfg, "")
}

// LoadWithPrefix is like Load but only reads variables that start with prefix,
// e.g. "TABLEORDER_". The prefix is stripped before tag matching.
func LoadWithPrefix(cfg any, prefix string) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: prefix}); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if v, ok := cfg.(Validatable); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("validate config: %w", err)
		}
	}
	return nil
}
