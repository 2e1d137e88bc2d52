package config

import (
	"fmt"
	"os"
)

// Overrides holds values set on the command line. Nil fields were not set.
type Overrides struct {
	Engine    *string
	Headless  *bool
	Verbosity *string
}

// Resolve builds the effective configuration based on precedence:
// CLI flags > Environment variables > Config file > Defaults
func Resolve(path string, getenv func(string) string, o Overrides) (*Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	// Start from defaults with the config file applied
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnv(getenv)

	// CLI values win over everything else when present
	if o.Engine != nil && *o.Engine != "" {
		cfg.Browser.Engine = *o.Engine
	}
	if o.Headless != nil {
		cfg.Browser.Headless = *o.Headless
	}
	if o.Verbosity != nil && *o.Verbosity != "" {
		cfg.Logging.Verbosity = *o.Verbosity
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}
