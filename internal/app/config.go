package app

import "errors"

// Config holds everything an App instance needs to run, as assembled by the
// CLI layer.
type Config struct {
	ConfigPath string
	LogDir     string
	PcapDir    string

	// CLI controls whether an interactive session opens after startup.
	// Default true; disabling it leaves the network running headless.
	CLI bool

	// EmptyP4 substitutes a bundled no-op program for every program in
	// the document, for debugging topologies without forwarding logic.
	EmptyP4 bool

	LogFormat string
	LogLevel  string
}

// NewConfig validates a config assembled by the caller.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.ConfigPath == "" {
		return nil, errors.New("ConfigPath is a required configuration field and cannot be empty")
	}
	return &cfg, nil
}
