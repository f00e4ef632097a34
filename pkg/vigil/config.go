// config.go defines the immutable agent configuration and its defaults.

package vigil

import (
	"fmt"
	"net/url"
)

// Version is reported to the collector as agent_version.
const Version = "0.4.0"

// Configuration defaults.
const (
	DefaultBackendURL        = "wss://ingest.vigil.dev/agent"
	DefaultEnvironment       = "production"
	DefaultSamplingRate      = 1.0
	DefaultMaxCaptureDepth   = 3
	DefaultMaxStringLength   = 1000
	DefaultMaxCollectionSize = 100
)

// Config is fixed when an agent is constructed. Start from DefaultConfig:
// a zero SamplingRate means "never sample".
type Config struct {
	// APIKey authenticates the agent with the collector. Required.
	APIKey string `mapstructure:"api_key"`

	// BackendURL is the collector's WebSocket endpoint.
	BackendURL string `mapstructure:"backend_url"`

	// Environment tags every capture (e.g. "production", "staging").
	Environment string `mapstructure:"environment"`

	// SamplingRate is the probability in [0,1] that a capture is kept.
	SamplingRate float64 `mapstructure:"sampling_rate"`

	// MaxCaptureDepth bounds nesting in captured variables.
	MaxCaptureDepth int `mapstructure:"max_capture_depth"`

	// MaxStringLength bounds text values, in runes.
	MaxStringLength int `mapstructure:"max_string_length"`

	// MaxCollectionSize bounds expanded sequences and maps.
	MaxCollectionSize int `mapstructure:"max_collection_size"`

	// Debug enables development logging and echoes captures to stderr.
	Debug bool `mapstructure:"debug"`

	// AgentID identifies this process to the collector. Generated when empty.
	AgentID string `mapstructure:"agent_id"`

	// AgentVersion defaults to Version.
	AgentVersion string `mapstructure:"agent_version"`
}

// DefaultConfig returns a Config with every default applied and no API key.
func DefaultConfig() Config {
	return Config{
		BackendURL:        DefaultBackendURL,
		Environment:       DefaultEnvironment,
		SamplingRate:      DefaultSamplingRate,
		MaxCaptureDepth:   DefaultMaxCaptureDepth,
		MaxStringLength:   DefaultMaxStringLength,
		MaxCollectionSize: DefaultMaxCollectionSize,
		AgentVersion:      Version,
	}
}

// Normalize fills empty fields with defaults, clamps SamplingRate into [0,1],
// and replaces non-positive limits with their defaults. MaxCaptureDepth of 0
// is kept: it disables expansion.
func (c Config) Normalize() Config {
	if c.BackendURL == "" {
		c.BackendURL = DefaultBackendURL
	}
	if c.Environment == "" {
		c.Environment = DefaultEnvironment
	}
	c.SamplingRate = min(max(c.SamplingRate, 0), 1)
	if c.MaxCaptureDepth < 0 {
		c.MaxCaptureDepth = DefaultMaxCaptureDepth
	}
	if c.MaxStringLength <= 0 {
		c.MaxStringLength = DefaultMaxStringLength
	}
	if c.MaxCollectionSize <= 0 {
		c.MaxCollectionSize = DefaultMaxCollectionSize
	}
	if c.AgentVersion == "" {
		c.AgentVersion = Version
	}
	return c
}

// Validate checks the backend URL. A missing API key is not a validation
// error here; the agent reports it and runs disabled.
func (c Config) Validate() error {
	u, err := url.Parse(c.BackendURL)
	if err != nil {
		return fmt.Errorf("invalid backend url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return fmt.Errorf("invalid backend url %q: scheme must be ws or wss", c.BackendURL)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid backend url %q: missing host", c.BackendURL)
	}
	return nil
}
