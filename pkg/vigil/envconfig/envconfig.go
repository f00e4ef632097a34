// Package envconfig loads vigil.Config from defaults, an optional vigil.yaml
// and VIGIL_-prefixed environment variables, in increasing precedence.
package envconfig

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/strongdm/vigil/pkg/vigil"
)

// EnvPrefix prefixes every environment variable, e.g. VIGIL_API_KEY.
const EnvPrefix = "VIGIL"

// Option configures Load.
type Option func(*loadConfig)

type loadConfig struct {
	file  string
	paths []string
}

// WithConfigFile reads exactly this file; a missing file is an error.
func WithConfigFile(path string) Option {
	return func(c *loadConfig) {
		c.file = path
	}
}

// WithSearchPaths replaces the directories searched for vigil.yaml.
func WithSearchPaths(paths ...string) Option {
	return func(c *loadConfig) {
		c.paths = paths
	}
}

// Load builds a Config. A missing API key is not an error here; the agent
// reports it when constructed.
func Load(opts ...Option) (vigil.Config, error) {
	lc := &loadConfig{paths: []string{".", "/etc/vigil"}}
	for _, opt := range opts {
		opt(lc)
	}

	v := viper.New()
	if lc.file != "" {
		v.SetConfigFile(lc.file)
	} else {
		v.SetConfigName("vigil")
		v.SetConfigType("yaml")
		for _, p := range lc.paths {
			v.AddConfigPath(p)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if lc.file != "" || !errors.As(err, &notFound) {
			return vigil.Config{}, fmt.Errorf("read vigil config: %w", err)
		}
		// No file: defaults and environment only.
	}

	var cfg vigil.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return vigil.Config{}, fmt.Errorf("decode vigil config: %w", err)
	}
	return cfg.Normalize(), nil
}

func setDefaults(v *viper.Viper) {
	d := vigil.DefaultConfig()
	v.SetDefault("api_key", "")
	v.SetDefault("backend_url", d.BackendURL)
	v.SetDefault("environment", d.Environment)
	v.SetDefault("sampling_rate", d.SamplingRate)
	v.SetDefault("max_capture_depth", d.MaxCaptureDepth)
	v.SetDefault("max_string_length", d.MaxStringLength)
	v.SetDefault("max_collection_size", d.MaxCollectionSize)
	v.SetDefault("debug", false)
	v.SetDefault("agent_id", "")
	v.SetDefault("agent_version", d.AgentVersion)
}
