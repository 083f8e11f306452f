// Package config loads pathwise configuration.
//
// Settings are resolved from three layers, lowest precedence first:
// built-in defaults, an optional pathwise.yaml file, and PATHWISE_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all pathwise settings.
type Config struct {
	// DBPath is the SQLite database file location.
	DBPath string `mapstructure:"db_path"`

	// ListenPort is the API server port. 0 picks a free port.
	ListenPort int `mapstructure:"listen_port"`

	// ImportDir enables the markdown importer when non-empty.
	ImportDir string `mapstructure:"import_dir"`

	// ImportOwner is the user imported plans belong to.
	ImportOwner string `mapstructure:"import_owner"`

	// AnthropicAPIKey authenticates plan generation requests.
	AnthropicAPIKey string `mapstructure:"anthropic_api_key"`

	// Model selects the generation model. Empty uses the client default.
	Model string `mapstructure:"model"`

	// GenerationTimeout bounds one generation request.
	GenerationTimeout time.Duration `mapstructure:"generation_timeout"`

	// LogFile enables rotated file logging when non-empty.
	LogFile string `mapstructure:"log_file"`
}

// Load reads configuration from defaults, an optional config file, and the
// environment. A missing config file is not an error; a malformed one is.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("db_path", ".pathwise/pathwise.db")
	v.SetDefault("listen_port", 8080)
	v.SetDefault("import_dir", "")
	v.SetDefault("import_owner", "importer")
	v.SetDefault("anthropic_api_key", "")
	v.SetDefault("model", "")
	v.SetDefault("generation_timeout", 30*time.Second)
	v.SetDefault("log_file", "")

	v.SetEnvPrefix("PATHWISE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("pathwise")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.pathwise")

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field values that cannot be repaired by defaults.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path cannot be empty")
	}
	if c.ListenPort < 0 || c.ListenPort > 65535 {
		return fmt.Errorf("listen_port %d out of range", c.ListenPort)
	}
	if c.ImportDir != "" && c.ImportOwner == "" {
		return fmt.Errorf("import_owner is required when import_dir is set")
	}
	if c.GenerationTimeout < 0 {
		return fmt.Errorf("generation_timeout cannot be negative")
	}
	return nil
}
