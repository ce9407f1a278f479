// Package config provides configuration management for clawsync.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/spf13/viper"

	"github.com/liteclaw/clawsync/pkg/utils"
)

// Config matches the structure of clawsync.json.
type Config struct {
	Gateway  GatewayConfig  `json:"gateway" mapstructure:"gateway"`
	Client   ClientConfig   `json:"client" mapstructure:"client"`
	Logging  LoggingConfig  `json:"logging" mapstructure:"logging"`
	History  HistoryConfig  `json:"history" mapstructure:"history"`
	Sessions SessionsConfig `json:"sessions" mapstructure:"sessions"`
}

// GatewayConfig is the default gateway endpoint. Credentials are never kept
// here; they live in the credential stores.
type GatewayConfig struct {
	Host string `json:"host" mapstructure:"host" validate:"required,hostname_rfc1123|ip"`
	Port int    `json:"port" mapstructure:"port" validate:"min=1,max=65535"`
	TLS  bool   `json:"tls" mapstructure:"tls"`
}

type ClientConfig struct {
	DisplayName string `json:"displayName,omitempty" mapstructure:"displayName"`
	InstanceID  string `json:"instanceId,omitempty" mapstructure:"instanceId"`
}

type LoggingConfig struct {
	Verbose bool `json:"verbose" mapstructure:"verbose"`
}

type HistoryConfig struct {
	Limit int `json:"limit" mapstructure:"limit" validate:"min=1,max=1000"`
}

type SessionsConfig struct {
	Limit int `json:"limit" mapstructure:"limit" validate:"min=1,max=1000"`
}

// StateDir returns the clawsync state directory path.
// Can be overridden via CLAWSYNC_STATE_DIR environment variable.
// Default: ~/.clawsync
func StateDir() string {
	if override := strings.TrimSpace(os.Getenv("CLAWSYNC_STATE_DIR")); override != "" {
		return utils.ExpandPath(override)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ".clawsync"
	}
	return filepath.Join(home, ".clawsync")
}

// ConfigPath returns the config file path.
// Can be overridden via CLAWSYNC_CONFIG_PATH environment variable.
// Default: ~/.clawsync/clawsync.json
func ConfigPath() string {
	if override := strings.TrimSpace(os.Getenv("CLAWSYNC_CONFIG_PATH")); override != "" {
		return utils.ExpandPath(override)
	}
	return filepath.Join(StateDir(), "clawsync.json")
}

// LoadViper loads the configuration into a Viper instance. A missing config
// file is not an error.
func LoadViper() (*viper.Viper, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(ConfigPath())
	v.SetConfigType("json")

	// Env vars - use CLAWSYNC_ prefix, e.g. CLAWSYNC_GATEWAY_HOST
	v.SetEnvPrefix("CLAWSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", v.ConfigFileUsed(), err)
		}
	}

	return v, nil
}

// Load reads the configuration from file and environment variables.
func Load() (*Config, error) {
	v, err := LoadViper()
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.Gateway.Host = strings.TrimSpace(cfg.Gateway.Host)

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("gateway.host", "127.0.0.1")
	v.SetDefault("gateway.port", 18789)
	v.SetDefault("gateway.tls", false)

	// Registered so the matching env vars are picked up by Unmarshal.
	v.SetDefault("client.displayName", "")
	v.SetDefault("client.instanceId", "")

	v.SetDefault("logging.verbose", false)
	v.SetDefault("history.limit", 200)
	v.SetDefault("sessions.limit", 200)
}

// Save saves the configuration to ConfigPath as JSON.
func Save(cfg *Config) error {
	configPath := ConfigPath()

	if err := os.MkdirAll(filepath.Dir(configPath), 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0600)
}

// EnsureInstanceID assigns and saves an instance id on first use.
func EnsureInstanceID(cfg *Config) error {
	if cfg.Client.InstanceID != "" {
		return nil
	}
	cfg.Client.InstanceID = uuid.NewString()
	return Save(cfg)
}

var validate = validator.New()

// Validate checks for semantic errors in the config.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid %s: %v fails %q", strings.ToLower(fe.Namespace()), fe.Value(), fe.Tag())
		}
		return err
	}
	return nil
}
