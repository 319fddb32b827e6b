package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type LoggingCfg struct {
	Level        string `mapstructure:"level" yaml:"level" json:"level"`
	File         string `mapstructure:"file" yaml:"file" json:"file"`                            // Optional log file, appended to
	RotationDays int    `mapstructure:"rotation_days" yaml:"rotation_days" json:"rotation_days"` // Days to keep logs before rotation
}

type HistoryCfg struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Path    string `mapstructure:"path" yaml:"path" json:"path"` // SQLite database for removal history
}

type MetricsCfg struct {
	Textfile    string `mapstructure:"textfile" yaml:"textfile" json:"textfile"`          // node_exporter textfile target
	Pushgateway string `mapstructure:"pushgateway" yaml:"pushgateway" json:"pushgateway"` // Pushgateway URL
	Job         string `mapstructure:"job" yaml:"job" json:"job"`
}

type FetchCfg struct {
	Workers        int `mapstructure:"workers" yaml:"workers" json:"workers"`                         // Concurrent downloads
	TimeoutSeconds int `mapstructure:"timeout_seconds" yaml:"timeout_seconds" json:"timeout_seconds"` // Per download
}

type SignCfg struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds" yaml:"timeout_seconds" json:"timeout_seconds"` // Per signed file
}

type Config struct {
	Logging LoggingCfg `mapstructure:"logging" yaml:"logging" json:"logging"`
	History HistoryCfg `mapstructure:"history" yaml:"history" json:"history"`
	Metrics MetricsCfg `mapstructure:"metrics" yaml:"metrics" json:"metrics"`
	Fetch   FetchCfg   `mapstructure:"fetch" yaml:"fetch" json:"fetch"`
	Sign    SignCfg    `mapstructure:"sign" yaml:"sign" json:"sign"`
}

const (
	ConfigName = "releng"
	EnvPrefix  = "RELENG"
)

var (
	ErrInvalid = errors.New("invalid configuration")

	errLogLevel     = errors.New("logging.level must be one of debug, info, warn, error")
	errNegativeDays = errors.New("logging.rotation_days cannot be negative")
	errMetricsJob   = errors.New("metrics.job cannot contain '/'")
)

// Load reads the global settings into v. An explicit path must exist; without
// one, releng.yaml is searched in $HOME/.releng, the current directory and
// /etc/releng, and a missing file is not an error. RELENG_* environment
// variables override file values.
func Load(v *viper.Viper, path string) (*Config, error) {
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(ConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME/.releng")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/releng")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: read config: %v", ErrInvalid, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: decode config: %v", ErrInvalid, err)
	}
	if err := cfg.validateAndDefault(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return cfg, nil
}

// setDefaults registers every key so environment overrides reach Unmarshal
func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.rotation_days", 30)
	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", "")
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("metrics.pushgateway", "")
	v.SetDefault("metrics.job", "releng")
	v.SetDefault("fetch.workers", 4)
	v.SetDefault("fetch.timeout_seconds", 300)
	v.SetDefault("sign.timeout_seconds", 600)
}

func (c *Config) validateAndDefault() error {
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	switch c.Logging.Level {
	case "":
		c.Logging.Level = "info"
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: got %q", errLogLevel, c.Logging.Level)
	}

	if c.Logging.RotationDays < 0 {
		return errNegativeDays
	}
	if c.Logging.RotationDays == 0 {
		c.Logging.RotationDays = 30 // Default: keep logs for 30 days
	}

	if c.History.Path == "" {
		c.History.Path = DefaultHistoryPath()
	}
	if c.History.Path == "" {
		c.History.Enabled = false
	}

	if c.Metrics.Job == "" {
		c.Metrics.Job = "releng"
	}
	if strings.Contains(c.Metrics.Job, "/") {
		return errMetricsJob
	}

	if c.Fetch.Workers <= 0 {
		c.Fetch.Workers = 4
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		c.Fetch.TimeoutSeconds = 300
	}
	if c.Sign.TimeoutSeconds <= 0 {
		c.Sign.TimeoutSeconds = 600
	}

	return nil
}

// DefaultHistoryPath is $HOME/.releng/history.db, or empty without a home
// directory
func DefaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}
	return filepath.Join(home, ".releng", "history.db")
}
