// Package config loads client configuration from defaults, an optional YAML
// file, and environment variable overrides, in that order of precedence.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("b2go.yaml").
//	    WithEnvPrefix("B2GO").
//	    Load()
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/driftware/b2go/types"
)

// Config is the complete client configuration.
type Config struct {
	// Account holds the application key pair.
	Account AccountConfig `yaml:"account"`

	// Transfer bounds payload byte rates.
	Transfer TransferConfig `yaml:"transfer"`

	// Request bounds API call frequency.
	Request RequestConfig `yaml:"request"`

	// HTTP tunes the underlying HTTP client.
	HTTP HTTPConfig `yaml:"http"`

	// Log configures logging output.
	Log LogConfig `yaml:"log"`

	// Metrics configures metric registration.
	Metrics MetricsConfig `yaml:"metrics"`
}

// AccountConfig identifies the application key used to authorize.
type AccountConfig struct {
	KeyID          string `yaml:"key_id"`
	ApplicationKey string `yaml:"application_key"`
	// AuthEndpoint overrides the account-authorization URL; empty means the
	// production endpoint.
	AuthEndpoint string `yaml:"auth_endpoint"`
}

// TransferConfig bounds payload byte rates. Zero values disable throttling.
type TransferConfig struct {
	// RateBytesPerSecond is shared across concurrent transfers.
	RateBytesPerSecond int64 `yaml:"rate_bytes_per_second"`
	// BucketSizeBytes is the burst allowance.
	BucketSizeBytes int64 `yaml:"bucket_size_bytes"`
}

// RequestConfig bounds how often API calls are issued. Zero disables the
// limit.
type RequestConfig struct {
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
}

// HTTPConfig tunes the HTTP client.
type HTTPConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
}

// MetricsConfig configures metric registration.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// Defaults returns the configuration used when nothing else is specified.
func Defaults() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Timeout: 5 * time.Minute,
		},
		Log: LogConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Enabled:   false,
			Namespace: "b2go",
		},
		Request: RequestConfig{
			Burst: 1,
		},
	}
}

// Validate reports configuration values that cannot work.
func (c *Config) Validate() error {
	if c.Transfer.RateBytesPerSecond < 0 {
		return types.ConfigError("transfer rate must not be negative")
	}
	if c.Transfer.BucketSizeBytes < 0 {
		return types.ConfigError("transfer bucket size must not be negative")
	}
	if c.Request.RatePerSecond < 0 {
		return types.ConfigError("request rate must not be negative")
	}
	if c.HTTP.Timeout < 0 {
		return types.ConfigError("http timeout must not be negative")
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return types.ConfigError(fmt.Sprintf("unknown log level %q", c.Log.Level))
	}
	return nil
}

// Loader assembles a Config from defaults, a YAML file, and environment
// variables.
type Loader struct {
	configPath string
	envPrefix  string
}

// NewLoader creates a Loader with no file and the B2GO env prefix.
func NewLoader() *Loader {
	return &Loader{envPrefix: "B2GO"}
}

// WithConfigPath sets the YAML file to read. The file must exist once a
// path is set.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix replaces the default B2GO environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Load resolves the configuration: defaults first, then the YAML file when
// one was given, then environment overrides, then validation.
func (l *Loader) Load() (*Config, error) {
	cfg := Defaults()

	if l.configPath != "" {
		data, err := os.ReadFile(l.configPath)
		if err != nil {
			return nil, types.ConfigError(fmt.Sprintf("read %s: %v", l.configPath, err))
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, types.ConfigError(fmt.Sprintf("parse %s: %v", l.configPath, err))
		}
	}

	if err := l.applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Loader) applyEnv(cfg *Config) error {
	var err error
	l.envString(&cfg.Account.KeyID, "KEY_ID")
	l.envString(&cfg.Account.ApplicationKey, "APPLICATION_KEY")
	l.envString(&cfg.Account.AuthEndpoint, "AUTH_ENDPOINT")
	l.envInt64(&cfg.Transfer.RateBytesPerSecond, "TRANSFER_RATE", &err)
	l.envInt64(&cfg.Transfer.BucketSizeBytes, "TRANSFER_BUCKET_SIZE", &err)
	l.envFloat(&cfg.Request.RatePerSecond, "REQUEST_RATE", &err)
	l.envInt(&cfg.Request.Burst, "REQUEST_BURST", &err)
	l.envDuration(&cfg.HTTP.Timeout, "HTTP_TIMEOUT", &err)
	l.envString(&cfg.Log.Level, "LOG_LEVEL")
	l.envBool(&cfg.Metrics.Enabled, "METRICS_ENABLED", &err)
	l.envString(&cfg.Metrics.Namespace, "METRICS_NAMESPACE")
	return err
}

func (l *Loader) lookup(key string) (string, bool) {
	return os.LookupEnv(l.envPrefix + "_" + key)
}

func (l *Loader) envString(dst *string, key string) {
	if v, ok := l.lookup(key); ok {
		*dst = v
	}
}

func (l *Loader) envInt64(dst *int64, key string, errOut *error) {
	v, ok := l.lookup(key)
	if !ok || *errOut != nil {
		return
	}
	parsed, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		*errOut = types.ConfigError(fmt.Sprintf("%s_%s: %v", l.envPrefix, key, err))
		return
	}
	*dst = parsed
}

func (l *Loader) envInt(dst *int, key string, errOut *error) {
	var v int64
	if *errOut != nil {
		return
	}
	if _, ok := l.lookup(key); !ok {
		return
	}
	l.envInt64(&v, key, errOut)
	if *errOut == nil {
		*dst = int(v)
	}
}

func (l *Loader) envFloat(dst *float64, key string, errOut *error) {
	v, ok := l.lookup(key)
	if !ok || *errOut != nil {
		return
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*errOut = types.ConfigError(fmt.Sprintf("%s_%s: %v", l.envPrefix, key, err))
		return
	}
	*dst = parsed
}

func (l *Loader) envBool(dst *bool, key string, errOut *error) {
	v, ok := l.lookup(key)
	if !ok || *errOut != nil {
		return
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		*errOut = types.ConfigError(fmt.Sprintf("%s_%s: %v", l.envPrefix, key, err))
		return
	}
	*dst = parsed
}

func (l *Loader) envDuration(dst *time.Duration, key string, errOut *error) {
	v, ok := l.lookup(key)
	if !ok || *errOut != nil {
		return
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		*errOut = types.ConfigError(fmt.Sprintf("%s_%s: %v", l.envPrefix, key, err))
		return
	}
	*dst = parsed
}
