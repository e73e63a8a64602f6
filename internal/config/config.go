// Package config loads application configuration from a YAML file with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	env "github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// envPrefix is the prefix for environment variable overrides. Double
// underscore separates sections, e.g. OUTCALL_DATABASE__URL overrides
// database.url.
const envPrefix = "OUTCALL_"

// Config is the root application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Vapi     VapiConfig     `koanf:"vapi"`
	Dispatch DispatchConfig `koanf:"dispatch"`
	CORS     CORSConfig     `koanf:"cors"`
	Log      LogConfig      `koanf:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port" validate:"required"`
	MetricsPort       string        `koanf:"metrics_port" validate:"required"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL             string        `koanf:"url" validate:"required"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
}

// VapiConfig holds call service API settings.
type VapiConfig struct {
	BaseURL       string        `koanf:"base_url" validate:"required,url"`
	APIKey        string        `koanf:"api_key" validate:"required"`
	Timeout       time.Duration `koanf:"timeout"`
	ListLimit     int           `koanf:"list_limit"`
	PlacementRate float64       `koanf:"placement_rate"`
}

// DispatchConfig holds dispatch loop tuning. Zero values fall back to the
// loop's defaults.
type DispatchConfig struct {
	Ceiling              int           `koanf:"ceiling"`
	PassInterval         time.Duration `koanf:"pass_interval"`
	BusyBackoff          time.Duration `koanf:"busy_backoff"`
	EmptyBackoff         time.Duration `koanf:"empty_backoff"`
	NotScheduledBackoff  time.Duration `koanf:"not_scheduled_backoff"`
	MisconfiguredBackoff time.Duration `koanf:"misconfigured_backoff"`
	ClaimRaceBackoff     time.Duration `koanf:"claim_race_backoff"`
	ErrorBackoff         time.Duration `koanf:"error_backoff"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `koanf:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `koanf:"format" validate:"omitempty,oneof=text json"`
}

// Load reads configuration from the given YAML file (optional, may be empty)
// and applies OUTCALL_* environment overrides on top.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(key, envPrefix)), "__", ".")
			return key, value
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

var defaults = map[string]interface{}{
	"server.host":                "0.0.0.0",
	"server.port":                "8080",
	"server.metrics_port":        "9090",
	"server.read_timeout":        "15s",
	"server.read_header_timeout": "5s",
	"server.write_timeout":       "30s",
	"server.idle_timeout":        "120s",

	"database.max_open_conns":    10,
	"database.max_idle_conns":    5,
	"database.conn_max_lifetime": "30m",
	"database.connect_timeout":   "30s",
	"database.connect_attempts":  5,

	"vapi.base_url":   "https://api.vapi.ai",
	"vapi.timeout":    "30s",
	"vapi.list_limit": 10,

	"log.level":  "info",
	"log.format": "json",
}
