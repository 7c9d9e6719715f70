// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Pricing   PricingConfig   `mapstructure:"pricing"`
	Health    HealthConfig    `mapstructure:"health"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
}

// ServerConfig holds the income channel listener settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	MaxFrameSize    uint32        `mapstructure:"max_frame_size"` // 0 = unlimited
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	FramesPerSecond float64       `mapstructure:"frames_per_second"` // 0 = unlimited
	FrameBurst      int           `mapstructure:"frame_burst"`
}

// Address returns host:port.
func (c ServerConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// PricingConfig holds the price table distributed to workers.
type PricingConfig struct {
	Mode        string             `mapstructure:"mode"`
	DefaultIPPM string             `mapstructure:"default_ippm"`
	DefaultOPPM string             `mapstructure:"default_oppm"`
	Models      []ModelPriceConfig `mapstructure:"models"`
	Watch       bool               `mapstructure:"watch"`
}

// ModelPriceConfig is one configured model price. Models are a list rather
// than a map because viper lower-cases map keys and model names are case-sensitive.
type ModelPriceConfig struct {
	Model  string `mapstructure:"model"`
	Engine string `mapstructure:"engine"`
	IPPM   string `mapstructure:"ippm"`
	OPPM   string `mapstructure:"oppm"`
}

// HealthConfig holds the health/event-feed HTTP server settings.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	TraceProvider  string `mapstructure:"trace_provider"`
	PrometheusPort int    `mapstructure:"prometheus_port"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	cfg, _, err := LoadWithViper(configPath)
	return cfg, err
}

// LoadWithViper is Load but also returns the viper instance so callers can
// watch the backing file.
func LoadWithViper(configPath string) (*Config, *viper.Viper, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("INCOME")
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg, err := Decode(v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

// Decode unmarshals and validates the current state of v.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.name", "INCOME_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "INCOME_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "INCOME_LOG_LEVEL", "LOG_LEVEL")

	// Server
	v.BindEnv("server.host", "INCOME_HOST")
	v.BindEnv("server.port", "INCOME_PORT")
	v.BindEnv("server.max_frame_size", "INCOME_MAX_FRAME_SIZE")

	// Pricing
	v.BindEnv("pricing.mode", "INCOME_MODE")
	v.BindEnv("pricing.default_ippm", "INCOME_IPPM")
	v.BindEnv("pricing.default_oppm", "INCOME_OPPM")

	// Health
	v.BindEnv("health.port", "INCOME_HEALTH_PORT")

	// Telemetry
	v.BindEnv("telemetry.enabled", "INCOME_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "INCOME_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.otlp_endpoint", "INCOME_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "incomed")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 19527)
	v.SetDefault("server.poll_interval", "1s")
	v.SetDefault("server.max_frame_size", 1<<20)
	v.SetDefault("server.write_timeout", "5s")
	v.SetDefault("server.frames_per_second", 0)
	v.SetDefault("server.frame_burst", 50)

	v.SetDefault("pricing.mode", "ollama")
	v.SetDefault("pricing.default_ippm", "3.8")
	v.SetDefault("pricing.default_oppm", "8.3")
	v.SetDefault("pricing.watch", false)

	v.SetDefault("health.enabled", true)
	v.SetDefault("health.port", 8081)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "incomed")
	v.SetDefault("telemetry.trace_provider", "console")
	v.SetDefault("telemetry.prometheus_port", 9090)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d", c.Server.Port)
	}
	if c.Server.PollInterval <= 0 {
		return fmt.Errorf("server.poll_interval must be positive")
	}
	if c.Server.FramesPerSecond < 0 {
		return fmt.Errorf("server.frames_per_second cannot be negative")
	}

	switch c.Pricing.Mode {
	case "ollama", "proxy", "vllm", "llamacpp":
	default:
		return fmt.Errorf("invalid pricing.mode: %q", c.Pricing.Mode)
	}
	if err := validPrice("pricing.default_ippm", c.Pricing.DefaultIPPM); err != nil {
		return err
	}
	if err := validPrice("pricing.default_oppm", c.Pricing.DefaultOPPM); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(c.Pricing.Models))
	for i, m := range c.Pricing.Models {
		if m.Model == "" {
			return fmt.Errorf("pricing.models[%d].model is required", i)
		}
		if _, dup := seen[m.Model]; dup {
			return fmt.Errorf("pricing.models: duplicate model %q", m.Model)
		}
		seen[m.Model] = struct{}{}
		if m.IPPM != "" {
			if err := validPrice(fmt.Sprintf("pricing.models[%d].ippm", i), m.IPPM); err != nil {
				return err
			}
		}
		if m.OPPM != "" {
			if err := validPrice(fmt.Sprintf("pricing.models[%d].oppm", i), m.OPPM); err != nil {
				return err
			}
		}
	}
	return nil
}

func validPrice(field, s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", field, s)
	}
	if d.IsNegative() {
		return fmt.Errorf("%s cannot be negative", field)
	}
	return nil
}
