// Package config loads the console configuration from a YAML file and
// OPSCONSOLE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/openrag/opsconsole/internal/probe"
)

// Config holds all configuration for the console.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Backend   UpstreamConfig  `mapstructure:"backend"`
	Runtime   UpstreamConfig  `mapstructure:"runtime"`
	Probes    []ProbeConfig   `mapstructure:"probes"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Paging    PagingConfig    `mapstructure:"paging"`
	Session   SessionConfig   `mapstructure:"session"`
	Shell     ShellConfig     `mapstructure:"shell"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	LogLevel  string          `mapstructure:"log_level"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// RequireTLS rejects requests that did not arrive over HTTPS at the proxy.
	RequireTLS bool `mapstructure:"require_tls"`
}

// UpstreamConfig locates an HTTP dependency.
type UpstreamConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ProbeConfig is one monitored service.
type ProbeConfig struct {
	Name      string `mapstructure:"name"`
	Target    string `mapstructure:"target"`
	TimeoutMs int    `mapstructure:"timeout_ms"`
}

// MonitorConfig holds health monitor scheduling.
type MonitorConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	MaxInterval time.Duration `mapstructure:"max_interval"`
}

// PagingConfig holds lister page sizes.
type PagingConfig struct {
	DefaultPageSize int `mapstructure:"default_page_size"`
	MaxPageSize     int `mapstructure:"max_page_size"`
}

// SessionConfig holds principal resolution settings.
type SessionConfig struct {
	PrincipalTTL time.Duration `mapstructure:"principal_ttl"`
}

// ShellConfig holds workspace lifecycle settings.
type ShellConfig struct {
	IdleTTL time.Duration `mapstructure:"idle_ttl"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	Environment  string `mapstructure:"environment"`
}

// PubSubConfig holds the job subscription. An empty subscription disables it.
type PubSubConfig struct {
	ProjectID    string `mapstructure:"project_id"`
	Subscription string `mapstructure:"subscription"`
}

// Enabled reports whether a subscription is configured.
func (c PubSubConfig) Enabled() bool {
	return c.ProjectID != "" && c.Subscription != ""
}

// DefaultProbes is the probe set of a local deployment.
func DefaultProbes() []ProbeConfig {
	return []ProbeConfig{
		{Name: "API Gateway", Target: "http://localhost:8000/health", TimeoutMs: 4000},
		{Name: "Qdrant", Target: "http://localhost:6333/healthz", TimeoutMs: 4000},
		{Name: "Ollama", Target: "http://localhost:11434/api/tags", TimeoutMs: 4000},
		{Name: "MinIO", Target: "http://localhost:9000/minio/health/live", TimeoutMs: 4000},
	}
}

// Load reads configuration from configPath, or from opsconsole.yaml in the
// working directory or ./config when configPath is empty. A missing file is
// not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("opsconsole")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("OPSCONSOLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if len(cfg.Probes) == 0 {
		cfg.Probes = DefaultProbes()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.require_tls", false)

	v.SetDefault("backend.base_url", "http://localhost:8000")
	v.SetDefault("backend.timeout", 10*time.Second)

	v.SetDefault("runtime.base_url", "http://localhost:11434")
	v.SetDefault("runtime.timeout", 5*time.Second)

	v.SetDefault("monitor.interval", 30*time.Second)
	v.SetDefault("monitor.max_interval", 5*time.Minute)

	v.SetDefault("paging.default_page_size", 50)
	v.SetDefault("paging.max_page_size", 200)

	v.SetDefault("session.principal_ttl", time.Minute)
	v.SetDefault("shell.idle_ttl", 30*time.Minute)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4317")
	v.SetDefault("telemetry.environment", "development")

	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.subscription", "")

	v.SetDefault("log_level", "info")
}

// Validate checks the probe set and numeric bounds.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	if c.Paging.DefaultPageSize <= 0 || c.Paging.MaxPageSize < c.Paging.DefaultPageSize {
		return fmt.Errorf("config: paging sizes must satisfy 0 < default_page_size <= max_page_size")
	}
	if err := probe.ValidateSet(c.ServiceProbes()); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// ServiceProbes converts the configured probes.
func (c *Config) ServiceProbes() []probe.ServiceProbe {
	out := make([]probe.ServiceProbe, len(c.Probes))
	for i, p := range c.Probes {
		out[i] = probe.ServiceProbe{
			Name:    p.Name,
			Target:  p.Target,
			Timeout: time.Duration(p.TimeoutMs) * time.Millisecond,
		}
	}
	return out
}

// Address returns the server listen address.
func (c *Config) Address() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
