package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPort          = 8000
	DefaultUpstreamURL   = "http://localhost:11434/api/chat"
	DefaultModel         = "llama3.2:3b"
	DefaultTimeout       = 5 * time.Minute
	DefaultMaxParallel   = 4
	DefaultMaxChoices    = 8
	DefaultMaxBodyBytes  = 1 << 20 // 1 MiB
	DefaultMetricsPath   = "/metrics"
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "text"
	maxAllowedMaxChoices = 128
)

// Config represents the application configuration parsed from YAML.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Models   ModelsConfig   `yaml:"models"`
	Limits   LimitsConfig   `yaml:"limits"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig defines listener configuration.
type ServerConfig struct {
	Port int `yaml:"port"`
	// APIKey enables the x-api-key check when non-empty.
	APIKey string `yaml:"api_key"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// UpstreamConfig captures how to reach the inference server.
type UpstreamConfig struct {
	URL         string        `yaml:"url"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxParallel int           `yaml:"max_parallel"`
	Headers     Headers       `yaml:"headers"`
}

// Headers contains additional HTTP headers to send with an upstream request.
type Headers map[string]string

// ModelsConfig controls model name resolution.
type ModelsConfig struct {
	Default string            `yaml:"default"`
	Aliases map[string]string `yaml:"aliases"`
}

type LimitsConfig struct {
	MaxChoices   int   `yaml:"max_choices"`
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: ServerConfig{Port: DefaultPort},
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Upstream: UpstreamConfig{
			URL:         DefaultUpstreamURL,
			Timeout:     DefaultTimeout,
			MaxParallel: DefaultMaxParallel,
		},
		Models: ModelsConfig{Default: DefaultModel},
		Limits: LimitsConfig{
			MaxChoices:   DefaultMaxChoices,
			MaxBodyBytes: DefaultMaxBodyBytes,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    DefaultMetricsPath,
		},
	}
}

// Load reads YAML configuration from disk on top of the defaults and
// validates the result. An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return Config{}, fmt.Errorf("resolve config path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %q: %w", absPath, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file %q: %w", absPath, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate performs strict sanity checks on the configuration.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid TCP port, got %d", c.Server.Port)
	}

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be %q or %q, got %q", "text", "json", c.Log.Format)
	}

	if err := validateUpstream(c.Upstream); err != nil {
		return err
	}

	if strings.TrimSpace(c.Models.Default) == "" {
		return fmt.Errorf("models.default must not be empty")
	}
	for alias, target := range c.Models.Aliases {
		if strings.TrimSpace(alias) == "" {
			return fmt.Errorf("models.aliases: alias name must not be empty")
		}
		if strings.TrimSpace(target) == "" {
			return fmt.Errorf("models.aliases: alias %q target must not be empty", alias)
		}
	}

	if c.Limits.MaxChoices < 1 || c.Limits.MaxChoices > maxAllowedMaxChoices {
		return fmt.Errorf("limits.max_choices must be between 1 and %d, got %d", maxAllowedMaxChoices, c.Limits.MaxChoices)
	}
	if c.Limits.MaxBodyBytes <= 0 {
		return fmt.Errorf("limits.max_body_bytes must be positive, got %d", c.Limits.MaxBodyBytes)
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/', got %q", c.Metrics.Path)
	}

	return nil
}

func validateUpstream(u UpstreamConfig) error {
	raw := strings.TrimSpace(u.URL)
	if raw == "" {
		return fmt.Errorf("upstream.url must be provided")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("upstream.url %q: %w", raw, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("upstream.url %q must use http or https", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("upstream.url %q must include a host", raw)
	}

	if u.Timeout < 0 {
		return fmt.Errorf("upstream.timeout must not be negative, got %s", u.Timeout)
	}
	if u.MaxParallel < 1 {
		return fmt.Errorf("upstream.max_parallel must be at least 1, got %d", u.MaxParallel)
	}

	for headerKey := range u.Headers {
		if !isCanonicalHTTPHeader(headerKey) {
			return fmt.Errorf("upstream: header %q is not a valid canonical HTTP header", headerKey)
		}
	}
	return nil
}

// ResolveModel maps a requested model name to the upstream model: empty
// selects the default, a configured alias selects its target, anything else
// passes through.
func (m ModelsConfig) ResolveModel(requested string) string {
	requested = strings.TrimSpace(requested)
	if requested == "" {
		return m.Default
	}
	if target, ok := m.Aliases[requested]; ok {
		return target
	}
	return requested
}

func isCanonicalHTTPHeader(header string) bool {
	if header == "" {
		return false
	}

	for _, r := range header {
		if !(r == '-' || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')) {
			return false
		}
	}
	return true
}
