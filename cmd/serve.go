package cmd

import (
	"context"
	"fmt"
	"os"

	"ollama-gateway/internal/config"
	"ollama-gateway/internal/logging"
	"ollama-gateway/internal/metrics"
	providerfactory "ollama-gateway/internal/provider/factory"
	"ollama-gateway/internal/router"
	"ollama-gateway/internal/server"
)

// ServeCmd starts the gateway.
type ServeCmd struct {
	Config       string `short:"c" help:"Path to YAML configuration file" type:"path" env:"GATEWAY_CONFIG"`
	Port         int    `help:"Override server port" env:"PORT"`
	UpstreamURL  string `name:"upstream-url" help:"Ollama chat endpoint, e.g. http://localhost:11434/api/chat" env:"OLLAMA_URL"`
	DefaultModel string `help:"Model used when a request does not name one" env:"DEFAULT_MODEL"`
	APIKey       string `name:"api-key" help:"Shared secret required in the x-api-key header" env:"API_KEY"`
	LogLevel     string `help:"Log level (debug, info, warn, error)" env:"LOG_LEVEL"`
}

func (s *ServeCmd) Run(ctx context.Context) error {
	cfg, err := s.loadConfig()
	if err != nil {
		return err
	}

	logging.Setup(cfg.Log, os.Stderr)

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(nil)
	}

	client, err := providerfactory.NewClient(cfg.Upstream, collector)
	if err != nil {
		return err
	}

	rt, err := router.New(client, cfg.Models, cfg.Upstream.MaxParallel)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, rt, collector)
	if err != nil {
		return err
	}

	return srv.Run(ctx)
}

// loadConfig reads the file (if any) and applies flag and environment overrides.
func (s *ServeCmd) loadConfig() (config.Config, error) {
	cfg, err := config.Load(s.Config)
	if err != nil {
		return config.Config{}, err
	}

	if s.Port != 0 {
		cfg.Server.Port = s.Port
	}
	if s.UpstreamURL != "" {
		cfg.Upstream.URL = s.UpstreamURL
	}
	if s.DefaultModel != "" {
		cfg.Models.Default = s.DefaultModel
	}
	if s.APIKey != "" {
		cfg.Server.APIKey = s.APIKey
	}
	if s.LogLevel != "" {
		cfg.Log.Level = s.LogLevel
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
