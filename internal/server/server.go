package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"ollama-gateway/internal/config"
	"ollama-gateway/internal/metrics"
	"ollama-gateway/internal/router"
	"ollama-gateway/internal/version"
)

const (
	shutdownGracePeriod = 10 * time.Second
	readTimeout         = 30 * time.Second
	idleTimeout         = 120 * time.Second
	apiKeyHeader        = "x-api-key"
)

type Server struct {
	cfg       config.Config
	router    *router.Router
	collector *metrics.Collector
	app       *echo.Echo
	address   string
}

// New constructs an HTTP server wired with routing and middleware. A nil
// collector disables metrics.
func New(cfg config.Config, rt *router.Router, collector *metrics.Collector) (*Server, error) {
	if rt == nil {
		return nil, errors.New("router must not be nil")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = openAIErrorHandler

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency:   true,
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("request",
				"request_id", v.RequestID,
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"error", v.Error,
			)
			return nil
		},
	}))
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'; form-action 'none'",
	}))
	if collector != nil && cfg.Metrics.Enabled {
		e.Use(collector.Middleware())
	}

	srv := &Server{
		cfg:       cfg,
		router:    rt,
		collector: collector,
		app:       e,
		address:   fmt.Sprintf(":%d", cfg.Server.Port),
	}

	srv.registerRoutes()

	return srv, nil
}

// Handler exposes the HTTP handler, mainly for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.app
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.printStartupBanner()
	slog.Info("starting server", "addr", s.address, "upstream", s.cfg.Upstream.URL, "default_model", s.cfg.Models.Default)

	// No WriteTimeout: generations and streams legitimately outlive any fixed
	// write deadline. Upstream calls carry their own timeout.
	httpServer := &http.Server{
		Addr:        s.address,
		Handler:     s.app,
		ReadTimeout: readTimeout,
		IdleTimeout: idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.app.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := s.app.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		slog.Info("server shutdown complete")
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes() {
	s.app.GET("/", s.handleRoot)
	s.app.GET("/health", s.handleHealth)
	if s.collector != nil && s.cfg.Metrics.Enabled {
		s.app.GET(s.cfg.Metrics.Path, echo.WrapHandler(s.collector.Handler()))
	}

	v1 := s.app.Group("/v1")
	if s.cfg.Server.APIKey != "" {
		v1.Use(apiKeyAuth(s.cfg.Server.APIKey))
	}
	v1.POST("/chat/completions", s.handleChatCompletions)
	v1.POST("/responses", s.handleResponses)
	v1.GET("/models", s.handleModels)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRoot(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"name":        "ollama-gateway",
		"description": "OpenAI-compatible API running locally via Ollama",
		"version":     version.Version,
		"status":      "running",
		"endpoints":   []string{"/v1/chat/completions", "/v1/responses", "/v1/models"},
	})
}

func (s *Server) printStartupBanner() {
	host := "127.0.0.1"
	port := s.cfg.Server.Port
	fmt.Println()
	fmt.Println("ollama-gateway ready")
	fmt.Printf("Listening on http://%s:%d\n", host, port)
	fmt.Printf("Upstream: %s (default model %s)\n", s.cfg.Upstream.URL, s.cfg.Models.Default)
	fmt.Println("Endpoints:")
	fmt.Println("  GET  /")
	fmt.Println("  GET  /health")
	if s.collector != nil && s.cfg.Metrics.Enabled {
		fmt.Printf("  GET  %s\n", s.cfg.Metrics.Path)
	}
	fmt.Println("  POST /v1/chat/completions")
	fmt.Println("  POST /v1/responses")
	fmt.Println("  GET  /v1/models")
	if s.cfg.Server.APIKey != "" {
		fmt.Printf("API key required in the %q header.\n", apiKeyHeader)
	}
	fmt.Printf("Example:\n  curl http://%s:%d/v1/chat/completions -H 'Content-Type: application/json' -d '{\"messages\":[{\"role\":\"user\",\"content\":\"hello\"}]}'\n\n", host, port)
}
