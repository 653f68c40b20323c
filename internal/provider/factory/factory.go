package factory

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"ollama-gateway/internal/config"
	"ollama-gateway/internal/metrics"
	"ollama-gateway/internal/provider"
	"ollama-gateway/internal/provider/ollama"
)

const (
	defaultDialTimeout     = 10 * time.Second
	defaultKeepAlive       = 30 * time.Second
	defaultIdleConnTimeout = 90 * time.Second
)

// NewClient constructs the configured inference client. When collector is
// non-nil the client is instrumented.
func NewClient(cfg config.UpstreamConfig, collector *metrics.Collector) (provider.Client, error) {
	client, err := ollama.New(cfg, newHTTPClient(cfg.Timeout, cfg.MaxParallel))
	if err != nil {
		return nil, fmt.Errorf("initialise ollama client: %w", err)
	}
	if collector == nil {
		return client, nil
	}
	return collector.Instrument(client), nil
}

// newHTTPClient has no overall timeout so streams may run as long as the
// model generates; buffered calls are bounded by the client's own context.
func newHTTPClient(headerTimeout time.Duration, maxParallel int) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   maxParallel * 2,
		IdleConnTimeout:       defaultIdleConnTimeout,
		ResponseHeaderTimeout: headerTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Transport: transport,
	}
}
