package factory

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ollama-gateway/internal/config"
	"ollama-gateway/internal/metrics"
	"ollama-gateway/internal/provider/ollama"
)

func TestNewClient(t *testing.T) {
	cfg := config.Default().Upstream

	client, err := NewClient(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &ollama.Client{}, client)
	assert.Equal(t, "ollama", client.Name())

	instrumented, err := NewClient(cfg, metrics.NewCollector(prometheus.NewRegistry()))
	require.NoError(t, err)
	assert.NotSame(t, client, instrumented)
	assert.Equal(t, "ollama", instrumented.Name())
}

func TestNewClientRejectsEmptyURL(t *testing.T) {
	_, err := NewClient(config.UpstreamConfig{MaxParallel: 1}, nil)
	assert.Error(t, err)
}

func TestHTTPClientHasNoOverallTimeout(t *testing.T) {
	client := newHTTPClient(30*time.Second, 4)
	assert.Zero(t, client.Timeout)
}
