package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ollama-gateway/internal/provider"
	"ollama-gateway/internal/provider/providertest"
)

func TestOutcome(t *testing.T) {
	cases := map[string]error{
		"success":      nil,
		"canceled":     fmt.Errorf("stream: %w", context.Canceled),
		"unavailable":  fmt.Errorf("dial: %w", provider.ErrUpstreamUnavailable),
		"error_status": &provider.StatusError{StatusCode: 500},
		"malformed":    provider.ErrMalformedReply,
		"error":        errors.New("something else"),
	}
	for want, err := range cases {
		assert.Equal(t, want, Outcome(err))
	}
}

func TestInstrumentCountsCalls(t *testing.T) {
	collector := NewCollector(prometheus.NewRegistry())
	fake := &providertest.Client{
		GenerateFunc: func(_ context.Context, i int, _ string) (string, error) {
			if i == 1 {
				return "", provider.ErrUpstreamUnavailable
			}
			return "ok", nil
		},
	}
	client := collector.Instrument(fake)
	assert.Equal(t, "fake", client.Name())

	_, err := client.Generate(context.Background(), "m", nil, 0.7)
	require.NoError(t, err)
	_, err = client.Generate(context.Background(), "m", nil, 0.7)
	require.ErrorIs(t, err, provider.ErrUpstreamUnavailable)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.upstreamCalls.WithLabelValues("generate", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.upstreamCalls.WithLabelValues("generate", "unavailable")))

	series, err := testutil.GatherAndCount(collector.Registry(), "ollama_gateway_upstream_calls_total")
	require.NoError(t, err)
	assert.Equal(t, 2, series)
}

func TestInstrumentCountsFragments(t *testing.T) {
	collector := NewCollector(prometheus.NewRegistry())
	client := collector.Instrument(&providertest.Client{
		Fragments: []string{"a", "b", "c"},
		StreamErr: provider.ErrMalformedReply,
	})

	ch, err := client.Stream(context.Background(), "m", nil, 0.7)
	require.NoError(t, err)

	var got []string
	var streamErr error
	for chunk := range ch {
		if chunk.Err != nil {
			streamErr = chunk.Err
			continue
		}
		got = append(got, chunk.Content)
	}

	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.ErrorIs(t, streamErr, provider.ErrMalformedReply)
	assert.Equal(t, 3.0, testutil.ToFloat64(collector.fragments))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.upstreamCalls.WithLabelValues("stream", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.upstreamCalls.WithLabelValues("stream_read", "malformed")))
}

func TestInstrumentStreamOpenError(t *testing.T) {
	collector := NewCollector(prometheus.NewRegistry())
	client := collector.Instrument(&providertest.Client{OpenErr: &provider.StatusError{StatusCode: 404}})

	ch, err := client.Stream(context.Background(), "m", nil, 0.7)
	assert.Nil(t, ch)
	assert.ErrorIs(t, err, provider.ErrUpstreamStatus)
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.upstreamCalls.WithLabelValues("stream", "error_status")))
}

func TestMiddlewareAndHandler(t *testing.T) {
	collector := NewCollector(nil)

	e := echo.New()
	e.Use(collector.Middleware())
	e.GET("/ok", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/missing", func(c echo.Context) error { return echo.NewHTTPError(http.StatusNotFound) })
	e.GET("/metrics", echo.WrapHandler(collector.Handler()))

	for _, path := range []string{"/ok", "/ok", "/missing"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.httpRequests.WithLabelValues("GET", "/ok", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.httpRequests.WithLabelValues("GET", "/missing", "404")))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)
	assert.True(t, strings.Contains(text, "ollama_gateway_http_requests_total"))
	assert.True(t, strings.Contains(text, "go_goroutines"))
}
