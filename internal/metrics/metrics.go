// Package metrics exposes Prometheus instrumentation for the gateway and for
// calls made to the inference server.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ollama-gateway/internal/models"
	"ollama-gateway/internal/provider"
)

const namespace = "ollama_gateway"

// Collector owns the gateway metrics and the registry they live in.
type Collector struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	upstreamCalls *prometheus.CounterVec
	upstreamTime  *prometheus.HistogramVec
	fragments     prometheus.Counter
}

// NewCollector registers all metrics on registry. A nil registry gets a fresh
// one so tests never collide on the global default.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	c := &Collector{
		registry: registry,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests handled by the gateway.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Latency of gateway HTTP requests.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"method", "route"}),
		upstreamCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_calls_total",
			Help:      "Calls made to the inference server by operation and outcome.",
		}, []string{"operation", "outcome"}),
		upstreamTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_call_duration_seconds",
			Help:      "Latency of inference server calls. For streams, time until the reply headers arrive.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"operation"}),
		fragments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_fragments_total",
			Help:      "Fragments relayed from streaming generations.",
		}),
	}

	registry.MustRegister(c.httpRequests, c.httpDuration, c.upstreamCalls, c.upstreamTime, c.fragments)
	return c
}

// Registry returns the registry backing the collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

// Middleware records request counts and latency per matched route.
func (c *Collector) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			err := next(ctx)

			status := ctx.Response().Status
			if err != nil {
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				} else if sc, ok := err.(interface{ StatusCode() int }); ok {
					status = sc.StatusCode()
				}
			}

			route := ctx.Path()
			if route == "" {
				route = "unmatched"
			}
			method := ctx.Request().Method
			c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			c.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Instrument wraps an inference client so every call is counted and timed.
func (c *Collector) Instrument(next provider.Client) provider.Client {
	if next == nil {
		return nil
	}
	return &instrumentedClient{next: next, collector: c}
}

type instrumentedClient struct {
	next      provider.Client
	collector *Collector
}

func (i *instrumentedClient) Name() string {
	return i.next.Name()
}

func (i *instrumentedClient) Generate(ctx context.Context, model string, messages []models.Message, temperature float64) (string, error) {
	start := time.Now()
	out, err := i.next.Generate(ctx, model, messages, temperature)
	i.observe("generate", start, err)
	return out, err
}

func (i *instrumentedClient) Stream(ctx context.Context, model string, messages []models.Message, temperature float64) (<-chan models.Chunk, error) {
	start := time.Now()
	ch, err := i.next.Stream(ctx, model, messages, temperature)
	i.observe("stream", start, err)
	if err != nil {
		return nil, err
	}

	out := make(chan models.Chunk)
	go func() {
		defer close(out)
		for chunk := range ch {
			if chunk.Err != nil {
				i.collector.upstreamCalls.WithLabelValues("stream_read", Outcome(chunk.Err)).Inc()
			} else {
				i.collector.fragments.Inc()
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				// The producer observes the same context and closes ch.
				for range ch {
				}
				return
			}
		}
	}()
	return out, nil
}

func (i *instrumentedClient) ListModels(ctx context.Context) ([]models.ModelDescriptor, error) {
	start := time.Now()
	out, err := i.next.ListModels(ctx)
	i.observe("list_models", start, err)
	return out, err
}

func (i *instrumentedClient) observe(op string, start time.Time, err error) {
	i.collector.upstreamTime.WithLabelValues(op).Observe(time.Since(start).Seconds())
	i.collector.upstreamCalls.WithLabelValues(op, Outcome(err)).Inc()
}

// Outcome classifies an upstream error for the outcome label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, provider.ErrUpstreamUnavailable):
		return "unavailable"
	case errors.Is(err, provider.ErrUpstreamStatus):
		return "error_status"
	case errors.Is(err, provider.ErrMalformedReply):
		return "malformed"
	default:
		return "error"
	}
}
