// Package observability wires Prometheus metrics and OTLP tracing.
package observability

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	promreg "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/kruthika/companion/internal/config"
	"github.com/kruthika/companion/internal/generation"
)

const namespace = "companion"

type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *metric.MeterProvider
	promExporter   *prometheus.Exporter
	promHandler    http.Handler
	shutdownFuncs  []func(context.Context) error

	httpRequestCounter *promreg.CounterVec
	httpRequestLatency *promreg.HistogramVec
	generationLatency  *promreg.HistogramVec
	tokensCounter      *promreg.CounterVec
	quotaDecisions     *promreg.CounterVec
	quotaTokens        promreg.Counter
	cacheLookups       *promreg.CounterVec
	adOutcomes         *promreg.CounterVec
	turns              *promreg.CounterVec
}

func Setup(ctx context.Context, cfg config.ObservabilityConfig) (*Provider, error) {
	if !cfg.EnableOTLP && !cfg.EnableMetrics {
		return nil, nil
	}

	provider := &Provider{}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName("companion"),
		),
	)
	if err != nil {
		return nil, err
	}

	if cfg.EnableOTLP {
		rawEndpoint := strings.TrimSpace(cfg.OTLPEndpoint)
		endpoint := rawEndpoint
		if endpoint == "" {
			endpoint = "localhost:4317"
		}
		opts := []otlptracegrpc.Option{}
		switch {
		case strings.HasPrefix(endpoint, "http://"):
			endpoint = strings.TrimPrefix(endpoint, "http://")
			opts = append(opts, otlptracegrpc.WithInsecure())
		case strings.HasPrefix(endpoint, "https://"):
			endpoint = strings.TrimPrefix(endpoint, "https://")
		default:
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		opts = append(opts, otlptracegrpc.WithEndpoint(endpoint))

		client := otlptracegrpc.NewClient(opts...)
		exporter, err := otlptrace.New(ctx, client)
		if err != nil {
			return nil, err
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(tp)
		provider.tracerProvider = tp
		provider.shutdownFuncs = append(provider.shutdownFuncs, tp.Shutdown)
	}

	if cfg.EnableMetrics {
		registry := promreg.NewRegistry()
		promExporter, err := prometheus.New(prometheus.WithRegisterer(registry))
		if err != nil {
			return nil, err
		}
		mp := metric.NewMeterProvider(
			metric.WithReader(promExporter),
			metric.WithResource(res),
		)
		otel.SetMeterProvider(mp)
		provider.meterProvider = mp
		provider.promExporter = promExporter
		provider.promHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
		provider.shutdownFuncs = append(provider.shutdownFuncs, mp.Shutdown)

		latencyBuckets := []float64{0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10}
		provider.httpRequestCounter = promreg.NewCounterVec(
			promreg.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed.",
			},
			[]string{"method", "route", "status"},
		)
		provider.httpRequestLatency = promreg.NewHistogramVec(
			promreg.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds.",
				Buckets:   latencyBuckets,
			},
			[]string{"method", "route", "status"},
		)
		provider.generationLatency = promreg.NewHistogramVec(
			promreg.HistogramOpts{
				Namespace: namespace,
				Name:      "generation_duration_seconds",
				Help:      "Duration of model generation calls.",
				Buckets:   latencyBuckets,
			},
			[]string{"backend", "outcome"},
		)
		provider.tokensCounter = promreg.NewCounterVec(
			promreg.CounterOpts{
				Namespace: namespace,
				Name:      "generation_tokens_total",
				Help:      "Prompt and completion tokens reported by the model backend.",
			},
			[]string{"backend", "type"},
		)
		provider.quotaDecisions = promreg.NewCounterVec(
			promreg.CounterOpts{
				Namespace: namespace,
				Name:      "quota_decisions_total",
				Help:      "Quota ledger decisions by outcome.",
			},
			[]string{"outcome"},
		)
		provider.quotaTokens = promreg.NewCounter(promreg.CounterOpts{
			Namespace: namespace,
			Name:      "quota_tokens_charged_total",
			Help:      "Tokens charged against daily quotas.",
		})
		provider.cacheLookups = promreg.NewCounterVec(
			promreg.CounterOpts{
				Namespace: namespace,
				Name:      "response_cache_lookups_total",
				Help:      "Response cache lookups by result.",
			},
			[]string{"result"},
		)
		provider.adOutcomes = promreg.NewCounterVec(
			promreg.CounterOpts{
				Namespace: namespace,
				Name:      "ad_outcomes_total",
				Help:      "Ad fire attempts by network and reason.",
			},
			[]string{"network", "reason"},
		)
		provider.turns = promreg.NewCounterVec(
			promreg.CounterOpts{
				Namespace: namespace,
				Name:      "chat_turns_total",
				Help:      "Chat turns by outcome.",
			},
			[]string{"outcome"},
		)
		collectors := []promreg.Collector{
			provider.httpRequestCounter,
			provider.httpRequestLatency,
			provider.generationLatency,
			provider.tokensCounter,
			provider.quotaDecisions,
			provider.quotaTokens,
			provider.cacheLookups,
			provider.adOutcomes,
			provider.turns,
		}
		for _, c := range collectors {
			if err := registry.Register(c); err != nil {
				return nil, err
			}
		}
	}

	return provider, nil
}

func (p *Provider) PrometheusHandler() http.Handler {
	if p == nil || p.promHandler == nil {
		return nil
	}
	return p.promHandler
}

func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	for _, fn := range p.shutdownFuncs {
		if err := fn(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (p *Provider) TracerProvider() *sdktrace.TracerProvider {
	if p == nil {
		return nil
	}
	return p.tracerProvider
}

func (p *Provider) RecordHTTPRequest(_ context.Context, method, route string, status int, duration time.Duration) {
	if p == nil {
		return
	}

	statusLabel := strconv.Itoa(status)

	if p.httpRequestCounter != nil {
		p.httpRequestCounter.WithLabelValues(method, route, statusLabel).Inc()
	}

	if p.httpRequestLatency != nil {
		p.httpRequestLatency.WithLabelValues(method, route, statusLabel).Observe(duration.Seconds())
	}
}

// RecordGeneration implements generation.Observer.
func (p *Provider) RecordGeneration(backend, outcome string, usage generation.Usage, seconds float64) {
	if p == nil || p.generationLatency == nil {
		return
	}
	p.generationLatency.WithLabelValues(backend, outcome).Observe(seconds)
	if usage.PromptTokens > 0 {
		p.tokensCounter.WithLabelValues(backend, "prompt").Add(float64(usage.PromptTokens))
	}
	if usage.CompletionTokens > 0 {
		p.tokensCounter.WithLabelValues(backend, "completion").Add(float64(usage.CompletionTokens))
	}
}

// RecordQuotaDecision implements quota.Observer.
func (p *Provider) RecordQuotaDecision(outcome string, tokens int64) {
	if p == nil || p.quotaDecisions == nil {
		return
	}
	p.quotaDecisions.WithLabelValues(outcome).Inc()
	if tokens > 0 {
		p.quotaTokens.Add(float64(tokens))
	}
}

// RecordCacheLookup implements cache.Observer.
func (p *Provider) RecordCacheLookup(hit bool) {
	if p == nil || p.cacheLookups == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	p.cacheLookups.WithLabelValues(result).Inc()
}

// RecordAdOutcome implements ads.Observer.
func (p *Provider) RecordAdOutcome(network, reason string) {
	if p == nil || p.adOutcomes == nil {
		return
	}
	if network == "" {
		network = "none"
	}
	p.adOutcomes.WithLabelValues(network, reason).Inc()
}

// RecordTurn implements conversation.Observer.
func (p *Provider) RecordTurn(outcome string) {
	if p == nil || p.turns == nil {
		return
	}
	p.turns.WithLabelValues(outcome).Inc()
}
