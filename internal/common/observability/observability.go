// Package observability owns the OpenTelemetry meter and tracer providers.
// Meters are exported through the Prometheus registry served on /metrics;
// spans go to an OTLP/HTTP collector when an endpoint is configured.
package observability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
	queryCounter   otelmetric.Int64Counter
	queryDuration  otelmetric.Float64Histogram
	attemptCounter otelmetric.Int64Counter
}

type options struct {
	registerer prometheus.Registerer
	processors []sdktrace.SpanProcessor
	global     bool
	otlp       string
	insecure   bool
}

type Option func(*options)

// WithRegisterer sends meter output to reg instead of the default registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

func WithSpanProcessor(sp sdktrace.SpanProcessor) Option {
	return func(o *options) { o.processors = append(o.processors, sp) }
}

// WithOTLPEndpoint batches spans to an OTLP/HTTP collector at host:port.
// An empty endpoint leaves tracing local.
func WithOTLPEndpoint(endpoint string, insecure bool) Option {
	return func(o *options) {
		o.otlp = endpoint
		o.insecure = insecure
	}
}

// WithGlobal installs the providers as the otel globals.
func WithGlobal() Option {
	return func(o *options) { o.global = true }
}

func New(serviceName string, opts ...Option) (*Observability, error) {
	o := options{registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&o)
	}

	exporter, err := otelprom.New(otelprom.WithRegisterer(o.registerer))
	if err != nil {
		return nil, err
	}
	mp := metric.NewMeterProvider(metric.WithReader(exporter))

	tpOpts := make([]sdktrace.TracerProviderOption, 0, len(o.processors)+1)
	for _, sp := range o.processors {
		tpOpts = append(tpOpts, sdktrace.WithSpanProcessor(sp))
	}
	if o.otlp != "" {
		clientOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(o.otlp)}
		if o.insecure {
			clientOpts = append(clientOpts, otlptracehttp.WithInsecure())
		}
		spanExporter, err := otlptracehttp.New(context.Background(), clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("otlp trace exporter: %w", err)
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(spanExporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)

	if o.global {
		otel.SetMeterProvider(mp)
		otel.SetTracerProvider(tp)
	}

	meter := mp.Meter(serviceName)
	queryCounter, err1 := meter.Int64Counter("gateway.queries",
		otelmetric.WithDescription("Number of queries handled"))
	queryDuration, err2 := meter.Float64Histogram("gateway.query.duration",
		otelmetric.WithDescription("Query handling duration"),
		otelmetric.WithUnit("ms"))
	attemptCounter, err3 := meter.Int64Counter("gateway.provider.attempts",
		otelmetric.WithDescription("Number of provider calls by payload shape"))
	if err := errors.Join(err1, err2, err3); err != nil {
		return nil, err
	}

	return &Observability{
		meterProvider:  mp,
		tracerProvider: tp,
		tracer:         tp.Tracer(serviceName),
		queryCounter:   queryCounter,
		queryDuration:  queryDuration,
		attemptCounter: attemptCounter,
	}, nil
}

// StartSpan is safe on a nil receiver; it then returns a no-op span.
func (o *Observability) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if o == nil || o.tracer == nil {
		return ctx, noop.Span{}
	}
	return o.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (o *Observability) RecordQuery(ctx context.Context, persona, model string, duration time.Duration) {
	if o == nil || o.queryCounter == nil {
		return
	}
	attrs := otelmetric.WithAttributes(
		attribute.String("persona", persona),
		attribute.String("model", model),
	)
	o.queryCounter.Add(ctx, 1, attrs)
	o.queryDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}

func (o *Observability) RecordProviderAttempt(ctx context.Context, shape, outcome string) {
	if o == nil || o.attemptCounter == nil {
		return
	}
	o.attemptCounter.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("shape", shape),
		attribute.String("outcome", outcome),
	))
}

func (o *Observability) Shutdown(ctx context.Context) error {
	if o == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return errors.Join(o.meterProvider.Shutdown(ctx), o.tracerProvider.Shutdown(ctx))
}
