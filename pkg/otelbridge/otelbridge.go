// Package otelbridge mirrors a channel's begin/end regions as
// OpenTelemetry spans: a pre-begin event opens a span named after the
// attribute, and the matching post-end event closes it. Nothing in
// the rest of the module depends on this package; it is an optional
// observer a caller wires up with Attach.
package otelbridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/LLNL/caliper-go/internal/config"
	"github.com/LLNL/caliper-go/pkg/caliper"
)

// Provider owns the SDK tracer provider and the tracer the Bridge
// opens spans with.
type Provider struct {
	tp     *trace.TracerProvider
	tracer oteltrace.Tracer
	logger *logrus.Logger
}

// NewProvider builds a Provider from cfg, wiring an OTLP/HTTP or
// Jaeger exporter depending on cfg.Exporter.
func NewProvider(cfg config.OtelConfig, logger *logrus.Logger) (*Provider, error) {
	exporter, err := newExporter(cfg)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(cfg.ServiceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("build trace resource: %w", err)
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	logger.WithFields(logrus.Fields{
		"service_name": cfg.ServiceName,
		"exporter":     cfg.Exporter,
		"endpoint":     cfg.Endpoint,
	}).Info("otel bridge initialized")

	return &Provider{tp: tp, tracer: otel.Tracer(cfg.ServiceName), logger: logger}, nil
}

func newExporter(cfg config.OtelConfig) (trace.SpanExporter, error) {
	switch cfg.Exporter {
	case "jaeger":
		return jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.Endpoint)))
	case "otlp":
		return otlptrace.New(context.Background(), otlptracehttp.NewClient(
			otlptracehttp.WithEndpoint(cfg.Endpoint),
		))
	default:
		return nil, fmt.Errorf("unsupported otel exporter: %s", cfg.Exporter)
	}
}

// Shutdown flushes and closes the exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.tp.Shutdown(ctx)
}

// Bridge subscribes to a Channel and keeps one open span per
// (scope, attribute) pair, keyed the same way the blackboard keys its
// own attribute stacks — Nested attributes can reopen before closing,
// so each key holds a LIFO stack rather than a single span.
type Bridge struct {
	tracer oteltrace.Tracer

	mu    sync.Mutex
	stack map[spanKey][]spanEntry
}

type spanKey struct {
	scope caliper.ScopeHandle
	attr  string
}

type spanEntry struct {
	ctx  context.Context
	span oteltrace.Span
}

// Attach builds a Bridge wired to ch via Subscribe.
func Attach(ch *caliper.Channel, p *Provider) *Bridge {
	b := &Bridge{tracer: p.tracer, stack: make(map[spanKey][]spanEntry)}
	ch.Subscribe(caliper.EventPreBegin, b.onPreBegin)
	ch.Subscribe(caliper.EventPostEnd, b.onPostEnd)
	return b
}

func (b *Bridge) onPreBegin(e caliper.Event) {
	key := spanKey{scope: e.Scope, attr: e.Attribute.Name()}
	ctx, span := b.tracer.Start(context.Background(), e.Attribute.Name())
	span.SetAttributes(attribute.String(e.Attribute.Name(), e.Value.String()))

	b.mu.Lock()
	b.stack[key] = append(b.stack[key], spanEntry{ctx: ctx, span: span})
	b.mu.Unlock()
}

func (b *Bridge) onPostEnd(e caliper.Event) {
	key := spanKey{scope: e.Scope, attr: e.Attribute.Name()}

	b.mu.Lock()
	entries := b.stack[key]
	if len(entries) == 0 {
		b.mu.Unlock()
		return
	}
	top := entries[len(entries)-1]
	b.stack[key] = entries[:len(entries)-1]
	b.mu.Unlock()

	top.span.End()
}
