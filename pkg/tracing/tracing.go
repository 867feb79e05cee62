package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "ndilive"

type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	JaegerURL      string
	Environment    string
	// SampleRate applies to root spans. Children follow their parent.
	SampleRate float64
}

func DefaultConfig() Config {
	return Config{
		ServiceName:    "ndilive",
		ServiceVersion: "dev",
		JaegerURL:      "http://localhost:14268/api/traces",
		Environment:    "development",
		SampleRate:     1,
	}
}

// Provider owns the exporter pipeline installed by Init. The zero value,
// returned when tracing is disabled, shuts down as a no-op.
type Provider struct {
	tp *tracesdk.TracerProvider
}

// Init installs a Jaeger backed tracer provider and the W3C propagators
// as the process globals.
func Init(cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{}, nil
	}
	def := DefaultConfig()
	if cfg.ServiceName == "" {
		cfg.ServiceName = def.ServiceName
	}
	if cfg.ServiceVersion == "" {
		cfg.ServiceVersion = def.ServiceVersion
	}

	exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.JaegerURL)))
	if err != nil {
		return nil, fmt.Errorf("failed to create Jaeger exporter: %w", err)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
			attribute.String("environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := tracesdk.NewTracerProvider(
		tracesdk.WithBatcher(exp),
		tracesdk.WithResource(res),
		tracesdk.WithSampler(tracesdk.ParentBased(tracesdk.TraceIDRatioBased(cfg.SampleRate))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return &Provider{tp: tp}, nil
}

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}

var (
	SourceKey     = attribute.Key("ndi.source")
	FrameKindsKey = attribute.Key("ndi.frame_kinds")
	DirectoryKey  = attribute.Key("directory.key")
)

func start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, name, opts...)
}

// RecordError marks the span in ctx as failed.
func RecordError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err == nil || !span.IsRecording() {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func TraceHTTPRequest(ctx context.Context, method, route string) (context.Context, trace.Span) {
	return start(ctx, "http."+method,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			semconv.HTTPMethodKey.String(method),
			semconv.HTTPRouteKey.String(route),
		),
	)
}

// TraceFrameStream starts the root span of a websocket frame stream. The
// stream outlives the upgrade request, so the request span in parent is
// linked rather than used as the parent.
func TraceFrameStream(ctx, parent context.Context, source, kinds string) (context.Context, trace.Span) {
	return start(ctx, "stream.frames",
		trace.WithNewRoot(),
		trace.WithLinks(trace.LinkFromContext(parent)),
		trace.WithAttributes(
			SourceKey.String(source),
			FrameKindsKey.String(kinds),
		),
	)
}

// EndFrameStream records the stream counters and ends span.
func EndFrameStream(span trace.Span, sent, throttled, dropped uint64) {
	span.SetAttributes(
		attribute.Int64("stream.frames_sent", int64(sent)),
		attribute.Int64("stream.frames_throttled", int64(throttled)),
		attribute.Int64("stream.frames_dropped", int64(dropped)),
	)
	span.End()
}

func TraceReceiverAcquisition(ctx context.Context, source string) (context.Context, trace.Span) {
	return start(ctx, "player.acquire_receiver", trace.WithAttributes(SourceKey.String(source)))
}

func TraceSourceLookup(ctx context.Context, source string) (context.Context, trace.Span) {
	return start(ctx, "discovery.lookup", trace.WithAttributes(SourceKey.String(source)))
}

func TraceDirectoryOperation(ctx context.Context, operation, key string) (context.Context, trace.Span) {
	return start(ctx, "directory."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(DirectoryKey.String(key)),
	)
}
