// Package tracing provides OpenTelemetry distributed tracing for teamsbots.
package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TracerName is the instrumentation name used for all spans.
	TracerName = "github.com/teamsbots/teamsbots"
)

// Config holds tracing configuration. Headers are sent with every export,
// e.g. an ingestion key for a hosted collector.
type Config struct {
	Enabled     bool              `yaml:"enabled"`
	ServiceName string            `yaml:"service_name"`
	Endpoint    string            `yaml:"endpoint"`
	Insecure    bool              `yaml:"insecure"`
	Headers     map[string]string `yaml:"headers"`
	SampleRate  float64           `yaml:"sample_rate"`
}

// DefaultConfig returns the default tracing configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:     false,
		ServiceName: "teamsbots",
		Endpoint:    "localhost:4318",
		Insecure:    true,
		SampleRate:  1.0,
	}
}

var tracer trace.Tracer

func init() {
	tracer = otel.Tracer(TracerName)
}

// GetTracer returns the package tracer.
func GetTracer() trace.Tracer {
	return tracer
}

// SetTracer replaces the package tracer. Tests use it to record spans.
func SetTracer(t trace.Tracer) {
	tracer = t
}

var (
	AttrSample         = attribute.Key("teams.sample")
	AttrActivityType   = attribute.Key("teams.activity.type")
	AttrActivityName   = attribute.Key("teams.activity.name")
	AttrActivityID     = attribute.Key("teams.activity.id")
	AttrConversationID = attribute.Key("teams.conversation.id")
	AttrOperation      = attribute.Key("teams.connector.operation")
	AttrFileName       = attribute.Key("teams.file.name")
	AttrFileSize       = attribute.Key("teams.file.size")
	AttrUserKey        = attribute.Key("teams.proactive.user")
)

// StartActivitySpan starts a span for dispatching one inbound activity.
func StartActivitySpan(ctx context.Context, sample, activityType, name, conversationID string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		AttrSample.String(sample),
		AttrActivityType.String(activityType),
		AttrConversationID.String(conversationID),
	}
	if name != "" {
		attrs = append(attrs, AttrActivityName.String(name))
	}
	return tracer.Start(ctx, "activity."+activityType,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attrs...),
	)
}

// StartConnectorSpan starts a client span for a Bot Framework REST call.
func StartConnectorSpan(ctx context.Context, operation, method, url string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "connector."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			AttrOperation.String(operation),
			attribute.String("http.method", method),
			attribute.String("http.url", url),
		),
	)
}

// StartFileSpan starts a client span for a file download or upload.
func StartFileSpan(ctx context.Context, operation, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "files."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(AttrFileName.String(name)),
	)
}

// StartProactiveSpan starts a span for a bot initiated message.
func StartProactiveSpan(ctx context.Context, userKey string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "proactive.send",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(AttrUserKey.String(userKey)),
	)
}

// RecordError records an error on the span.
func RecordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanOK marks the span as successful.
func SetSpanOK(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// Propagator returns the context propagator for distributed tracing.
func Propagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
}

// InjectHTTP writes the trace context of ctx into outbound request headers.
func InjectHTTP(ctx context.Context, h http.Header) {
	Propagator().Inject(ctx, propagation.HeaderCarrier(h))
}

// ExtractHTTP reads trace context from inbound request headers.
func ExtractHTTP(ctx context.Context, h http.Header) context.Context {
	return Propagator().Extract(ctx, propagation.HeaderCarrier(h))
}
