package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tracesdk.NewTracerProvider(tracesdk.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return rec
}

func attrs(span tracesdk.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := map[attribute.Key]attribute.Value{}
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestInit_Disabled(t *testing.T) {
	p, err := Init(Config{Enabled: false})
	require.NoError(t, err)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "ndilive", cfg.ServiceName)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestTraceSourceLookup(t *testing.T) {
	rec := recordSpans(t)

	_, span := TraceSourceLookup(context.Background(), "STUDIO (Cam A)")
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "discovery.lookup", ended[0].Name())
	assert.Equal(t, "STUDIO (Cam A)", attrs(ended[0])[SourceKey].AsString())
}

func TestRecordError(t *testing.T) {
	rec := recordSpans(t)

	ctx, span := TraceReceiverAcquisition(context.Background(), "STUDIO (Cam A)")
	RecordError(ctx, nil)
	RecordError(ctx, errors.New("receiver unavailable"))
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "receiver unavailable", ended[0].Status().Description)
	require.Len(t, ended[0].Events(), 1)
}

func TestRecordError_NoSpan(t *testing.T) {
	// must not panic without a span in the context
	RecordError(context.Background(), errors.New("boom"))
}

func TestTraceFrameStream_LinksRequest(t *testing.T) {
	rec := recordSpans(t)

	reqCtx, reqSpan := TraceHTTPRequest(context.Background(), "GET", "/api/v1/players/:name/frames")
	_, span := TraceFrameStream(context.Background(), reqCtx, "STUDIO (Cam A)", "video,metadata")
	reqSpan.End()
	EndFrameStream(span, 10, 3, 1)

	ended := rec.Ended()
	require.Len(t, ended, 2)
	stream := ended[1]
	assert.Equal(t, "stream.frames", stream.Name())
	assert.False(t, stream.Parent().IsValid())
	require.Len(t, stream.Links(), 1)
	assert.Equal(t, trace.SpanContextFromContext(reqCtx).SpanID(), stream.Links()[0].SpanContext.SpanID())

	a := attrs(stream)
	assert.Equal(t, "video,metadata", a[FrameKindsKey].AsString())
	assert.Equal(t, int64(10), a["stream.frames_sent"].AsInt64())
	assert.Equal(t, int64(3), a["stream.frames_throttled"].AsInt64())
	assert.Equal(t, int64(1), a["stream.frames_dropped"].AsInt64())
}

func TestTraceDirectoryOperation(t *testing.T) {
	rec := recordSpans(t)

	_, span := TraceDirectoryOperation(context.Background(), "publish", "ndilive:sources:edge-1")
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "directory.publish", ended[0].Name())
	assert.Equal(t, trace.SpanKindClient, ended[0].SpanKind())
	assert.Equal(t, "ndilive:sources:edge-1", attrs(ended[0])[DirectoryKey].AsString())
}
