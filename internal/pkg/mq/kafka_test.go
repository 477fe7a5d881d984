package mq

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestKafkaHeaderCarrier(t *testing.T) {
	c := KafkaHeaderCarrier{}
	c.Set("a", "1")
	c.Set("b", "2")
	c.Set("a", "3")

	assert.Equal(t, "3", c.Get("a"))
	assert.Equal(t, "2", c.Get("b"))
	assert.Equal(t, "", c.Get("missing"))
	assert.ElementsMatch(t, []string{"a", "b"}, c.Keys())
}

func TestTraceContextRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "produce")
	defer span.End()

	var headers []kafka.Header
	InjectTraceContext(ctx, &headers)
	require.NotEmpty(t, headers)

	extracted := ExtractTraceContext(context.Background(), headers)
	assert.Equal(t, span.SpanContext().TraceID(), trace.SpanContextFromContext(extracted).TraceID())
}
