// internal/pkg/tracing/tracer.go
package tracing

import (
	"context"

	zlog "github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// InitTracerProvider initializes and registers a Jaeger TraceProvider.
// An empty endpoint keeps spans in-process (no exporter), which is what local runs and cron jobs use.
func InitTracerProvider(serviceName, jaegerEndpoint string) (*sdktrace.TracerProvider, error) {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		// 设置服务名等资源属性，这对于在 Jaeger UI 中识别服务至关重要
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
		)),
	}

	if jaegerEndpoint != "" {
		exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(jaegerEndpoint)))
		if err != nil {
			return nil, err
		}
		// 使用批处理 Span 处理器，提高性能
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	tp := sdktrace.NewTracerProvider(opts...)

	otel.SetTracerProvider(tp)
	// 设置全局的 TextMapPropagator，用于在服务间传递上下文
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	zlog.Info().Str("endpoint", jaegerEndpoint).Msgf("Tracing initialized for service '%s'", serviceName)
	return tp, nil
}

// GetTraceIDFromContext returns the trace id of the active span, or "" when there is none.
func GetTraceIDFromContext(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
