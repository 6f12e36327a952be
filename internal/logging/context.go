// internal/logging/context.go
package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type (
	runCtxKey    struct{}
	layerCtxKey  struct{}
	guideCtxKey  struct{}
	loggerCtxKey struct{}
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 5)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if id, ok := ctx.Value(runCtxKey{}).(string); ok && id != "" {
		fields = append(fields, zap.String("run.id", id))
	}
	if k, ok := ctx.Value(layerCtxKey{}).(int); ok {
		fields = append(fields, zap.Int("layer.index", k))
	}
	if g, ok := ctx.Value(guideCtxKey{}).(string); ok && g != "" {
		fields = append(fields, zap.String("guide.path", g))
	}
	return fields
}

// WithRun tags ctx with a run ID.
func WithRun(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runCtxKey{}, runID)
}

// RunFromContext returns the run ID, if any.
func RunFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runCtxKey{}).(string)
	return id
}

// WithLayer tags ctx with a layer index.
func WithLayer(ctx context.Context, index int) context.Context {
	return context.WithValue(ctx, layerCtxKey{}, index)
}

// WithGuide tags ctx with a guide path.
func WithGuide(ctx context.Context, guidePath string) context.Context {
	return context.WithValue(ctx, guideCtxKey{}, guidePath)
}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext returns the logger in ctx or a no-op logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok && l != nil {
		return l
	}
	return NewNop()
}
