// Package logging provides structured logging with OpenTelemetry integration.
//
// Logger wraps Zap with context-aware methods. Every call pulls correlation
// fields out of the context: the active trace and span, and the run, layer
// and guide being processed.
//
//	ctx = logging.WithRun(ctx, runID)
//	ctx = logging.WithLayer(ctx, 1)
//	logger.Info(ctx, "guide updated", zap.String("guide", path))
//
// Output goes to stderr so command output on stdout stays machine-readable,
// and optionally to an OpenTelemetry LoggerProvider through otelzap.
package logging
