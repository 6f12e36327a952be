// Package telemetry sets up OpenTelemetry tracing and metrics export.
//
// Spans and metrics go to an OTLP collector over gRPC (default) or
// HTTP/protobuf. Telemetry is off unless enabled in config:
//
//	telemetry:
//	  enabled: true
//	  endpoint: "localhost:4317"
//	  protocol: grpc
//	  sample_rate: 1.0
//
// A collector that cannot be reached never fails a command. New returns a
// degraded instance whose Tracer and Meter fall back to the global no-op
// providers, and Health reports the reason.
//
// Tests use NewTestTelemetry, which records spans and metrics in memory.
package telemetry
