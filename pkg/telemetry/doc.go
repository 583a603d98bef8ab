// Package telemetry provides structured logging, tracing and metrics for the
// installer. Logging is zerolog, tracing is OpenTelemetry (stdout or OTLP
// gRPC exporters), metrics are Prometheus. An unattended install can expose
// /metrics so progress is observable from another machine.
package telemetry
