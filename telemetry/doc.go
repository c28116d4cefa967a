// Package telemetry instruments model clients and tools with Prometheus
// metrics and OpenTelemetry spans.
//
// Usage:
//
//	metrics := telemetry.NewMetrics(func(o *telemetry.MetricsOptions) { o.Namespace = "myapp" })
//	models := telemetry.InstrumentRegistry(registry, metrics, otel.Tracer("myapp"))
//	telemetry.InstrumentToolset(toolset, metrics, otel.Tracer("myapp"))
package telemetry
