// Package otel publishes cmsync client metrics through OpenTelemetry.
//
// [NewOTelExporter] creates an Int64ObservableCounter per counter and an
// Int64ObservableGauge per histogram bucket. One callback reads
// [cmsync.Client.MetricsSnapshot] per collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate client state.
package otel
