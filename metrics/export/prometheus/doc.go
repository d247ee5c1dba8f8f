// Package prometheus exports cmsync client metrics to Prometheus.
//
// [PrometheusExporter] renders the text exposition format directly and
// serves it from [PrometheusExporter.Handler]. [Collector] plugs the same
// metrics into a prometheus/client_golang registry. Counter names are
// prefixed cmsync_ and end in _total; histograms end in _seconds.
//
// # What this package must NOT do
//
//   - Register anything in the global Prometheus registry. Callers mount
//     the Handler or register the Collector themselves.
//   - Mutate client state.
package prometheus
