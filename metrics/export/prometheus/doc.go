// Package prometheus exposes roleAuth engine metrics as a Prometheus
// collector.
//
// [NewPrometheusExporter] accepts a [roleAuth.Engine]. The exporter can be
// registered with any prometheus.Registerer or served directly through
// [PrometheusExporter.Handler]. Counter names are prefixed roleauth_*_total;
// latency histograms are roleauth_*_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry.
//   - Mutate engine state.
package prometheus
