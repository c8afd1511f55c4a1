// Package otel binds roleAuth counters and latency histograms to
// OpenTelemetry observable instruments.
//
// Each counter becomes an Int64ObservableCounter. Each latency histogram
// becomes a "<name>_bucket" gauge with one data point per "le" bound plus
// a "<name>_count" counter. One callback reads
// [roleAuth.Engine.MetricsSnapshot] per collection.
//
// Callers own the MeterProvider and pass in a Meter.
package otel
