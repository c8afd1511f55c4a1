// Package metrics keeps the engine's in-process counters and latency
// histograms.
//
// Each counter lives in its own cache-line-padded slot and is bumped with
// an atomic add. Latencies fall into eight fixed buckets from 5ms to +Inf.
// Nothing on the write path allocates.
//
// Snapshot copies the current values. Exporters under metrics/export read
// those copies; this package performs no I/O and keeps no global registry.
package metrics
