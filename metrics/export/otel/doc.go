// Package otel binds engine metrics to OpenTelemetry observable instruments
// on a caller-owned meter. Counters map one to one; each latency histogram
// becomes a _bucket gauge with an le attribute plus a _count gauge.
package otel
