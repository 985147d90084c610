// Package metrics counts rotation outcomes, issuance, validation and
// rate-limit denials.
//
// Each counter sits in its own cache line so hot paths on different cores do
// not contend. Rotation and validation latency land in eight fixed buckets
// from 5ms up to +Inf. Recording never allocates.
//
// Exporters under metrics/export read Snapshot values; this package does no
// I/O and keeps no global registry.
package metrics
