// Package metrics exposes Prometheus counters for the data binding engine.
//
// A Recorder is created once per process and shared by every reconciler and
// flush scheduler. A nil *Recorder is valid and records nothing, so library
// code never needs to check whether metrics are enabled.
package metrics
