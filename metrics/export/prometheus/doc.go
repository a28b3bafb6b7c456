// Package prometheus exposes authcore metrics as a prometheus.Collector.
//
// Counters are named authcore_*_total; the only histogram is
// authcore_validate_latency_seconds and it is published only when the engine
// records latency. Nothing is registered globally: mount Handler or call
// Register with your own registry.
package prometheus
