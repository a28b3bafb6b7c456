// Package otel binds authcore metrics to an OpenTelemetry meter.
//
// Instruments are derived from the same definition tables the Prometheus
// exporter uses: an Int64ObservableCounter per engine counter, and for each
// latency histogram a cumulative _bucket gauge labelled by le plus a _count
// gauge. One callback reads a snapshot on each collection. The caller owns
// the MeterProvider.
package otel
