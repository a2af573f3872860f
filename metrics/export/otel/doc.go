// Package otel exports engine counters and histograms through OpenTelemetry
// observable instruments. [NewExporter] registers Int64ObservableCounter
// instruments per counter and Int64ObservableGauge per histogram bucket; a
// single callback reads the engine snapshot on each collection cycle.
//
// Callers supply the Meter; the package never owns the MeterProvider.
package otel
