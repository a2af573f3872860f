// Package internaldefs holds the shared metric name table consumed by the
// Prometheus and OpenTelemetry exporters. It exists so both exporters agree
// on names without importing each other.
package internaldefs
