// Package prometheus renders engine metrics in Prometheus text exposition
// format. [NewExporter] takes an Engine and exposes an http.Handler; counter
// names are prefixed gotokens_*_total and the single histogram is
// gotokens_validate_latency_seconds.
//
// The package never registers in a global Prometheus registry; callers mount
// the Handler themselves.
package prometheus
