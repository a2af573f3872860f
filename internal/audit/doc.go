// Package audit carries the engine's structured event stream: every
// terminal outcome of a token lifecycle operation becomes one Event,
// dispatched asynchronously so the hot path never blocks on a sink.
package audit
