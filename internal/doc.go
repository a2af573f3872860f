// Package internal holds shared helpers that must not be importable by
// consumers: token id generation and one-time-code material.
package internal
