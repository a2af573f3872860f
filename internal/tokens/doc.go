// Package tokens implements the per-kind credential services on top of the
// durable token store and the signed-credential codec.
//
// Every service composes the two halves according to a mode fixed at
// construction: store (opaque id, fully revocable), codec (self-contained,
// not revocable before expiry), or hybrid (signed and cross-checked against
// a store record, immediately revocable). The mode is a strategy object, not
// runtime branching at call sites.
package tokens
