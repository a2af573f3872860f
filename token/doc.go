// Package token implements the stateless credential codec: HS256-signed
// strings carrying a subject id, a token id, a credential kind tag, and an
// expiry.
//
// The codec never touches Redis. Revocability of a signed credential is the
// caller's concern (hybrid mode cross-checks the token id against a store
// record); a pure codec credential stays valid until natural expiry.
//
// Every [Kind] signs with its own secret. Compromise of one kind's secret
// must not yield forgeable credentials of another kind, so [NewManager]
// rejects configurations that share a secret between kinds.
package token
