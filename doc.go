// Package goTokens is the token lifecycle core of an authentication
// service: issuance, validation, rotation, and revocation of access,
// refresh, password-reset, and one-time two-factor credentials, plus the
// Redis-backed rate limiting that guards every operation that mints or
// verifies them.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build]. There is no in-process mutable credential state; all
// cross-request coordination goes through Redis.
//
// # Architecture boundaries
//
// goTokens is the public surface. It exposes [Engine], [Builder], [Config],
// and value types. Stores, strategies, rate limiting, and audit dispatch
// live under internal/ and are never exported. User persistence, password
// hashing, and e-mail delivery are collaborators consumed through
// [UserProvider], [PasswordHasher], and [Mailer].
//
// # Security contract
//
//   - A credential is never usable after it is revoked, and at most once
//     when marked single-use. Store faults fail closed for every
//     security-bearing check; the sole fail-open path is the access-token
//     blacklist lookup, which is documented on [Engine.ValidateAccess].
//   - Validation failures for reset and two-factor credentials collapse to
//     a single generic outcome at the API boundary; the internal
//     distinctions feed audit and metrics only.
package goTokens
