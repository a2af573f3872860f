// Package password implements the Argon2id hashing collaborator consumed by
// the engine through its PasswordHasher interface.
//
// Hashes are PHC strings carrying their own parameters, so verification
// keeps working across cost upgrades. The package owns hashing and
// verification only; password policy and rate limiting live with the engine.
package password
