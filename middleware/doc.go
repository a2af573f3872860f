// Package middleware adapts Engine validation to net/http.
//
// [Guard] reads the Authorization header, calls Engine.ValidateAccess, and
// injects the validated claims into the request context. The package
// translates HTTP semantics only; every decision is delegated to the engine.
package middleware
