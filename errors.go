package goTokens

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials is returned for a wrong identifier or password.
	// It never distinguishes which.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountNotActive is returned when the account exists but may not
	// authenticate.
	ErrAccountNotActive = errors.New("account not active")
	// ErrTokenExpired is returned when a credential's expiry is in the past.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked is returned when a credential was revoked, consumed,
	// or blacklisted before its natural expiry.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrTokenMalformed is returned for structurally invalid input, a bad
	// signature, or a wrong kind tag.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrTokenReplayed is returned when an already-rotated-out refresh token
	// is presented again.
	ErrTokenReplayed = errors.New("token replayed")
	// ErrTwoFactorRequired is returned by Login when the account needs a
	// second factor; the LoginResult carries the challenge.
	ErrTwoFactorRequired = errors.New("two-factor verification required")
	// ErrTwoFactorInvalid is the collapsed outcome for every failed 2FA
	// verification: wrong code, expired, consumed, exhausted.
	ErrTwoFactorInvalid = errors.New("two-factor challenge invalid")
	// ErrResetInvalid is the collapsed outcome for every failed reset-token
	// consumption.
	ErrResetInvalid = errors.New("password reset challenge invalid")
	// ErrRateLimited is the generic rate-limit failure; the concrete error
	// is a *RateLimitedError carrying a retry hint.
	ErrRateLimited = errors.New("rate limited")
	// ErrStoreUnavailable is an infrastructure fault in the durable store.
	ErrStoreUnavailable = errors.New("token store unavailable")
	// ErrRevokeNotSupported is returned when revocation is requested of a
	// codec-mode credential kind, which cannot be revoked before expiry.
	ErrRevokeNotSupported = errors.New("revocation not supported in codec mode")
	// ErrEngineNotReady is returned by Engine methods before Build.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// RateLimitedError carries the retry-after hint for a rate-limit rejection.
// It matches ErrRateLimited under errors.Is and never exposes the
// underlying attempt counts.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter.Round(time.Second))
}

func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

func rateLimited(retryAfter time.Duration) error {
	return &RateLimitedError{RetryAfter: retryAfter}
}

func isAny(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}
