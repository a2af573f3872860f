package goTokens

import (
	"context"
	"fmt"
	"time"

	internalaudit "github.com/MrEthical07/goTokens/internal/audit"
	"github.com/MrEthical07/goTokens/internal/rate"
	"github.com/MrEthical07/goTokens/internal/stores"
	"github.com/MrEthical07/goTokens/internal/tokens"
	"github.com/MrEthical07/goTokens/token"
)

// Engine is the token lifecycle orchestrator. Construct it through
// [Builder.Build]; the zero value is not usable. All methods are safe for
// concurrent use.
type Engine struct {
	config Config

	store     *stores.TokenStore
	codec     *token.Manager
	pairs     *tokens.AccessRefreshService
	reset     *tokens.PasswordResetService
	twoFactor *tokens.TwoFactorService
	limiter   *rate.Limiter

	audit   *internalaudit.Dispatcher
	metrics *Metrics

	userProvider UserProvider
	passwordHash PasswordHasher
	mailer       Mailer

	// decoyHash is verified against on unknown identifiers so that lookup
	// misses and password mismatches take the same time.
	decoyHash string
}

// Close drains and stops the audit dispatcher. Safe to call twice; the
// engine must not be used afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// Ping verifies the Redis backing store is reachable and reports the
// round-trip latency.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	if e == nil || e.store == nil {
		return 0, ErrEngineNotReady
	}
	return e.store.Ping(ctx)
}

// AuditDropped reports how many audit events were lost to backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// RefreshCookieSpec returns the recommended transport parameters for the
// refresh token under the active configuration.
func (e *Engine) RefreshCookieSpec() CookieSpec {
	return e.config.RefreshCookieSpec()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() error {
	if e == nil || e.store == nil || e.codec == nil || e.pairs == nil {
		return ErrEngineNotReady
	}
	return nil
}

// allow runs the rate gate for op. The attempt is counted on every enabled
// dimension before the verdict, so a denial on one dimension still spends the
// other. Limiter outages fail closed.
func (e *Engine) allow(ctx context.Context, op rate.Op, identifier string) error {
	if e.limiter == nil {
		return nil
	}

	decision, err := e.limiter.Allow(ctx, op, clientIPFromContext(ctx), identifier)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !decision.Allowed {
		e.emitRateLimit(ctx, string(op), identifier)
		return rateLimited(decision.RetryAfter)
	}
	return nil
}

// translateTokenErr maps codec and strategy errors onto the public error
// taxonomy.
func translateTokenErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case isAny(err, token.ErrExpired):
		return ErrTokenExpired
	case isAny(err, tokens.ErrRevoked):
		return ErrTokenRevoked
	case isAny(err, tokens.ErrReplayed):
		return ErrTokenReplayed
	case isAny(err, token.ErrMalformed, token.ErrSignature, token.ErrKindMismatch,
		tokens.ErrSubjectMismatch, tokens.ErrSubjectRequired):
		return ErrTokenMalformed
	case isAny(err, tokens.ErrRevokeNotSupported):
		return ErrRevokeNotSupported
	case isAny(err, stores.ErrStoreUnavailable):
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	default:
		return err
	}
}
