package goTokens

import (
	"context"
	"time"

	"github.com/MrEthical07/goTokens/token"
)

// ValidateAccess verifies an access token offline (signature, expiry, kind)
// and then consults the blacklist. This is the hot path: no user lookup, no
// counters in Redis, a single blacklist read.
//
// The blacklist read is the one fail-open check in the system. When the
// store is unreachable the signed token stands on its own and the returned
// claims carry Degraded=true, so callers can log or reject according to
// their own risk posture. Everything else fails closed.
func (e *Engine) ValidateAccess(ctx context.Context, accessToken string) (*AccessClaims, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	start := time.Now()
	claims, degraded, err := e.pairs.ValidateAccess(ctx, accessToken)
	e.metrics.Observe(MetricValidateLatency, time.Since(start))

	if err != nil {
		e.metricInc(MetricValidateFailure)
		return nil, translateTokenErr(err)
	}

	if degraded {
		e.metricInc(MetricValidateDegraded)
		e.emitAudit(ctx, auditEventValidateDegraded, true, claims.SubjectID, claims.TokenID, token.KindAccess.String(), nil, nil)
	}

	e.metricInc(MetricValidateSuccess)
	return &AccessClaims{
		SubjectID: claims.SubjectID,
		TokenID:   claims.TokenID,
		ExpiresAt: claims.ExpiresAt,
		Degraded:  degraded,
	}, nil
}

// RevokeAccess blacklists a single access token for its remaining lifetime.
// Logout does this as part of its bundle; this entry point exists for
// targeted revocation (stolen token reports, admin action).
func (e *Engine) RevokeAccess(ctx context.Context, accessToken string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.pairs.BlacklistAccess(ctx, accessToken); err != nil {
		return translateTokenErr(err)
	}
	return nil
}
