package goTokens

import (
	"context"
	"errors"
	"strconv"

	"github.com/MrEthical07/goTokens/internal/rate"
	"github.com/MrEthical07/goTokens/internal/tokens"
	"github.com/MrEthical07/goTokens/token"
)

// Refresh rotates a refresh token: the presented token is retired atomically
// and a fresh access+refresh pair issued. Of two concurrent rotations of the
// same token exactly one wins; the loser observes ErrTokenReplayed.
//
// A replay of an already-rotated token is treated per the configured
// ReplayPolicy: ReplayReject fails the call, ReplayRevokeAll additionally
// destroys every outstanding refresh token of the subject.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	claims, err := e.codec.Decode(refreshToken, token.KindRefresh)
	if err != nil {
		err = translateTokenErr(err)
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", token.KindRefresh.String(), err, nil)
		return nil, err
	}

	if err := e.allow(ctx, rate.OpRefresh, claims.SubjectID); err != nil {
		if errors.Is(err, ErrRateLimited) {
			e.metricInc(MetricRefreshRateLimited)
			e.emitAudit(ctx, auditEventRefreshRateLimited, false, claims.SubjectID, claims.TokenID, token.KindRefresh.String(), err, nil)
		}
		return nil, err
	}

	pair, err := e.pairs.Rotate(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, tokens.ErrReplayed) {
			return nil, e.handleReplay(ctx, claims)
		}
		err = translateTokenErr(err)
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, claims.SubjectID, claims.TokenID, token.KindRefresh.String(), err, nil)
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, claims.SubjectID, pair.RefreshTokenID, token.KindRefresh.String(), nil, func() map[string]string {
		return map[string]string{"rotated_from": claims.TokenID}
	})

	return &LoginResult{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

func (e *Engine) handleReplay(ctx context.Context, claims *token.Claims) error {
	e.metricInc(MetricReplayDetected)

	revoked := 0
	var revokeErr error
	if e.config.AccessRefresh.ReplayPolicy == ReplayRevokeAll {
		n, err := e.pairs.RevokeAllForSubject(ctx, claims.SubjectID)
		if err != nil {
			// The defensive response failed; the replay is still rejected, but
			// the subject's other sessions survive and audit must say so.
			revokeErr = err
			e.metricInc(MetricStoreFault)
		} else {
			revoked = n
			e.metricInc(MetricReplayRevokedAll)
		}
	}

	e.emitAudit(ctx, auditEventReplayDetected, false, claims.SubjectID, claims.TokenID, token.KindRefresh.String(), ErrTokenReplayed, func() map[string]string {
		m := map[string]string{"policy": replayPolicyName(e.config.AccessRefresh.ReplayPolicy)}
		if e.config.AccessRefresh.ReplayPolicy == ReplayRevokeAll {
			m["revoked"] = strconv.Itoa(revoked)
			if revokeErr != nil {
				m["revoke_error"] = string(auditErrorCode(revokeErr))
			}
		}
		return m
	})

	return ErrTokenReplayed
}

func replayPolicyName(p ReplayPolicy) string {
	if p == ReplayRevokeAll {
		return "revoke_all"
	}
	return "reject"
}
