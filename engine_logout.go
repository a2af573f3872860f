package goTokens

import (
	"context"
	"errors"
	"strconv"

	"github.com/MrEthical07/goTokens/token"
)

// Logout retires one session: the access token is blacklisted for its
// remaining lifetime and the refresh token's record destroyed. Both halves
// are attempted regardless of each other; the first failure is reported
// after both ran. Either token string may be empty to skip that half.
//
// In codec refresh mode the refresh half cannot be revoked and reports
// ErrRevokeNotSupported; check [Engine.RefreshRevocable] before relying on
// logout to kill the session.
func (e *Engine) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if err := e.ready(); err != nil {
		return err
	}

	var firstErr error
	subjectID := ""

	if accessToken != "" {
		if err := e.pairs.BlacklistAccess(ctx, accessToken); err != nil {
			firstErr = translateTokenErr(err)
		} else if claims, err := e.codec.Decode(accessToken, token.KindAccess); err == nil {
			subjectID = claims.SubjectID
		}
	}

	if refreshToken != "" {
		err := e.pairs.RevokeRefresh(ctx, refreshToken)
		if err != nil {
			err = translateTokenErr(err)
			if firstErr == nil {
				firstErr = err
			}
		}
		if subjectID == "" {
			if claims, decErr := e.codec.Decode(refreshToken, token.KindRefresh); decErr == nil {
				subjectID = claims.SubjectID
			}
		}
	}

	if firstErr != nil && !errors.Is(firstErr, ErrRevokeNotSupported) {
		e.emitAudit(ctx, auditEventLogout, false, subjectID, "", "", firstErr, nil)
		return firstErr
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, subjectID, "", "", nil, nil)
	return firstErr
}

// LogoutAll destroys every refresh record of the subject and returns how
// many were live. Outstanding access tokens cannot be enumerated; they die
// at their short natural expiry.
func (e *Engine) LogoutAll(ctx context.Context, subjectID string) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if subjectID == "" {
		return 0, ErrTokenMalformed
	}

	n, err := e.pairs.RevokeAllForSubject(ctx, subjectID)
	if err != nil {
		err = translateTokenErr(err)
		e.emitAudit(ctx, auditEventLogoutAll, false, subjectID, "", "", err, nil)
		return 0, err
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, subjectID, "", "", nil, func() map[string]string {
		return map[string]string{"revoked": strconv.Itoa(n)}
	})
	return n, nil
}

// RefreshRevocable reports whether issued refresh tokens can be destroyed
// before natural expiry under the active configuration.
func (e *Engine) RefreshRevocable() bool {
	if e == nil || e.pairs == nil {
		return false
	}
	return e.pairs.Revocable()
}
