package goTokens

import (
	"context"

	"github.com/MrEthical07/goTokens/internal/rate"
	"github.com/MrEthical07/goTokens/token"
)

// RequestPasswordReset issues a reset credential for the account behind the
// identifier and dispatches it through the Mailer. The outcome is oracle
// resistant: unknown identifiers, inactive accounts, and issuance faults all
// return nil exactly like the success path, and only the rate gate can fail
// the call. What actually happened lands in audit.
//
// Repeated requests stack; every outstanding reset token stays valid until
// consumption, expiry, or a password change.
func (e *Engine) RequestPasswordReset(ctx context.Context, identifier string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if e.reset == nil {
		return nil
	}

	if err := e.allow(ctx, rate.OpResetRequest, identifier); err != nil {
		return err
	}

	user, err := e.userProvider.FindByIdentifier(ctx, identifier)
	if err != nil || user == nil || !user.Active {
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, "", "", token.KindReset.String(), ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"identifier": identifier, "reason": "no_eligible_account"}
		})
		return nil
	}

	issued, err := e.reset.Generate(ctx, user.SubjectID)
	if err != nil {
		e.metricInc(MetricStoreFault)
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, user.SubjectID, "", token.KindReset.String(), translateTokenErr(err), nil)
		return nil
	}

	e.sendResetMail(ctx, user, issued.Token)

	e.metricInc(MetricResetRequest)
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, user.SubjectID, issued.TokenID, token.KindReset.String(), nil, nil)
	return nil
}

// ConfirmPasswordReset consumes a reset credential and installs the new
// password. Consumption is atomic: of two racing confirmations with the same
// token exactly one succeeds. Every token failure collapses to
// ErrResetInvalid.
//
// A successful reset triggers the compromise-recovery bundle: all other
// outstanding reset tokens die, every refresh token of the subject dies, and
// the subject's login rate counters are cleared.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, resetToken, newPassword string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if e.reset == nil {
		return ErrResetInvalid
	}
	if newPassword == "" {
		return ErrResetInvalid
	}

	if err := e.allow(ctx, rate.OpResetConfirm, ""); err != nil {
		return err
	}

	subjectID, ok := e.reset.Consume(ctx, resetToken)
	if !ok {
		e.metricInc(MetricResetConfirmFailure)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, "", "", token.KindReset.String(), ErrResetInvalid, nil)
		return ErrResetInvalid
	}

	newHash, err := e.passwordHash.Hash(newPassword)
	if err != nil {
		e.metricInc(MetricResetConfirmFailure)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, subjectID, "", token.KindReset.String(), err, nil)
		return ErrResetInvalid
	}
	newPassword = ""

	if err := e.userProvider.UpdatePasswordHash(ctx, subjectID, newHash); err != nil {
		e.metricInc(MetricResetConfirmFailure)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, subjectID, "", token.KindReset.String(), err, nil)
		return ErrStoreUnavailable
	}

	e.passwordChangedSideEffects(ctx, subjectID)

	e.metricInc(MetricResetConfirmSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, subjectID, "", token.KindReset.String(), nil, nil)
	return nil
}

// NotifyPasswordChanged runs the compromise-recovery bundle for a password
// change that happened outside this subsystem (profile page, admin action).
// Outstanding reset tokens and refresh tokens of the subject are destroyed.
func (e *Engine) NotifyPasswordChanged(ctx context.Context, subjectID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if subjectID == "" {
		return ErrTokenMalformed
	}

	e.passwordChangedSideEffects(ctx, subjectID)

	e.emitAudit(ctx, auditEventPasswordChanged, true, subjectID, "", "", nil, nil)
	return nil
}

// passwordChangedSideEffects is best-effort: each revocation is attempted
// independently and faults are audited rather than surfaced, so one store
// hiccup cannot leave the others undone. A kind that cannot be revoked at
// all (codec mode) is never silently assumed dead: the skip is audited as a
// warning so operators know those tokens outlive the password.
func (e *Engine) passwordChangedSideEffects(ctx context.Context, subjectID string) {
	if e.reset != nil {
		if e.reset.Revocable() {
			if _, err := e.reset.RevokeAll(ctx, subjectID); err != nil {
				e.metricInc(MetricStoreFault)
				e.emitAudit(ctx, auditEventPasswordChanged, false, subjectID, "", token.KindReset.String(), translateTokenErr(err), nil)
			}
		} else {
			e.emitRevokeSkipped(ctx, subjectID, token.KindReset)
		}
	}

	if e.pairs.Revocable() {
		if _, err := e.pairs.RevokeAllForSubject(ctx, subjectID); err != nil {
			e.metricInc(MetricStoreFault)
			e.emitAudit(ctx, auditEventPasswordChanged, false, subjectID, "", token.KindRefresh.String(), translateTokenErr(err), nil)
		}
	} else {
		e.emitRevokeSkipped(ctx, subjectID, token.KindRefresh)
	}

	if user, err := e.userProvider.FindByID(ctx, subjectID); err == nil && user != nil {
		_ = e.limiter.Reset(ctx, rate.OpLogin, "", user.Identifier)
	}
}

func (e *Engine) emitRevokeSkipped(ctx context.Context, subjectID string, kind token.Kind) {
	e.emitAudit(ctx, auditEventPasswordChanged, false, subjectID, "", kind.String(), ErrRevokeNotSupported, func() map[string]string {
		return map[string]string{"skipped": "codec_mode"}
	})
}

func (e *Engine) sendResetMail(ctx context.Context, user *UserRecord, resetToken string) {
	if e.mailer == nil || user.Email == "" {
		return
	}
	mail := ResetEmail{
		To:         user.Email,
		Token:      resetToken,
		TTLMinutes: int(e.config.PasswordReset.TTL.Minutes()),
	}
	if err := e.mailer.SendResetEmail(ctx, mail); err != nil {
		e.emitAudit(ctx, auditEventMailFailure, false, user.SubjectID, "", token.KindReset.String(), err, func() map[string]string {
			return map[string]string{"mail": "reset"}
		})
	}
}
