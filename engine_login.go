package goTokens

import (
	"context"
	"errors"

	"github.com/MrEthical07/goTokens/internal/rate"
	"github.com/MrEthical07/goTokens/internal/tokens"
	"github.com/MrEthical07/goTokens/token"
)

// Login verifies the identifier/password pair and issues a token pair, or a
// two-factor challenge when the account requires one. In the challenge case
// the result carries the challenge token, the code has been dispatched
// through the Mailer, and the error is ErrTwoFactorRequired.
//
// Failure never distinguishes an unknown identifier from a wrong password:
// both cost one rate-limit attempt, both verify against a hash, and both
// return ErrInvalidCredentials.
func (e *Engine) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	if err := e.allow(ctx, rate.OpLogin, identifier); err != nil {
		if errors.Is(err, ErrRateLimited) {
			e.metricInc(MetricLoginRateLimited)
			e.emitAudit(ctx, auditEventLoginRateLimited, false, "", "", "", err, func() map[string]string {
				return map[string]string{"identifier": identifier}
			})
		}
		return nil, err
	}

	user, err := e.userProvider.FindByIdentifier(ctx, identifier)
	if err != nil || user == nil {
		// Burn a hash verification so the miss costs what a mismatch costs.
		_, _ = e.passwordHash.Verify(password, e.decoyHash)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"identifier": identifier, "reason": "unknown_identifier"}
		})
		return nil, ErrInvalidCredentials
	}

	ok, err := e.passwordHash.Verify(password, user.PasswordHash)
	if err != nil || !ok {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.SubjectID, "", "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"identifier": identifier, "reason": "password_mismatch"}
		})
		return nil, ErrInvalidCredentials
	}
	password = ""

	if !user.Active {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.SubjectID, "", "", ErrAccountNotActive, func() map[string]string {
			return map[string]string{"identifier": identifier, "reason": "account_not_active"}
		})
		return nil, ErrAccountNotActive
	}

	if user.TwoFactorEnabled && e.twoFactor != nil {
		return e.issueTwoFactorChallenge(ctx, user, auditEventTwoFactorIssued)
	}

	pair, err := e.pairs.GeneratePair(ctx, user.SubjectID)
	if err != nil {
		err = translateTokenErr(err)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.SubjectID, "", "", err, nil)
		return nil, err
	}

	// A successful login forgives earlier failed attempts in the window.
	_ = e.limiter.Reset(ctx, rate.OpLogin, clientIPFromContext(ctx), identifier)

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.SubjectID, pair.RefreshTokenID, token.KindRefresh.String(), nil, nil)

	return &LoginResult{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

func (e *Engine) issueTwoFactorChallenge(ctx context.Context, user *UserRecord, eventType string) (*LoginResult, error) {
	challenge, err := e.twoFactor.Generate(ctx, user.SubjectID)
	if err != nil {
		err = translateTokenErr(err)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, eventType, false, user.SubjectID, "", "", err, nil)
		return nil, err
	}

	e.sendTwoFactorMail(ctx, user, challenge.Code)

	e.metricInc(MetricTwoFactorRequired)
	e.emitAudit(ctx, eventType, true, user.SubjectID, challenge.TokenID, token.KindTwoFactor.String(), nil, nil)

	return &LoginResult{
		TwoFactorRequired: true,
		Challenge:         challenge.Token,
	}, ErrTwoFactorRequired
}

// ConfirmTwoFactor completes a pending login: it verifies the delivered code
// against the challenge credential and issues the token pair. Every failure
// collapses to ErrTwoFactorInvalid; the distinctions (wrong code, expired,
// consumed, attempt cap) feed audit and metrics only.
func (e *Engine) ConfirmTwoFactor(ctx context.Context, challengeToken, code string) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if e.twoFactor == nil {
		return nil, ErrTwoFactorInvalid
	}

	// The challenge is self-describing; decode up front so the rate gate can
	// key on the subject. A token that does not even parse still spends an
	// IP-dimension attempt.
	subjectID := ""
	claims, decodeErr := e.codec.Decode(challengeToken, token.KindTwoFactor)
	if decodeErr == nil {
		subjectID = claims.SubjectID
	}

	if err := e.allow(ctx, rate.OpTwoFactor, subjectID); err != nil {
		return nil, err
	}

	if decodeErr != nil {
		e.metricInc(MetricTwoFactorFailure)
		e.emitAudit(ctx, auditEventTwoFactorFailure, false, "", "", "", ErrTwoFactorInvalid, nil)
		return nil, ErrTwoFactorInvalid
	}

	identity, err := e.twoFactor.Verify(ctx, "", code, challengeToken)
	if err != nil {
		if errors.Is(err, tokens.ErrChallengeExhausted) {
			e.metricInc(MetricTwoFactorExhausted)
		} else {
			e.metricInc(MetricTwoFactorFailure)
		}
		e.emitAudit(ctx, auditEventTwoFactorFailure, false, subjectID, "", "", ErrTwoFactorInvalid, func() map[string]string {
			return map[string]string{"reason": twoFactorFailureReason(err)}
		})
		return nil, ErrTwoFactorInvalid
	}

	user, err := e.userProvider.FindByID(ctx, identity.SubjectID)
	if err != nil || user == nil || !user.Active {
		e.metricInc(MetricTwoFactorFailure)
		e.emitAudit(ctx, auditEventTwoFactorFailure, false, identity.SubjectID, identity.TokenID, "", ErrAccountNotActive, nil)
		return nil, ErrTwoFactorInvalid
	}

	pair, err := e.pairs.GeneratePair(ctx, identity.SubjectID)
	if err != nil {
		err = translateTokenErr(err)
		e.metricInc(MetricTwoFactorFailure)
		e.emitAudit(ctx, auditEventTwoFactorFailure, false, identity.SubjectID, identity.TokenID, "", err, nil)
		return nil, err
	}

	_ = e.limiter.Reset(ctx, rate.OpTwoFactor, clientIPFromContext(ctx), identity.SubjectID)
	_ = e.limiter.Reset(ctx, rate.OpLogin, clientIPFromContext(ctx), user.Identifier)

	e.metricInc(MetricTwoFactorSuccess)
	e.emitAudit(ctx, auditEventTwoFactorSuccess, true, identity.SubjectID, identity.TokenID, token.KindTwoFactor.String(), nil, nil)

	return &LoginResult{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

// ResendTwoFactor replaces a pending challenge: outstanding challenges for
// the subject are destroyed, a fresh one is issued, and its code dispatched.
// The presented challenge token must still verify; an expired or consumed
// one cannot be used to mint a new code.
func (e *Engine) ResendTwoFactor(ctx context.Context, challengeToken string) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if e.twoFactor == nil {
		return nil, ErrTwoFactorInvalid
	}

	claims, err := e.codec.Decode(challengeToken, token.KindTwoFactor)
	if err != nil {
		return nil, ErrTwoFactorInvalid
	}

	if err := e.allow(ctx, rate.OpTwoFactor, claims.SubjectID); err != nil {
		return nil, err
	}

	// The record must still exist: a consumed or exhausted challenge does not
	// entitle the holder to a fresh code.
	if _, err := e.store.Get(ctx, tokens.NamespaceTwoFactor, claims.SubjectID, claims.TokenID); err != nil {
		e.emitAudit(ctx, auditEventTwoFactorResend, false, claims.SubjectID, claims.TokenID, "", ErrTwoFactorInvalid, nil)
		return nil, ErrTwoFactorInvalid
	}

	user, err := e.userProvider.FindByID(ctx, claims.SubjectID)
	if err != nil || user == nil || !user.Active {
		e.emitAudit(ctx, auditEventTwoFactorResend, false, claims.SubjectID, claims.TokenID, "", ErrAccountNotActive, nil)
		return nil, ErrTwoFactorInvalid
	}

	if _, err := e.twoFactor.RevokeAll(ctx, claims.SubjectID); err != nil {
		err = translateTokenErr(err)
		e.emitAudit(ctx, auditEventTwoFactorResend, false, claims.SubjectID, claims.TokenID, "", err, nil)
		return nil, err
	}

	return e.issueTwoFactorChallenge(ctx, user, auditEventTwoFactorResend)
}

func (e *Engine) sendTwoFactorMail(ctx context.Context, user *UserRecord, code string) {
	if e.mailer == nil || user.Email == "" {
		return
	}
	mail := TwoFactorEmail{
		To:         user.Email,
		Code:       code,
		TTLMinutes: int(e.config.TwoFactor.TTL.Minutes()),
	}
	if err := e.mailer.SendTwoFactorEmail(ctx, mail); err != nil {
		e.emitAudit(ctx, auditEventMailFailure, false, user.SubjectID, "", token.KindTwoFactor.String(), err, func() map[string]string {
			return map[string]string{"mail": "twofactor"}
		})
	}
}

func twoFactorFailureReason(err error) string {
	switch {
	case errors.Is(err, tokens.ErrCodeMismatch):
		return "code_mismatch"
	case errors.Is(err, tokens.ErrChallengeExhausted):
		return "attempts_exceeded"
	case errors.Is(err, tokens.ErrRevoked):
		return "challenge_gone"
	case errors.Is(err, token.ErrExpired):
		return "expired"
	default:
		return "invalid"
	}
}
