package goTokens

import (
	"context"
	"errors"
	"time"

	internalaudit "github.com/MrEthical07/goTokens/internal/audit"
	"github.com/MrEthical07/goTokens/internal/stores"
)

const (
	auditEventLoginSuccess         = "login_success"
	auditEventLoginFailure         = "login_failure"
	auditEventLoginRateLimited     = "login_rate_limited"
	auditEventTwoFactorIssued      = "twofactor_issued"
	auditEventTwoFactorSuccess     = "twofactor_success"
	auditEventTwoFactorFailure     = "twofactor_failure"
	auditEventTwoFactorResend      = "twofactor_resend"
	auditEventRefreshSuccess       = "refresh_success"
	auditEventRefreshInvalid       = "refresh_invalid"
	auditEventRefreshRateLimited   = "refresh_rate_limited"
	auditEventReplayDetected       = "refresh_replay_detected"
	auditEventPasswordResetRequest = "password_reset_request"
	auditEventPasswordResetConfirm = "password_reset_confirm"
	auditEventPasswordChanged      = "password_changed"
	auditEventLogout               = "logout"
	auditEventLogoutAll            = "logout_all"
	auditEventValidateDegraded     = "validate_degraded"
	auditEventRateLimitTriggered   = "rate_limit_triggered"
	auditEventMailFailure          = "mail_delivery_failure"
)

// AuditErrorCode is the closed vocabulary for the Error field of emitted
// events. Codes carry less detail than the Go errors on purpose: events may
// leave the process.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountNotActive   AuditErrorCode = "account_not_active"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrTokenExpired       AuditErrorCode = "token_expired"
	auditErrTokenRevoked       AuditErrorCode = "token_revoked"
	auditErrReplay             AuditErrorCode = "token_replayed"
	auditErrTwoFactorInvalid   AuditErrorCode = "twofactor_invalid"
	auditErrResetInvalid       AuditErrorCode = "reset_invalid"
	auditErrRevokeUnsupported  AuditErrorCode = "revoke_not_supported"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	subjectID string,
	tokenID string,
	kind string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := internalaudit.Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		SubjectID: subjectID,
		TokenID:   tokenID,
		Kind:      kind,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, scope string, identifier string) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", "", "", ErrRateLimited, func() map[string]string {
		base := map[string]string{"scope": scope}
		if identifier != "" {
			base["identifier"] = identifier
		}
		return base
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountNotActive):
		return auditErrAccountNotActive
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrTokenReplayed):
		return auditErrReplay
	case errors.Is(err, ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrTokenRevoked):
		return auditErrTokenRevoked
	case errors.Is(err, ErrTokenMalformed):
		return auditErrInvalidToken
	case errors.Is(err, ErrTwoFactorInvalid):
		return auditErrTwoFactorInvalid
	case errors.Is(err, ErrResetInvalid):
		return auditErrResetInvalid
	case errors.Is(err, ErrRevokeNotSupported):
		return auditErrRevokeUnsupported
	case errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, stores.ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
