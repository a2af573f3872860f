package goTokens

import "time"

// SecurityReport is a static summary of the active posture, meant for
// startup logs and operator dashboards. It carries no secret material.
type SecurityReport struct {
	Issuer string
	Leeway time.Duration

	AccessTTL              time.Duration
	RefreshTTL             time.Duration
	RefreshMode            Mode
	RefreshRevocable       bool
	ReplayDetectionEnabled bool
	ReplayPolicy           ReplayPolicy

	PasswordResetEnabled bool
	ResetTTL             time.Duration
	ResetMode            Mode
	ResetSingleUse       bool

	TwoFactorEnabled     bool
	TwoFactorTTL         time.Duration
	TwoFactorCodeDigits  int
	TwoFactorMaxAttempts int

	RateLimitingActive bool
	AuditEnabled       bool
	MetricsEnabled     bool
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	cfg := e.config

	rateLimiting := cfg.RateLimit.Login.Enabled() ||
		cfg.RateLimit.Refresh.Enabled() ||
		cfg.RateLimit.ResetRequest.Enabled() ||
		cfg.RateLimit.ResetConfirm.Enabled() ||
		cfg.RateLimit.TwoFactor.Enabled()

	return SecurityReport{
		Issuer: cfg.Codec.Issuer,
		Leeway: cfg.Codec.Leeway,

		AccessTTL:              cfg.AccessRefresh.AccessTTL,
		RefreshTTL:             cfg.AccessRefresh.RefreshTTL,
		RefreshMode:            cfg.AccessRefresh.RefreshMode,
		RefreshRevocable:       cfg.AccessRefresh.RefreshMode == ModeHybrid,
		ReplayDetectionEnabled: cfg.AccessRefresh.RefreshMode == ModeHybrid,
		ReplayPolicy:           cfg.AccessRefresh.ReplayPolicy,

		PasswordResetEnabled: cfg.PasswordReset.Enabled,
		ResetTTL:             cfg.PasswordReset.TTL,
		ResetMode:            cfg.PasswordReset.Mode,
		ResetSingleUse:       cfg.PasswordReset.Mode == ModeHybrid,

		TwoFactorEnabled:     cfg.TwoFactor.Enabled,
		TwoFactorTTL:         cfg.TwoFactor.TTL,
		TwoFactorCodeDigits:  cfg.TwoFactor.CodeDigits,
		TwoFactorMaxAttempts: cfg.TwoFactor.MaxAttempts,

		RateLimitingActive: rateLimiting,
		AuditEnabled:       cfg.Audit.Enabled,
		MetricsEnabled:     cfg.Metrics.Enabled,
	}
}
