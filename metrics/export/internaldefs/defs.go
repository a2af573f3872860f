package internaldefs

import (
	goTokens "github.com/MrEthical07/goTokens"
)

// CounterDef binds a metric id to its exported name and help text.
type CounterDef struct {
	ID   goTokens.MetricID
	Name string
	Help string
}

// HistogramDef binds a histogram metric id to its exported name.
type HistogramDef struct {
	ID   goTokens.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: goTokens.MetricLoginSuccess, Name: "gotokens_login_success_total", Help: "Successful login attempts."},
	{ID: goTokens.MetricLoginFailure, Name: "gotokens_login_failure_total", Help: "Failed login attempts."},
	{ID: goTokens.MetricLoginRateLimited, Name: "gotokens_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: goTokens.MetricTwoFactorRequired, Name: "gotokens_twofactor_required_total", Help: "Logins that required a second factor."},
	{ID: goTokens.MetricTwoFactorSuccess, Name: "gotokens_twofactor_success_total", Help: "Successful two-factor confirmations."},
	{ID: goTokens.MetricTwoFactorFailure, Name: "gotokens_twofactor_failure_total", Help: "Failed two-factor confirmations."},
	{ID: goTokens.MetricTwoFactorExhausted, Name: "gotokens_twofactor_exhausted_total", Help: "Two-factor challenges destroyed at the attempt cap."},
	{ID: goTokens.MetricRefreshSuccess, Name: "gotokens_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: goTokens.MetricRefreshFailure, Name: "gotokens_refresh_failure_total", Help: "Failed refresh rotations."},
	{ID: goTokens.MetricRefreshRateLimited, Name: "gotokens_refresh_rate_limited_total", Help: "Rate-limited refresh attempts."},
	{ID: goTokens.MetricReplayDetected, Name: "gotokens_replay_detected_total", Help: "Replays of rotated-out refresh tokens."},
	{ID: goTokens.MetricReplayRevokedAll, Name: "gotokens_replay_revoked_all_total", Help: "Replay responses that revoked every refresh token of the subject."},
	{ID: goTokens.MetricResetRequest, Name: "gotokens_reset_request_total", Help: "Password reset credentials issued."},
	{ID: goTokens.MetricResetConfirmSuccess, Name: "gotokens_reset_confirm_success_total", Help: "Successful password reset confirmations."},
	{ID: goTokens.MetricResetConfirmFailure, Name: "gotokens_reset_confirm_failure_total", Help: "Failed password reset confirmations."},
	{ID: goTokens.MetricLogout, Name: "gotokens_logout_total", Help: "Single-session logout operations."},
	{ID: goTokens.MetricLogoutAll, Name: "gotokens_logout_all_total", Help: "Logout-all operations."},
	{ID: goTokens.MetricValidateSuccess, Name: "gotokens_validate_success_total", Help: "Successful access-token validations."},
	{ID: goTokens.MetricValidateFailure, Name: "gotokens_validate_failure_total", Help: "Failed access-token validations."},
	{ID: goTokens.MetricValidateDegraded, Name: "gotokens_validate_degraded_total", Help: "Validations that skipped the blacklist due to store outage."},
	{ID: goTokens.MetricRateLimitHit, Name: "gotokens_rate_limit_hit_total", Help: "Rate-limit checks that denied requests."},
	{ID: goTokens.MetricStoreFault, Name: "gotokens_store_fault_total", Help: "Token store faults observed by the engine."},
}

var HistogramDefs = []HistogramDef{
	{ID: goTokens.MetricValidateLatency, Name: "gotokens_validate_latency_seconds", Help: "ValidateAccess latency histogram."},
}

var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix mirrors HistogramBounds with characters legal in
// instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw bucket slice to the fixed width.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to the cumulative form the
// Prometheus exposition format expects.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
