package goTokens

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/MrEthical07/goTokens/internal/rate"
	"github.com/MrEthical07/goTokens/token"
)

// Config is the complete engine configuration. Populate it before Build;
// the engine clones it and treats it as immutable afterwards.
type Config struct {
	Codec         CodecConfig
	Store         StoreConfig
	AccessRefresh AccessRefreshConfig
	PasswordReset PasswordResetConfig
	TwoFactor     TwoFactorConfig
	RateLimit     RateLimitConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
}

/*
====================================
CODEC CONFIG
====================================
*/

// CodecConfig holds the per-kind signing secrets. Secrets must be at least
// 16 bytes and pairwise distinct: compromise of one kind's secret must not
// grant forgeable credentials of another kind.
type CodecConfig struct {
	AccessSecret    []byte
	RefreshSecret   []byte
	ResetSecret     []byte
	TwoFactorSecret []byte
	Issuer          string
	// Leeway is the clock skew tolerance for expiry checks, in [0, 10s].
	// Zero selects the codec default of 2s.
	Leeway time.Duration
}

/*
====================================
STORE CONFIG
====================================
*/

// StoreConfig tunes the durable token store.
type StoreConfig struct {
	RedisPrefix string
}

/*
====================================
ACCESS / REFRESH CONFIG
====================================
*/

// AccessRefreshConfig fixes the token pair's lifetimes, the refresh mode,
// and the replay response.
type AccessRefreshConfig struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// RefreshMode is ModeHybrid (default, revocable) or ModeCodec
	// (stateless, NOT revocable and without replay detection). ModeStore is
	// rejected: rotation must recover the subject from the token alone.
	RefreshMode Mode
	// ReplayPolicy decides the response to a rotated-out token being
	// presented again.
	ReplayPolicy ReplayPolicy
	// CookieName names the refresh cookie in [Engine.RefreshCookieSpec].
	CookieName string
}

/*
====================================
PASSWORD RESET CONFIG
====================================
*/

// PasswordResetConfig tunes reset credentials.
type PasswordResetConfig struct {
	Enabled bool
	TTL     time.Duration
	// Mode is ModeHybrid (default, one-time use enforced) or ModeCodec
	// (tokens stay valid until expiry; revocation calls surface
	// ErrRevokeNotSupported).
	Mode Mode
}

/*
====================================
TWO FACTOR CONFIG
====================================
*/

// TwoFactorConfig tunes one-time code challenges. Challenges are always
// hybrid: the record carries the code hash and is the source of truth.
type TwoFactorConfig struct {
	Enabled     bool
	TTL         time.Duration
	CodeDigits  int
	MaxAttempts int
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// OpLimit tunes one operation's fixed-window budget.
type OpLimit struct {
	MaxAttempts   int
	Window        time.Duration
	PerIP         bool
	PerIdentifier bool
}

// Enabled reports whether the limit is active at all. A zero OpLimit
// disables the operation's gate entirely.
func (l OpLimit) Enabled() bool {
	return l.MaxAttempts > 0 && l.Window > 0 && (l.PerIP || l.PerIdentifier)
}

// RateLimitConfig holds per-operation limits. Login combines its two
// dimensions with AND semantics: exceeding either blocks.
type RateLimitConfig struct {
	Login        OpLimit
	Refresh      OpLimit
	ResetRequest OpLimit
	ResetConfirm OpLimit
	TwoFactor    OpLimit
	RedisPrefix  string
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled bool
	// EnableLatencyHistograms additionally buckets ValidateAccess latency.
	EnableLatencyHistograms bool
}

// DefaultConfig returns the baseline configuration: 15m/7d hybrid pair, 1h
// one-time resets, 6-digit 2FA codes with 5 attempts, and the documented
// rate-limit windows. Secrets start empty and must be set before Build.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Store: StoreConfig{RedisPrefix: "gt"},
		AccessRefresh: AccessRefreshConfig{
			AccessTTL:    15 * time.Minute,
			RefreshTTL:   7 * 24 * time.Hour,
			RefreshMode:  ModeHybrid,
			ReplayPolicy: ReplayReject,
			CookieName:   "gt_refresh",
		},
		PasswordReset: PasswordResetConfig{
			Enabled: true,
			TTL:     time.Hour,
			Mode:    ModeHybrid,
		},
		TwoFactor: TwoFactorConfig{
			Enabled:     true,
			TTL:         5 * time.Minute,
			CodeDigits:  6,
			MaxAttempts: 5,
		},
		RateLimit: RateLimitConfig{
			Login:        OpLimit{MaxAttempts: 10, Window: 15 * time.Minute, PerIP: true, PerIdentifier: true},
			Refresh:      OpLimit{MaxAttempts: 30, Window: time.Minute, PerIdentifier: true},
			ResetRequest: OpLimit{MaxAttempts: 5, Window: 15 * time.Minute, PerIP: true, PerIdentifier: true},
			ResetConfirm: OpLimit{MaxAttempts: 10, Window: 15 * time.Minute, PerIP: true},
			TwoFactor:    OpLimit{MaxAttempts: 10, Window: 15 * time.Minute, PerIP: true, PerIdentifier: true},
			RedisPrefix:  "gt:rl",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Validate checks the configuration for internal consistency. Build calls
// it; callers may use it earlier for fail-fast wiring.
func (c Config) Validate() error {
	if c.AccessRefresh.AccessTTL <= 0 {
		return errors.New("AccessRefresh.AccessTTL must be positive")
	}
	if c.AccessRefresh.RefreshTTL <= 0 {
		return errors.New("AccessRefresh.RefreshTTL must be positive")
	}
	if c.AccessRefresh.AccessTTL >= c.AccessRefresh.RefreshTTL {
		return errors.New("AccessRefresh.AccessTTL must be shorter than RefreshTTL")
	}
	if !c.AccessRefresh.RefreshMode.Valid() || c.AccessRefresh.RefreshMode == ModeStore {
		return errors.New("AccessRefresh.RefreshMode must be codec or hybrid")
	}
	if c.AccessRefresh.ReplayPolicy != ReplayReject && c.AccessRefresh.ReplayPolicy != ReplayRevokeAll {
		return errors.New("AccessRefresh.ReplayPolicy invalid")
	}
	if c.PasswordReset.Enabled {
		if c.PasswordReset.TTL <= 0 {
			return errors.New("PasswordReset.TTL must be positive")
		}
		if !c.PasswordReset.Mode.Valid() || c.PasswordReset.Mode == ModeStore {
			return errors.New("PasswordReset.Mode must be codec or hybrid")
		}
	}
	if c.TwoFactor.Enabled {
		if c.TwoFactor.TTL <= 0 {
			return errors.New("TwoFactor.TTL must be positive")
		}
		if c.TwoFactor.CodeDigits != 0 && (c.TwoFactor.CodeDigits < 4 || c.TwoFactor.CodeDigits > 10) {
			return errors.New("TwoFactor.CodeDigits must be in [4, 10]")
		}
	}
	if c.Codec.Leeway < 0 || c.Codec.Leeway > 10*time.Second {
		return errors.New("Codec.Leeway must be in [0, 10s]")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Codec.AccessSecret = cloneBytes(cfg.Codec.AccessSecret)
	out.Codec.RefreshSecret = cloneBytes(cfg.Codec.RefreshSecret)
	out.Codec.ResetSecret = cloneBytes(cfg.Codec.ResetSecret)
	out.Codec.TwoFactorSecret = cloneBytes(cfg.Codec.TwoFactorSecret)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

func (c CodecConfig) secrets() map[Kind][]byte {
	return map[Kind][]byte{
		token.KindAccess:    c.AccessSecret,
		token.KindRefresh:   c.RefreshSecret,
		token.KindReset:     c.ResetSecret,
		token.KindTwoFactor: c.TwoFactorSecret,
	}
}

func (c RateLimitConfig) internal() rate.Config {
	convert := func(l OpLimit) rate.OpLimit {
		return rate.OpLimit{
			MaxAttempts:   l.MaxAttempts,
			Window:        l.Window,
			PerIP:         l.PerIP,
			PerIdentifier: l.PerIdentifier,
		}
	}
	return rate.Config{
		Login:        convert(c.Login),
		Refresh:      convert(c.Refresh),
		ResetRequest: convert(c.ResetRequest),
		ResetConfirm: convert(c.ResetConfirm),
		TwoFactor:    convert(c.TwoFactor),
	}
}

/*
====================================
ENV OVERLAY
====================================
*/

// ConfigFromEnv starts from the defaults and overlays values from
// environment variables under the given prefix (default "GOTOKENS"):
//
//	<P>_ACCESS_SECRET, <P>_REFRESH_SECRET, <P>_RESET_SECRET,
//	<P>_TWOFACTOR_SECRET, <P>_ISSUER, <P>_LEEWAY,
//	<P>_ACCESS_TTL, <P>_REFRESH_TTL, <P>_RESET_TTL, <P>_TWOFACTOR_TTL,
//	<P>_REFRESH_MODE, <P>_RESET_MODE ("codec"|"hybrid"),
//	<P>_REPLAY_POLICY ("reject"|"revoke-all"),
//	<P>_TWOFACTOR_DIGITS, <P>_TWOFACTOR_MAX_ATTEMPTS,
//	<P>_LOGIN_MAX_ATTEMPTS, <P>_LOGIN_WINDOW,
//	<P>_REFRESH_MAX_ATTEMPTS, <P>_REFRESH_WINDOW,
//	<P>_RESET_MAX_ATTEMPTS, <P>_RESET_WINDOW,
//	<P>_TWOFACTOR_RL_MAX_ATTEMPTS, <P>_TWOFACTOR_RL_WINDOW
//
// Durations use Go syntax ("15m", "720h"). Unset variables keep defaults;
// malformed values fail.
func ConfigFromEnv(prefix string) (Config, error) {
	if prefix == "" {
		prefix = "GOTOKENS"
	}
	cfg := defaultConfig()

	secret := func(name string, dst *[]byte) {
		if v, ok := os.LookupEnv(prefix + "_" + name); ok {
			*dst = []byte(v)
		}
	}
	secret("ACCESS_SECRET", &cfg.Codec.AccessSecret)
	secret("REFRESH_SECRET", &cfg.Codec.RefreshSecret)
	secret("RESET_SECRET", &cfg.Codec.ResetSecret)
	secret("TWOFACTOR_SECRET", &cfg.Codec.TwoFactorSecret)

	if v, ok := os.LookupEnv(prefix + "_ISSUER"); ok {
		cfg.Codec.Issuer = v
	}

	var err error
	duration := func(name string, dst *time.Duration) {
		if err != nil {
			return
		}
		if v, ok := os.LookupEnv(prefix + "_" + name); ok {
			d, parseErr := time.ParseDuration(v)
			if parseErr != nil {
				err = fmt.Errorf("%s_%s: %v", prefix, name, parseErr)
				return
			}
			*dst = d
		}
	}
	number := func(name string, dst *int) {
		if err != nil {
			return
		}
		if v, ok := os.LookupEnv(prefix + "_" + name); ok {
			n, parseErr := strconv.Atoi(v)
			if parseErr != nil {
				err = fmt.Errorf("%s_%s: %v", prefix, name, parseErr)
				return
			}
			*dst = n
		}
	}
	mode := func(name string, dst *Mode) {
		if err != nil {
			return
		}
		if v, ok := os.LookupEnv(prefix + "_" + name); ok {
			switch v {
			case "store":
				*dst = ModeStore
			case "codec":
				*dst = ModeCodec
			case "hybrid":
				*dst = ModeHybrid
			default:
				err = fmt.Errorf("%s_%s: unknown mode %q", prefix, name, v)
			}
		}
	}

	duration("LEEWAY", &cfg.Codec.Leeway)
	duration("ACCESS_TTL", &cfg.AccessRefresh.AccessTTL)
	duration("REFRESH_TTL", &cfg.AccessRefresh.RefreshTTL)
	duration("RESET_TTL", &cfg.PasswordReset.TTL)
	duration("TWOFACTOR_TTL", &cfg.TwoFactor.TTL)
	mode("REFRESH_MODE", &cfg.AccessRefresh.RefreshMode)
	mode("RESET_MODE", &cfg.PasswordReset.Mode)
	number("TWOFACTOR_DIGITS", &cfg.TwoFactor.CodeDigits)
	number("TWOFACTOR_MAX_ATTEMPTS", &cfg.TwoFactor.MaxAttempts)
	number("LOGIN_MAX_ATTEMPTS", &cfg.RateLimit.Login.MaxAttempts)
	duration("LOGIN_WINDOW", &cfg.RateLimit.Login.Window)
	number("REFRESH_MAX_ATTEMPTS", &cfg.RateLimit.Refresh.MaxAttempts)
	duration("REFRESH_WINDOW", &cfg.RateLimit.Refresh.Window)
	number("RESET_MAX_ATTEMPTS", &cfg.RateLimit.ResetRequest.MaxAttempts)
	duration("RESET_WINDOW", &cfg.RateLimit.ResetRequest.Window)
	number("TWOFACTOR_RL_MAX_ATTEMPTS", &cfg.RateLimit.TwoFactor.MaxAttempts)
	duration("TWOFACTOR_RL_WINDOW", &cfg.RateLimit.TwoFactor.Window)

	if err == nil {
		if v, ok := os.LookupEnv(prefix + "_REPLAY_POLICY"); ok {
			switch v {
			case "reject":
				cfg.AccessRefresh.ReplayPolicy = ReplayReject
			case "revoke-all":
				cfg.AccessRefresh.ReplayPolicy = ReplayRevokeAll
			default:
				err = fmt.Errorf("%s_REPLAY_POLICY: unknown policy %q", prefix, v)
			}
		}
	}

	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// RefreshCookieSpec returns the recommended transport parameters for the
// refresh token. The engine produces and consumes the token string only;
// cookie mechanics belong to the HTTP surface.
func (c Config) RefreshCookieSpec() CookieSpec {
	return CookieSpec{
		Name:     c.AccessRefresh.CookieName,
		HTTPOnly: true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   c.AccessRefresh.RefreshTTL,
	}
}
