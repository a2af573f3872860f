package goTokens

import (
	"errors"

	internalaudit "github.com/MrEthical07/goTokens/internal/audit"
	"github.com/MrEthical07/goTokens/internal/rate"
	"github.com/MrEthical07/goTokens/internal/stores"
	"github.com/MrEthical07/goTokens/internal/tokens"
	"github.com/MrEthical07/goTokens/token"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. A builder is single-use: Build succeeds at
// most once.
type Builder struct {
	config Config

	redis          redis.UniversalClient
	userProvider   UserProvider
	passwordHasher PasswordHasher
	mailer         Mailer
	auditSink      AuditSink

	built bool
}

// New returns a builder preloaded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration. Secrets are copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing stores and rate limits.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserProvider sets the identity-persistence collaborator. Required.
func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithPasswordHasher sets the hashing collaborator. Required; the password
// sub-package supplies an Argon2id implementation.
func (b *Builder) WithPasswordHasher(ph PasswordHasher) *Builder {
	b.passwordHasher = ph
	return b
}

// WithMailer sets the outbound delivery collaborator. Optional: without it,
// reset and 2FA mail is silently skipped and only audited.
func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

// WithAuditSink sets the destination for audit events. Optional.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the ValidateAccess latency buckets.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, wires every component, and returns the
// engine. Secret material is validated here, before any token can be minted.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.userProvider == nil {
		return nil, errors.New("user provider required")
	}
	if b.passwordHasher == nil {
		return nil, errors.New("password hasher required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.TwoFactor.CodeDigits == 0 {
		cfg.TwoFactor.CodeDigits = 6
	}
	if cfg.TwoFactor.MaxAttempts <= 0 {
		cfg.TwoFactor.MaxAttempts = 5
	}

	codec, err := token.NewManager(token.Config{
		Secrets: cfg.Codec.secrets(),
		Issuer:  cfg.Codec.Issuer,
		Leeway:  cfg.Codec.Leeway,
	})
	if err != nil {
		return nil, err
	}

	store := stores.NewTokenStore(b.redis, cfg.Store.RedisPrefix)

	pairs, err := tokens.NewAccessRefreshService(store, codec, tokens.AccessRefreshConfig{
		AccessTTL:   cfg.AccessRefresh.AccessTTL,
		RefreshTTL:  cfg.AccessRefresh.RefreshTTL,
		RefreshMode: cfg.AccessRefresh.RefreshMode,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config: cfg,
		store:  store,
		codec:  codec,
		pairs:  pairs,
	}

	if cfg.PasswordReset.Enabled {
		reset, err := tokens.NewPasswordResetService(store, codec, tokens.PasswordResetConfig{
			TTL:  cfg.PasswordReset.TTL,
			Mode: cfg.PasswordReset.Mode,
		})
		if err != nil {
			return nil, err
		}
		engine.reset = reset
	}

	if cfg.TwoFactor.Enabled {
		twoFactor, err := tokens.NewTwoFactorService(store, codec, tokens.TwoFactorConfig{
			TTL:         cfg.TwoFactor.TTL,
			Mode:        ModeHybrid,
			CodeDigits:  cfg.TwoFactor.CodeDigits,
			MaxAttempts: cfg.TwoFactor.MaxAttempts,
		})
		if err != nil {
			return nil, err
		}
		engine.twoFactor = twoFactor
	}

	engine.limiter = rate.New(b.redis, cfg.RateLimit.RedisPrefix, cfg.RateLimit.internal())
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)
	engine.userProvider = b.userProvider
	engine.passwordHash = b.passwordHasher
	engine.mailer = b.mailer

	// The decoy hash feeds Verify on unknown identifiers so the two failure
	// paths cost the same.
	decoy, err := b.passwordHasher.Hash("goTokens-decoy-password")
	if err != nil {
		return nil, err
	}
	engine.decoyHash = decoy

	b.built = true

	return engine, nil
}
