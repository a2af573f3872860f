package tokens

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goTokens/internal/stores"
	"github.com/MrEthical07/goTokens/token"
)

// NamespaceReset is the store namespace for password-reset records.
const NamespaceReset = "rst"

// PasswordResetConfig fixes reset credential behavior.
type PasswordResetConfig struct {
	TTL  time.Duration
	Mode Mode
}

// PasswordResetService issues one-time password-reset credentials. A subject
// may hold several outstanding reset tokens at once (repeated requests);
// each one dies on first successful consumption or when the subject's
// password changes through any path.
type PasswordResetService struct {
	strategy Strategy
	store    *stores.TokenStore
	config   PasswordResetConfig
}

// NewPasswordResetService wires the reset issuer. Consumption resolves the
// subject from the token alone, so ModeStore is rejected.
func NewPasswordResetService(
	store *stores.TokenStore,
	codec *token.Manager,
	cfg PasswordResetConfig,
) (*PasswordResetService, error) {
	if cfg.TTL <= 0 {
		return nil, errors.New("reset ttl must be positive")
	}
	if !cfg.Mode.SelfDescribing() {
		return nil, errors.New("reset tokens require codec or hybrid mode")
	}

	strategy, err := NewStrategy(cfg.Mode, StrategyConfig{
		Kind:      token.KindReset,
		Namespace: NamespaceReset,
		TTL:       cfg.TTL,
	}, store, codec)
	if err != nil {
		return nil, err
	}

	return &PasswordResetService{
		strategy: strategy,
		store:    store,
		config:   cfg,
	}, nil
}

// Revocable reports whether outstanding reset tokens can be destroyed before
// expiry. False in codec mode.
func (s *PasswordResetService) Revocable() bool {
	return s.config.Mode != ModeCodec
}

// Generate issues a fresh reset credential for the subject.
func (s *PasswordResetService) Generate(ctx context.Context, subjectID string) (*Issued, error) {
	return s.strategy.Generate(ctx, subjectID)
}

// Consume validates and destroys a reset credential in one step. Every
// failure (malformed, bad signature, expired, revoked, already consumed,
// store outage) collapses to ok=false so the caller-visible outcome never
// distinguishes why. Store faults fail closed.
//
// In hybrid mode the destroy is an atomic take-delete, so a token consumed
// by two racing calls succeeds for exactly one of them. In codec mode there
// is no record to destroy and one-time use cannot be enforced; Revocable
// surfaces that trade-off.
func (s *PasswordResetService) Consume(ctx context.Context, tokenStr string) (subjectID string, ok bool) {
	identity, err := s.strategy.Validate(ctx, "", tokenStr)
	if err != nil {
		return "", false
	}

	if s.config.Mode == ModeHybrid {
		if _, err := s.store.TakeDelete(ctx, NamespaceReset, identity.SubjectID, identity.TokenID); err != nil {
			return "", false
		}
	}

	return identity.SubjectID, true
}

// RevokeAll destroys every outstanding reset credential for the subject.
// Called after a successful reset and after any unrelated password change.
func (s *PasswordResetService) RevokeAll(ctx context.Context, subjectID string) (int, error) {
	return s.strategy.RevokeAll(ctx, subjectID)
}
