package tokens

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/MrEthical07/goTokens/internal"
	"github.com/MrEthical07/goTokens/internal/stores"
	"github.com/MrEthical07/goTokens/token"
)

// NamespaceTwoFactor is the store namespace for 2FA challenge records.
const NamespaceTwoFactor = "tfa"

var (
	// ErrCodeMismatch is returned when the supplied code does not match the
	// challenge. The attempt has been counted.
	ErrCodeMismatch = errors.New("two-factor code mismatch")
	// ErrChallengeExhausted is returned when a challenge hit its attempt cap
	// and was destroyed.
	ErrChallengeExhausted = errors.New("two-factor challenge attempts exceeded")
)

// TwoFactorConfig fixes challenge behavior.
type TwoFactorConfig struct {
	TTL         time.Duration
	Mode        Mode
	CodeDigits  int
	MaxAttempts int
}

// Challenge is one issued 2FA challenge: the delivered code and the
// credential that must be presented alongside it, so guessing codes without
// possession of the token buys nothing.
type Challenge struct {
	Code      string
	Token     string
	TokenID   string
	ExpiresAt time.Time
}

// TwoFactorService issues and verifies one-time numeric codes bound to
// challenge credentials. Codes are stored hashed; verification compares in
// constant time and destroys the record on the first match.
type TwoFactorService struct {
	codec  *token.Manager
	store  *stores.TokenStore
	config TwoFactorConfig
}

// NewTwoFactorService wires the challenge issuer. The challenge record holds
// the code hash, so 2FA is inherently stateful: ModeCodec cannot carry it
// and only hybrid is accepted (the record is the source of truth and the
// signed token proves possession).
func NewTwoFactorService(
	store *stores.TokenStore,
	codec *token.Manager,
	cfg TwoFactorConfig,
) (*TwoFactorService, error) {
	if cfg.TTL <= 0 {
		return nil, errors.New("two-factor ttl must be positive")
	}
	if cfg.Mode != ModeHybrid {
		return nil, errors.New("two-factor challenges require hybrid mode")
	}
	if cfg.CodeDigits == 0 {
		cfg.CodeDigits = 6
	}
	if cfg.CodeDigits < 4 || cfg.CodeDigits > 10 {
		return nil, errors.New("two-factor code digits must be in [4, 10]")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}

	return &TwoFactorService{
		codec:  codec,
		store:  store,
		config: cfg,
	}, nil
}

// CodeDigits returns the configured code length.
func (s *TwoFactorService) CodeDigits() int {
	return s.config.CodeDigits
}

// Generate issues a new challenge. Outstanding challenges for the subject
// are left alone; each lives until expiry, consumption, or attempt cap.
func (s *TwoFactorService) Generate(ctx context.Context, subjectID string) (*Challenge, error) {
	code, err := internal.NewOTP(s.config.CodeDigits)
	if err != nil {
		return nil, err
	}

	tokenID, err := s.store.NewTokenID()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	expiresAt := now.Add(s.config.TTL)
	record := &stores.Record{
		SubjectID: subjectID,
		TokenID:   tokenID,
		Kind:      uint8(token.KindTwoFactor),
		IssuedAt:  now.Unix(),
		ExpiresAt: expiresAt.Unix(),
		CodeHash:  internal.HashCode(code),
	}
	if err := s.store.Save(ctx, NamespaceTwoFactor, record, s.config.TTL); err != nil {
		return nil, err
	}

	signed, err := s.codec.Encode(subjectID, tokenID, token.KindTwoFactor, expiresAt)
	if err != nil {
		_ = s.store.Delete(ctx, NamespaceTwoFactor, subjectID, tokenID)
		return nil, err
	}

	return &Challenge{
		Code:      code,
		Token:     signed,
		TokenID:   tokenID,
		ExpiresAt: expiresAt,
	}, nil
}

// Verify checks the code against the challenge credential. A match destroys
// the record atomically (one-time use, even under concurrent verification);
// a mismatch counts an attempt and destroys the challenge at the cap. When
// subjectID is non-empty the challenge must belong to that subject.
func (s *TwoFactorService) Verify(ctx context.Context, subjectID, code, tokenStr string) (*Identity, error) {
	claims, err := s.codec.Decode(tokenStr, token.KindTwoFactor)
	if err != nil {
		return nil, err
	}
	if subjectID != "" && claims.SubjectID != subjectID {
		return nil, ErrSubjectMismatch
	}

	record, err := s.store.Get(ctx, NamespaceTwoFactor, claims.SubjectID, claims.TokenID)
	if err != nil {
		if errors.Is(err, stores.ErrRecordNotFound) {
			return nil, ErrRevoked
		}
		return nil, err
	}

	supplied := internal.HashCode(code)
	if subtle.ConstantTimeCompare(record.CodeHash[:], supplied[:]) != 1 {
		if err := s.store.RecordFailure(ctx, NamespaceTwoFactor, claims.SubjectID, claims.TokenID, s.config.MaxAttempts); err != nil {
			switch {
			case errors.Is(err, stores.ErrAttemptsExceeded):
				return nil, ErrChallengeExhausted
			case errors.Is(err, stores.ErrRecordNotFound):
				return nil, ErrRevoked
			default:
				return nil, err
			}
		}
		return nil, ErrCodeMismatch
	}

	// Success is causally bound to destruction: whoever take-deletes the
	// record owns the only successful validation of this challenge.
	if _, err := s.store.TakeDelete(ctx, NamespaceTwoFactor, claims.SubjectID, claims.TokenID); err != nil {
		if errors.Is(err, stores.ErrRecordNotFound) {
			return nil, ErrRevoked
		}
		return nil, err
	}

	return &Identity{SubjectID: claims.SubjectID, TokenID: claims.TokenID}, nil
}

// RevokeAll destroys every outstanding challenge for the subject.
func (s *TwoFactorService) RevokeAll(ctx context.Context, subjectID string) (int, error) {
	return s.store.DeleteAllForSubject(ctx, NamespaceTwoFactor, subjectID)
}
