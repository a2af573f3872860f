package tokens

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goTokens/internal"
	"github.com/MrEthical07/goTokens/internal/stores"
	"github.com/MrEthical07/goTokens/token"
)

// Mode selects how a credential kind is issued and checked.
type Mode uint8

const (
	// ModeStore keeps the whole credential in Redis; the token string is the
	// raw opaque id and validation requires the subject id.
	ModeStore Mode = iota
	// ModeCodec issues self-contained signed credentials and never writes
	// the store. Revocation before natural expiry is impossible.
	ModeCodec
	// ModeHybrid signs a credential and mirrors it as a store record under
	// the same token id; deleting the record invalidates the credential
	// immediately.
	ModeHybrid
)

var modeNames = [...]string{"store", "codec", "hybrid"}

func (m Mode) String() string {
	if int(m) >= len(modeNames) {
		return "unknown"
	}
	return modeNames[m]
}

// Valid reports whether m is a defined mode.
func (m Mode) Valid() bool {
	return int(m) < len(modeNames)
}

// SelfDescribing reports whether tokens of this mode carry their subject,
// which flows that only hold the token string (reset confirm, rotation)
// depend on.
func (m Mode) SelfDescribing() bool {
	return m == ModeCodec || m == ModeHybrid
}

var (
	// ErrRevoked is returned when the store half of a credential is gone:
	// revoked, consumed, or rotated out.
	ErrRevoked = errors.New("credential revoked")
	// ErrSubjectMismatch is returned when a credential belongs to a
	// different subject than claimed.
	ErrSubjectMismatch = errors.New("credential subject mismatch")
	// ErrSubjectRequired is returned by store-mode validation without a
	// subject id; opaque ids carry no subject of their own.
	ErrSubjectRequired = errors.New("subject id required for opaque credential")
	// ErrRevokeNotSupported is returned by codec-mode revocation. Callers
	// must not assume revocation happened; compensate or warn.
	ErrRevokeNotSupported = errors.New("revocation not supported in codec mode")
)

// Issued is a freshly generated credential.
type Issued struct {
	Token     string
	TokenID   string
	ExpiresAt time.Time
}

// Identity is the outcome of a successful validation.
type Identity struct {
	SubjectID string
	TokenID   string
}

// Strategy is the four-operation contract every mode implements.
type Strategy interface {
	Generate(ctx context.Context, subjectID string) (*Issued, error)
	// Validate checks the credential. subjectID may be empty for
	// self-describing modes; when non-empty it must match the credential.
	Validate(ctx context.Context, subjectID, tokenStr string) (*Identity, error)
	Revoke(ctx context.Context, subjectID, tokenID string) error
	RevokeAll(ctx context.Context, subjectID string) (int, error)
}

// StrategyConfig fixes a strategy's kind, namespace, and lifetime.
type StrategyConfig struct {
	Kind      token.Kind
	Namespace string
	TTL       time.Duration
}

// NewStrategy builds the strategy for the given mode. The store may be nil
// for ModeCodec; the codec may be nil for ModeStore.
func NewStrategy(mode Mode, cfg StrategyConfig, store *stores.TokenStore, codec *token.Manager) (Strategy, error) {
	if !mode.Valid() {
		return nil, errors.New("invalid credential mode")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("strategy requires a positive ttl")
	}
	switch mode {
	case ModeStore:
		if store == nil {
			return nil, errors.New("store mode requires a token store")
		}
		return &storeStrategy{cfg: cfg, store: store}, nil
	case ModeCodec:
		if codec == nil {
			return nil, errors.New("codec mode requires a codec")
		}
		return &codecStrategy{cfg: cfg, codec: codec}, nil
	default:
		if store == nil || codec == nil {
			return nil, errors.New("hybrid mode requires both store and codec")
		}
		return &hybridStrategy{cfg: cfg, store: store, codec: codec}, nil
	}
}

// storeStrategy: the token string is the opaque id itself.
type storeStrategy struct {
	cfg   StrategyConfig
	store *stores.TokenStore
}

func (s *storeStrategy) Generate(ctx context.Context, subjectID string) (*Issued, error) {
	tokenID, err := s.store.NewTokenID()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	expiresAt := now.Add(s.cfg.TTL)
	record := &stores.Record{
		SubjectID: subjectID,
		TokenID:   tokenID,
		Kind:      uint8(s.cfg.Kind),
		IssuedAt:  now.Unix(),
		ExpiresAt: expiresAt.Unix(),
	}
	if err := s.store.Save(ctx, s.cfg.Namespace, record, s.cfg.TTL); err != nil {
		return nil, err
	}

	return &Issued{Token: tokenID, TokenID: tokenID, ExpiresAt: expiresAt}, nil
}

func (s *storeStrategy) Validate(ctx context.Context, subjectID, tokenStr string) (*Identity, error) {
	if subjectID == "" {
		return nil, ErrSubjectRequired
	}

	exists, err := s.store.Exists(ctx, s.cfg.Namespace, subjectID, tokenStr)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrRevoked
	}

	return &Identity{SubjectID: subjectID, TokenID: tokenStr}, nil
}

func (s *storeStrategy) Revoke(ctx context.Context, subjectID, tokenID string) error {
	return s.store.Delete(ctx, s.cfg.Namespace, subjectID, tokenID)
}

func (s *storeStrategy) RevokeAll(ctx context.Context, subjectID string) (int, error) {
	return s.store.DeleteAllForSubject(ctx, s.cfg.Namespace, subjectID)
}

// codecStrategy: pure signature, no state.
type codecStrategy struct {
	cfg   StrategyConfig
	codec *token.Manager
}

func (s *codecStrategy) Generate(ctx context.Context, subjectID string) (*Issued, error) {
	tokenID, err := internal.NewTokenID()
	if err != nil {
		return nil, err
	}

	expiresAt := time.Now().Add(s.cfg.TTL)
	signed, err := s.codec.Encode(subjectID, tokenID, s.cfg.Kind, expiresAt)
	if err != nil {
		return nil, err
	}

	return &Issued{Token: signed, TokenID: tokenID, ExpiresAt: expiresAt}, nil
}

func (s *codecStrategy) Validate(ctx context.Context, subjectID, tokenStr string) (*Identity, error) {
	claims, err := s.codec.Decode(tokenStr, s.cfg.Kind)
	if err != nil {
		return nil, err
	}
	if subjectID != "" && claims.SubjectID != subjectID {
		return nil, ErrSubjectMismatch
	}

	return &Identity{SubjectID: claims.SubjectID, TokenID: claims.TokenID}, nil
}

func (s *codecStrategy) Revoke(ctx context.Context, subjectID, tokenID string) error {
	return ErrRevokeNotSupported
}

func (s *codecStrategy) RevokeAll(ctx context.Context, subjectID string) (int, error) {
	return 0, ErrRevokeNotSupported
}

// hybridStrategy: signed credential plus store record under one token id.
type hybridStrategy struct {
	cfg   StrategyConfig
	store *stores.TokenStore
	codec *token.Manager
}

func (s *hybridStrategy) Generate(ctx context.Context, subjectID string) (*Issued, error) {
	tokenID, err := s.store.NewTokenID()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	expiresAt := now.Add(s.cfg.TTL)
	record := &stores.Record{
		SubjectID: subjectID,
		TokenID:   tokenID,
		Kind:      uint8(s.cfg.Kind),
		IssuedAt:  now.Unix(),
		ExpiresAt: expiresAt.Unix(),
	}
	if err := s.store.Save(ctx, s.cfg.Namespace, record, s.cfg.TTL); err != nil {
		return nil, err
	}

	signed, err := s.codec.Encode(subjectID, tokenID, s.cfg.Kind, expiresAt)
	if err != nil {
		// No dangling half: a record without its signed sibling must not
		// survive the failed generation.
		_ = s.store.Delete(ctx, s.cfg.Namespace, subjectID, tokenID)
		return nil, err
	}

	return &Issued{Token: signed, TokenID: tokenID, ExpiresAt: expiresAt}, nil
}

func (s *hybridStrategy) Validate(ctx context.Context, subjectID, tokenStr string) (*Identity, error) {
	claims, err := s.codec.Decode(tokenStr, s.cfg.Kind)
	if err != nil {
		return nil, err
	}
	if subjectID != "" && claims.SubjectID != subjectID {
		return nil, ErrSubjectMismatch
	}

	exists, err := s.store.Exists(ctx, s.cfg.Namespace, claims.SubjectID, claims.TokenID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrRevoked
	}

	return &Identity{SubjectID: claims.SubjectID, TokenID: claims.TokenID}, nil
}

func (s *hybridStrategy) Revoke(ctx context.Context, subjectID, tokenID string) error {
	return s.store.Delete(ctx, s.cfg.Namespace, subjectID, tokenID)
}

func (s *hybridStrategy) RevokeAll(ctx context.Context, subjectID string) (int, error) {
	return s.store.DeleteAllForSubject(ctx, s.cfg.Namespace, subjectID)
}
