package tokens

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goTokens/internal"
	"github.com/MrEthical07/goTokens/internal/stores"
	"github.com/MrEthical07/goTokens/token"
)

// ErrReplayed is returned when a rotated-out refresh token is presented
// again: the signature still verifies but the record is gone, which means
// someone is holding a stale copy.
var ErrReplayed = errors.New("refresh token replayed")

// NamespaceRefresh is the store namespace for refresh records.
const NamespaceRefresh = "ref"

// Pair is one atomically issued access+refresh unit.
type Pair struct {
	AccessToken      string
	AccessTokenID    string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshTokenID   string
	RefreshExpiresAt time.Time
}

// AccessRefreshConfig fixes the pair TTLs and the refresh mode.
type AccessRefreshConfig struct {
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
	RefreshMode Mode
}

// AccessRefreshService issues access tokens (always codec mode, short TTL)
// paired with refresh tokens (hybrid by default), rotates refresh tokens,
// and maintains the access blacklist.
type AccessRefreshService struct {
	store   *stores.TokenStore
	codec   *token.Manager
	refresh Strategy
	config  AccessRefreshConfig
}

// NewAccessRefreshService wires the pair issuer. Refresh rotation has to
// recover the subject from the token alone, so ModeStore is rejected here.
func NewAccessRefreshService(
	store *stores.TokenStore,
	codec *token.Manager,
	cfg AccessRefreshConfig,
) (*AccessRefreshService, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("access and refresh ttl must be positive")
	}
	if !cfg.RefreshMode.SelfDescribing() {
		return nil, errors.New("refresh tokens require codec or hybrid mode")
	}

	refresh, err := NewStrategy(cfg.RefreshMode, StrategyConfig{
		Kind:      token.KindRefresh,
		Namespace: NamespaceRefresh,
		TTL:       cfg.RefreshTTL,
	}, store, codec)
	if err != nil {
		return nil, err
	}

	return &AccessRefreshService{
		store:   store,
		codec:   codec,
		refresh: refresh,
		config:  cfg,
	}, nil
}

// Revocable reports whether issued refresh tokens can be revoked before
// natural expiry. False in codec mode; orchestration must warn instead of
// assuming revocation succeeded.
func (s *AccessRefreshService) Revocable() bool {
	return s.config.RefreshMode != ModeCodec
}

// GeneratePair issues one access+refresh unit. The refresh half is written
// first; if the access half cannot be signed the refresh record is removed
// again, so no access token is ever issued against a refresh token that does
// not exist.
func (s *AccessRefreshService) GeneratePair(ctx context.Context, subjectID string) (*Pair, error) {
	refresh, err := s.refresh.Generate(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	accessID, err := internal.NewTokenID()
	if err != nil {
		s.undoRefresh(ctx, subjectID, refresh.TokenID)
		return nil, err
	}

	accessExpiry := time.Now().Add(s.config.AccessTTL)
	access, err := s.codec.Encode(subjectID, accessID, token.KindAccess, accessExpiry)
	if err != nil {
		s.undoRefresh(ctx, subjectID, refresh.TokenID)
		return nil, err
	}

	return &Pair{
		AccessToken:      access,
		AccessTokenID:    accessID,
		AccessExpiresAt:  accessExpiry,
		RefreshToken:     refresh.Token,
		RefreshTokenID:   refresh.TokenID,
		RefreshExpiresAt: refresh.ExpiresAt,
	}, nil
}

func (s *AccessRefreshService) undoRefresh(ctx context.Context, subjectID, tokenID string) {
	if err := s.refresh.Revoke(ctx, subjectID, tokenID); err != nil && !errors.Is(err, ErrRevokeNotSupported) {
		// The orphan record auto-expires with its TTL; nothing else to do.
		_ = err
	}
}

// ValidateRefresh checks a refresh token without consuming it.
func (s *AccessRefreshService) ValidateRefresh(ctx context.Context, tokenStr string) (*Identity, error) {
	return s.refresh.Validate(ctx, "", tokenStr)
}

// Rotate retires the presented refresh token and issues a fresh pair. The
// retire step is an atomic take-delete: of two concurrent rotations of the
// same token, exactly one wins and the other observes a replay.
//
// A structurally valid, unexpired token whose record is already gone is a
// replay signal and fails with ErrReplayed. In codec mode there is no record
// to retire, so reuse of old tokens cannot be detected; that trade-off is
// surfaced through Revocable.
func (s *AccessRefreshService) Rotate(ctx context.Context, tokenStr string) (*Pair, error) {
	claims, err := s.codec.Decode(tokenStr, token.KindRefresh)
	if err != nil {
		return nil, err
	}

	if s.config.RefreshMode == ModeHybrid {
		_, err := s.store.TakeDelete(ctx, NamespaceRefresh, claims.SubjectID, claims.TokenID)
		if err != nil {
			if errors.Is(err, stores.ErrRecordNotFound) {
				return nil, ErrReplayed
			}
			// Store faults fail closed: no rotation without proof of the old
			// record's destruction.
			return nil, err
		}
	}

	return s.GeneratePair(ctx, claims.SubjectID)
}

// BlacklistAccess retires an access token before its natural expiry by
// recording its token id for the remaining lifetime.
func (s *AccessRefreshService) BlacklistAccess(ctx context.Context, tokenStr string) error {
	claims, err := s.codec.Decode(tokenStr, token.KindAccess)
	if err != nil {
		return err
	}
	return s.store.MarkBlacklisted(ctx, claims.TokenID, time.Until(claims.ExpiresAt))
}

// IsAccessBlacklisted reports whether the token id was retired early.
func (s *AccessRefreshService) IsAccessBlacklisted(ctx context.Context, tokenID string) (bool, error) {
	return s.store.IsBlacklisted(ctx, tokenID)
}

// ValidateAccess verifies signature and expiry, then consults the
// blacklist. The blacklist is the only fail-open check in the system: when
// the store is down the signed token stands alone, and degraded reports that
// the fail-open path was taken so callers can log it.
func (s *AccessRefreshService) ValidateAccess(ctx context.Context, tokenStr string) (claims *token.Claims, degraded bool, err error) {
	claims, err = s.codec.Decode(tokenStr, token.KindAccess)
	if err != nil {
		return nil, false, err
	}

	blacklisted, storeErr := s.store.IsBlacklisted(ctx, claims.TokenID)
	if storeErr != nil {
		return claims, true, nil
	}
	if blacklisted {
		return nil, false, ErrRevoked
	}

	return claims, false, nil
}

// RevokeRefresh retires one refresh token by token string.
func (s *AccessRefreshService) RevokeRefresh(ctx context.Context, tokenStr string) error {
	claims, err := s.codec.Decode(tokenStr, token.KindRefresh)
	if err != nil {
		return err
	}
	return s.refresh.Revoke(ctx, claims.SubjectID, claims.TokenID)
}

// RevokeAllForSubject deletes every refresh record for the subject.
func (s *AccessRefreshService) RevokeAllForSubject(ctx context.Context, subjectID string) (int, error) {
	return s.refresh.RevokeAll(ctx, subjectID)
}
