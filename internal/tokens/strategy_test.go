package tokens

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goTokens/internal/stores"
	"github.com/MrEthical07/goTokens/token"
)

func newTestBackend(t *testing.T) (*miniredis.Miniredis, *stores.TokenStore, *token.Manager) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := stores.NewTokenStore(client, "gt")

	codec, err := token.NewManager(token.Config{
		Secrets: map[token.Kind][]byte{
			token.KindAccess:    []byte("access-secret-0123456789abcdef"),
			token.KindRefresh:   []byte("refresh-secret-0123456789abcdef"),
			token.KindReset:     []byte("reset-secret-0123456789abcdef"),
			token.KindTwoFactor: []byte("twofactor-secret-0123456789abcdef"),
		},
		Issuer: "test",
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	return mr, store, codec
}

func strategyFor(t *testing.T, mode Mode) Strategy {
	t.Helper()

	_, store, codec := newTestBackend(t)
	s, err := NewStrategy(mode, StrategyConfig{
		Kind:      token.KindRefresh,
		Namespace: "ref",
		TTL:       time.Hour,
	}, store, codec)
	if err != nil {
		t.Fatalf("NewStrategy(%v) failed: %v", mode, err)
	}
	return s
}

func TestStoreStrategyLifecycle(t *testing.T) {
	s := strategyFor(t, ModeStore)
	ctx := context.Background()

	issued, err := s.Generate(ctx, "u1")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	// In store mode the token string is the opaque id itself.
	if issued.Token != issued.TokenID {
		t.Fatalf("Token = %q, TokenID = %q, want identical", issued.Token, issued.TokenID)
	}

	identity, err := s.Validate(ctx, "u1", issued.Token)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if identity.SubjectID != "u1" {
		t.Fatalf("SubjectID = %q, want u1", identity.SubjectID)
	}

	// Opaque ids carry no subject; validation without one is refused.
	if _, err := s.Validate(ctx, "", issued.Token); !errors.Is(err, ErrSubjectRequired) {
		t.Fatalf("Validate without subject = %v, want ErrSubjectRequired", err)
	}

	if err := s.Revoke(ctx, "u1", issued.TokenID); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if _, err := s.Validate(ctx, "u1", issued.Token); !errors.Is(err, ErrRevoked) {
		t.Fatalf("Validate after revoke = %v, want ErrRevoked", err)
	}
}

func TestCodecStrategyLifecycle(t *testing.T) {
	s := strategyFor(t, ModeCodec)
	ctx := context.Background()

	issued, err := s.Generate(ctx, "u1")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	identity, err := s.Validate(ctx, "", issued.Token)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if identity.SubjectID != "u1" || identity.TokenID != issued.TokenID {
		t.Fatalf("unexpected identity: %+v", identity)
	}

	if _, err := s.Validate(ctx, "someone-else", issued.Token); !errors.Is(err, ErrSubjectMismatch) {
		t.Fatalf("Validate wrong subject = %v, want ErrSubjectMismatch", err)
	}

	if err := s.Revoke(ctx, "u1", issued.TokenID); !errors.Is(err, ErrRevokeNotSupported) {
		t.Fatalf("Revoke = %v, want ErrRevokeNotSupported", err)
	}
	if _, err := s.RevokeAll(ctx, "u1"); !errors.Is(err, ErrRevokeNotSupported) {
		t.Fatalf("RevokeAll = %v, want ErrRevokeNotSupported", err)
	}
}

func TestHybridStrategyLifecycle(t *testing.T) {
	s := strategyFor(t, ModeHybrid)
	ctx := context.Background()

	issued, err := s.Generate(ctx, "u1")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	// Self-describing: no subject required.
	identity, err := s.Validate(ctx, "", issued.Token)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if identity.SubjectID != "u1" {
		t.Fatalf("SubjectID = %q, want u1", identity.SubjectID)
	}

	if err := s.Revoke(ctx, "u1", issued.TokenID); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	// The signature still verifies but the record is gone.
	if _, err := s.Validate(ctx, "", issued.Token); !errors.Is(err, ErrRevoked) {
		t.Fatalf("Validate after revoke = %v, want ErrRevoked", err)
	}
}

func TestHybridRevokeAll(t *testing.T) {
	s := strategyFor(t, ModeHybrid)
	ctx := context.Background()

	tokens := make([]*Issued, 0, 3)
	for i := 0; i < 3; i++ {
		issued, err := s.Generate(ctx, "u1")
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		tokens = append(tokens, issued)
	}

	n, err := s.RevokeAll(ctx, "u1")
	if err != nil {
		t.Fatalf("RevokeAll failed: %v", err)
	}
	if n != 3 {
		t.Fatalf("RevokeAll revoked %d, want 3", n)
	}

	for _, issued := range tokens {
		if _, err := s.Validate(ctx, "", issued.Token); !errors.Is(err, ErrRevoked) {
			t.Fatalf("Validate after RevokeAll = %v, want ErrRevoked", err)
		}
	}
}

func TestNewStrategyRejectsInvalidInputs(t *testing.T) {
	_, store, codec := newTestBackend(t)

	cfg := StrategyConfig{Kind: token.KindRefresh, Namespace: "ref", TTL: time.Hour}

	if _, err := NewStrategy(Mode(42), cfg, store, codec); err == nil {
		t.Fatal("NewStrategy accepted an undefined mode")
	}
	if _, err := NewStrategy(ModeHybrid, StrategyConfig{Kind: token.KindRefresh, Namespace: "ref"}, store, codec); err == nil {
		t.Fatal("NewStrategy accepted zero ttl")
	}
	if _, err := NewStrategy(ModeStore, cfg, nil, codec); err == nil {
		t.Fatal("store mode accepted a nil store")
	}
	if _, err := NewStrategy(ModeCodec, cfg, store, nil); err == nil {
		t.Fatal("codec mode accepted a nil codec")
	}
	if _, err := NewStrategy(ModeHybrid, cfg, nil, codec); err == nil {
		t.Fatal("hybrid mode accepted a nil store")
	}
}

func TestModeProperties(t *testing.T) {
	if ModeStore.SelfDescribing() {
		t.Fatal("store mode claims to be self-describing")
	}
	if !ModeCodec.SelfDescribing() || !ModeHybrid.SelfDescribing() {
		t.Fatal("codec and hybrid modes must be self-describing")
	}
	if Mode(42).Valid() {
		t.Fatal("undefined mode claims validity")
	}
	if got := ModeHybrid.String(); got != "hybrid" {
		t.Fatalf("ModeHybrid.String() = %q", got)
	}
}
