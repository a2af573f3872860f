package tokens

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/MrEthical07/goTokens/token"
)

func newPairService(t *testing.T, mode Mode) (*miniredis.Miniredis, *AccessRefreshService) {
	t.Helper()

	mr, store, codec := newTestBackend(t)
	s, err := NewAccessRefreshService(store, codec, AccessRefreshConfig{
		AccessTTL:   time.Minute,
		RefreshTTL:  time.Hour,
		RefreshMode: mode,
	})
	if err != nil {
		t.Fatalf("NewAccessRefreshService failed: %v", err)
	}
	return mr, s
}

func TestGeneratePair(t *testing.T) {
	_, s := newPairService(t, ModeHybrid)
	ctx := context.Background()

	pair, err := s.GeneratePair(ctx, "u1")
	if err != nil {
		t.Fatalf("GeneratePair failed: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("pair has an empty half")
	}
	if pair.AccessTokenID == pair.RefreshTokenID {
		t.Fatal("access and refresh share a token id")
	}
	if !pair.AccessExpiresAt.Before(pair.RefreshExpiresAt) {
		t.Fatal("access half outlives the refresh half")
	}

	claims, degraded, err := s.ValidateAccess(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccess failed: %v", err)
	}
	if degraded {
		t.Fatal("healthy validation reported degraded")
	}
	if claims.SubjectID != "u1" {
		t.Fatalf("SubjectID = %q, want u1", claims.SubjectID)
	}

	if _, err := s.ValidateRefresh(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("ValidateRefresh failed: %v", err)
	}
}

func TestRotateSingleUse(t *testing.T) {
	_, s := newPairService(t, ModeHybrid)
	ctx := context.Background()

	pair, err := s.GeneratePair(ctx, "u1")
	if err != nil {
		t.Fatalf("GeneratePair failed: %v", err)
	}

	rotated, err := s.Rotate(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	if rotated.RefreshToken == pair.RefreshToken {
		t.Fatal("rotation returned the same refresh token")
	}

	// The retired token is now a replay signal.
	if _, err := s.Rotate(ctx, pair.RefreshToken); !errors.Is(err, ErrReplayed) {
		t.Fatalf("second Rotate = %v, want ErrReplayed", err)
	}

	// The replacement still works.
	if _, err := s.Rotate(ctx, rotated.RefreshToken); err != nil {
		t.Fatalf("Rotate of replacement failed: %v", err)
	}
}

func TestRotateConcurrentSingleWinner(t *testing.T) {
	_, s := newPairService(t, ModeHybrid)
	ctx := context.Background()

	pair, err := s.GeneratePair(ctx, "u1")
	if err != nil {
		t.Fatalf("GeneratePair failed: %v", err)
	}

	const racers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		winners  int
		replayed int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Rotate(ctx, pair.RefreshToken)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, ErrReplayed):
				replayed++
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("%d rotations won, want exactly 1", winners)
	}
	if replayed != racers-1 {
		t.Fatalf("%d rotations saw replay, want %d", replayed, racers-1)
	}
}

func TestRotateCodecModeUndetectable(t *testing.T) {
	_, s := newPairService(t, ModeCodec)
	ctx := context.Background()

	if s.Revocable() {
		t.Fatal("codec mode claims revocability")
	}

	pair, err := s.GeneratePair(ctx, "u1")
	if err != nil {
		t.Fatalf("GeneratePair failed: %v", err)
	}

	// Without a record there is nothing to retire; reuse goes unnoticed.
	if _, err := s.Rotate(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	if _, err := s.Rotate(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("reused Rotate in codec mode = %v, want nil", err)
	}
}

func TestRotateRejectsAccessToken(t *testing.T) {
	_, s := newPairService(t, ModeHybrid)
	ctx := context.Background()

	pair, err := s.GeneratePair(ctx, "u1")
	if err != nil {
		t.Fatalf("GeneratePair failed: %v", err)
	}

	if _, err := s.Rotate(ctx, pair.AccessToken); !errors.Is(err, token.ErrKindMismatch) {
		t.Fatalf("Rotate with access token = %v, want ErrKindMismatch", err)
	}
}

func TestBlacklistAccess(t *testing.T) {
	_, s := newPairService(t, ModeHybrid)
	ctx := context.Background()

	pair, err := s.GeneratePair(ctx, "u1")
	if err != nil {
		t.Fatalf("GeneratePair failed: %v", err)
	}

	if err := s.BlacklistAccess(ctx, pair.AccessToken); err != nil {
		t.Fatalf("BlacklistAccess failed: %v", err)
	}

	listed, err := s.IsAccessBlacklisted(ctx, pair.AccessTokenID)
	if err != nil {
		t.Fatalf("IsAccessBlacklisted failed: %v", err)
	}
	if !listed {
		t.Fatal("token not blacklisted")
	}

	if _, _, err := s.ValidateAccess(ctx, pair.AccessToken); !errors.Is(err, ErrRevoked) {
		t.Fatalf("ValidateAccess after blacklist = %v, want ErrRevoked", err)
	}
}

func TestValidateAccessDegraded(t *testing.T) {
	mr, s := newPairService(t, ModeHybrid)
	ctx := context.Background()

	pair, err := s.GeneratePair(ctx, "u1")
	if err != nil {
		t.Fatalf("GeneratePair failed: %v", err)
	}

	mr.Close()

	// The blacklist is the one fail-open check: the signed token stands
	// alone, with the degraded flag raised.
	claims, degraded, err := s.ValidateAccess(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccess with dead store = %v, want nil", err)
	}
	if !degraded {
		t.Fatal("fail-open validation did not report degraded")
	}
	if claims.SubjectID != "u1" {
		t.Fatalf("SubjectID = %q, want u1", claims.SubjectID)
	}
}

func TestRotateFailsClosedOnStoreFault(t *testing.T) {
	mr, s := newPairService(t, ModeHybrid)
	ctx := context.Background()

	pair, err := s.GeneratePair(ctx, "u1")
	if err != nil {
		t.Fatalf("GeneratePair failed: %v", err)
	}

	mr.Close()

	if _, err := s.Rotate(ctx, pair.RefreshToken); err == nil {
		t.Fatal("Rotate succeeded without proof of the old record's destruction")
	}
}

func TestRevokeRefresh(t *testing.T) {
	_, s := newPairService(t, ModeHybrid)
	ctx := context.Background()

	pair, err := s.GeneratePair(ctx, "u1")
	if err != nil {
		t.Fatalf("GeneratePair failed: %v", err)
	}

	if err := s.RevokeRefresh(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("RevokeRefresh failed: %v", err)
	}
	if _, err := s.ValidateRefresh(ctx, pair.RefreshToken); !errors.Is(err, ErrRevoked) {
		t.Fatalf("ValidateRefresh after revoke = %v, want ErrRevoked", err)
	}
}

func TestRevokeAllForSubject(t *testing.T) {
	_, s := newPairService(t, ModeHybrid)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := s.GeneratePair(ctx, "u1"); err != nil {
			t.Fatalf("GeneratePair failed: %v", err)
		}
	}

	n, err := s.RevokeAllForSubject(ctx, "u1")
	if err != nil {
		t.Fatalf("RevokeAllForSubject failed: %v", err)
	}
	if n != 3 {
		t.Fatalf("revoked %d refresh tokens, want 3", n)
	}
}

func TestNewAccessRefreshServiceRejectsStoreMode(t *testing.T) {
	_, store, codec := newTestBackend(t)

	_, err := NewAccessRefreshService(store, codec, AccessRefreshConfig{
		AccessTTL:   time.Minute,
		RefreshTTL:  time.Hour,
		RefreshMode: ModeStore,
	})
	if err == nil {
		t.Fatal("store-mode refresh accepted; rotation cannot recover the subject")
	}
}
