package goTokens

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

// fakeHasher is a deterministic stand-in for Argon2 so engine tests measure
// engine behavior, not hashing cost.
type fakeHasher struct{}

func (fakeHasher) Hash(plain string) (string, error) {
	if plain == "" {
		return "", errors.New("empty password")
	}
	return "h:" + plain, nil
}

func (fakeHasher) Verify(plain, hash string) (bool, error) {
	return hash == "h:"+plain, nil
}

type mockUserProvider struct {
	mu      sync.Mutex
	byID    map[string]*UserRecord
	byIdent map[string]*UserRecord

	updateCalls int
}

func newMockUserProvider(users ...*UserRecord) *mockUserProvider {
	p := &mockUserProvider{
		byID:    make(map[string]*UserRecord),
		byIdent: make(map[string]*UserRecord),
	}
	for _, u := range users {
		p.byID[u.SubjectID] = u
		p.byIdent[u.Identifier] = u
	}
	return p
}

func (p *mockUserProvider) FindByID(_ context.Context, subjectID string) (*UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.byID[subjectID]
	if !ok {
		return nil, fmt.Errorf("user %q not found", subjectID)
	}
	copied := *u
	return &copied, nil
}

func (p *mockUserProvider) FindByIdentifier(_ context.Context, identifier string) (*UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.byIdent[identifier]
	if !ok {
		return nil, fmt.Errorf("user %q not found", identifier)
	}
	copied := *u
	return &copied, nil
}

func (p *mockUserProvider) UpdatePasswordHash(_ context.Context, subjectID, newHash string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.byID[subjectID]
	if !ok {
		return fmt.Errorf("user %q not found", subjectID)
	}
	u.PasswordHash = newHash
	p.updateCalls++
	return nil
}

func (p *mockUserProvider) passwordHashOf(subjectID string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if u, ok := p.byID[subjectID]; ok {
		return u.PasswordHash
	}
	return ""
}

type mockMailer struct {
	mu        sync.Mutex
	resets    []ResetEmail
	codes     []TwoFactorEmail
	failNext  bool
	failError error
}

func (m *mockMailer) SendResetEmail(_ context.Context, mail ResetEmail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext {
		m.failNext = false
		return m.failError
	}
	m.resets = append(m.resets, mail)
	return nil
}

func (m *mockMailer) SendTwoFactorEmail(_ context.Context, mail TwoFactorEmail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext {
		m.failNext = false
		return m.failError
	}
	m.codes = append(m.codes, mail)
	return nil
}

func (m *mockMailer) lastReset(t *testing.T) ResetEmail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.resets) == 0 {
		t.Fatal("no reset mail was sent")
	}
	return m.resets[len(m.resets)-1]
}

func (m *mockMailer) lastCode(t *testing.T) TwoFactorEmail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.codes) == 0 {
		t.Fatal("no two-factor mail was sent")
	}
	return m.codes[len(m.codes)-1]
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Codec.Issuer = "test"
	cfg.Codec.AccessSecret = []byte("test-access-secret-000000001")
	cfg.Codec.RefreshSecret = []byte("test-refresh-secret-00000001")
	cfg.Codec.ResetSecret = []byte("test-reset-secret-0000000001")
	cfg.Codec.TwoFactorSecret = []byte("test-twofactor-secret-00001")
	return cfg
}

func activeUser() *UserRecord {
	return &UserRecord{
		SubjectID:    "u1",
		Identifier:   "alice@example.com",
		Email:        "alice@example.com",
		PasswordHash: "h:correct-password",
		Active:       true,
	}
}

type testEnv struct {
	mr       *miniredis.Miniredis
	engine   *Engine
	provider *mockUserProvider
	mailer   *mockMailer
}

func newTestEngine(t *testing.T, cfg Config, users ...*UserRecord) *testEnv {
	t.Helper()

	mr, client := newTestRedis(t)
	provider := newMockUserProvider(users...)
	mailer := &mockMailer{}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(client).
		WithUserProvider(provider).
		WithPasswordHasher(fakeHasher{}).
		WithMailer(mailer).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{
		mr:       mr,
		engine:   engine,
		provider: provider,
		mailer:   mailer,
	}
}

// newAuditedEngine is newTestEngine plus a ChannelSink, for tests that
// assert on emitted audit events.
func newAuditedEngine(t *testing.T, cfg Config, users ...*UserRecord) (*testEnv, *ChannelSink) {
	t.Helper()

	mr, client := newTestRedis(t)
	provider := newMockUserProvider(users...)
	mailer := &mockMailer{}
	sink := NewChannelSink(64)

	engine, err := New().
		WithConfig(cfg).
		WithRedis(client).
		WithUserProvider(provider).
		WithPasswordHasher(fakeHasher{}).
		WithMailer(mailer).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{
		mr:       mr,
		engine:   engine,
		provider: provider,
		mailer:   mailer,
	}, sink
}

// waitForAuditEvent drains the sink until an event of the wanted type
// arrives. Events of other types are discarded.
func waitForAuditEvent(t *testing.T, sink *ChannelSink, eventType string) AuditEvent {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-sink.Events():
			if ev.EventType == eventType {
				return ev
			}
		case <-deadline:
			t.Fatalf("audit event %q never arrived", eventType)
		}
	}
}

// login is the common happy-path entry used by refresh/logout/reset tests.
func (env *testEnv) login(t *testing.T) *LoginResult {
	t.Helper()

	result, err := env.engine.Login(context.Background(), "alice@example.com", "correct-password")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	return result
}

func waitForMetric(t *testing.T, engine *Engine, id MetricID, want uint64) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if engine.MetricsSnapshot().Counters[id] >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("metric %d never reached %d", id, want)
}
