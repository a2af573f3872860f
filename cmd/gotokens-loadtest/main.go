// Command gotokens-loadtest measures validate and refresh throughput against
// a live Redis (or embedded miniredis). Password hashing is stubbed out so
// the numbers reflect token operations, not Argon2.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	goTokens "github.com/MrEthical07/goTokens"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type pairState struct {
	access  string
	refresh string
	mu      sync.Mutex
}

func main() {
	var (
		subjects    = flag.Int("subjects", 10000, "number of subjects to seed")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase (validate + refresh)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *subjects <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "subjects, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := goTokens.DefaultConfig()
	cfg.Codec.Issuer = "loadtest"
	cfg.Codec.AccessSecret = []byte("loadtest-access-secret-000000001")
	cfg.Codec.RefreshSecret = []byte("loadtest-refresh-secret-00000001")
	cfg.Codec.ResetSecret = []byte("loadtest-reset-secret-0000000001")
	cfg.Codec.TwoFactorSecret = []byte("loadtest-twofactor-secret-00001")
	cfg.RateLimit.Login = goTokens.OpLimit{}
	cfg.RateLimit.Refresh = goTokens.OpLimit{}
	cfg.Audit.Enabled = false

	provider := &seedProvider{n: *subjects}
	engine, err := goTokens.New().
		WithConfig(cfg).
		WithRedis(client).
		WithUserProvider(provider).
		WithPasswordHasher(plainHasher{}).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	states := make([]pairState, *subjects)
	fmt.Printf("seeding %d subjects...\n", *subjects)
	startSeed := time.Now()
	for i := 0; i < *subjects; i++ {
		result, err := engine.Login(ctx, subjectIdentifier(i), "loadtest-password")
		if err != nil {
			fmt.Fprintf(os.Stderr, "seed login failed: %v\n", err)
			os.Exit(1)
		}
		states[i] = pairState{access: result.AccessToken, refresh: result.RefreshToken}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	validateStats := runValidatePhase(ctx, engine, states, *ops, *concurrency)
	refreshStats := runRefreshPhase(ctx, engine, states, *ops, *concurrency)

	fmt.Println("---- results ----")
	printStats("validate", validateStats)
	printStats("refresh", refreshStats)
}

func runValidatePhase(ctx context.Context, engine *goTokens.Engine, states []pairState, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				idx := r.Intn(len(states))
				t0 := time.Now()
				_, err := engine.ValidateAccess(ctx, states[idx].access)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

func runRefreshPhase(ctx context.Context, engine *goTokens.Engine, states []pairState, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*6151))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				idx := r.Intn(len(states))
				state := &states[idx]

				state.mu.Lock()
				t0 := time.Now()
				result, err := engine.Refresh(ctx, state.refresh)
				d := time.Since(t0)
				if err == nil {
					state.access = result.AccessToken
					state.refresh = result.RefreshToken
				} else {
					atomic.AddInt64(&failures, 1)
				}
				state.mu.Unlock()

				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

func subjectIdentifier(i int) string {
	return fmt.Sprintf("subject-%d@loadtest.local", i)
}

// seedProvider fabricates one active account per index on demand.
type seedProvider struct {
	n int
}

func (p *seedProvider) FindByIdentifier(_ context.Context, identifier string) (*goTokens.UserRecord, error) {
	var i int
	if _, err := fmt.Sscanf(identifier, "subject-%d@loadtest.local", &i); err != nil || i < 0 || i >= p.n {
		return nil, fmt.Errorf("user not found")
	}
	return p.record(i), nil
}

func (p *seedProvider) FindByID(_ context.Context, subjectID string) (*goTokens.UserRecord, error) {
	var i int
	if _, err := fmt.Sscanf(subjectID, "subject-%d", &i); err != nil || i < 0 || i >= p.n {
		return nil, fmt.Errorf("user not found")
	}
	return p.record(i), nil
}

func (p *seedProvider) UpdatePasswordHash(context.Context, string, string) error {
	return nil
}

func (p *seedProvider) record(i int) *goTokens.UserRecord {
	return &goTokens.UserRecord{
		SubjectID:    fmt.Sprintf("subject-%d", i),
		Identifier:   subjectIdentifier(i),
		PasswordHash: "loadtest-password",
		Active:       true,
	}
}

// plainHasher compares plaintext directly; it exists so seeding cost is not
// dominated by Argon2.
type plainHasher struct{}

func (plainHasher) Hash(plain string) (string, error) { return plain, nil }

func (plainHasher) Verify(plain, hash string) (bool, error) { return plain == hash, nil }
