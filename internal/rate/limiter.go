package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Op identifies a rate-limited operation.
type Op string

const (
	OpLogin        Op = "login"
	OpRefresh      Op = "refresh"
	OpResetRequest Op = "resetreq"
	OpResetConfirm Op = "resetcfm"
	OpTwoFactor    Op = "twofactor"
)

// OpLimit tunes one operation's budget. A dimension flag enables the
// corresponding counter; when both are enabled the caller must be within
// budget on both (exceeding either blocks).
type OpLimit struct {
	MaxAttempts   int
	Window        time.Duration
	PerIP         bool
	PerIdentifier bool
}

// Enabled reports whether the limit is active at all.
func (l OpLimit) Enabled() bool {
	return l.MaxAttempts > 0 && l.Window > 0 && (l.PerIP || l.PerIdentifier)
}

// Config holds per-operation limits.
type Config struct {
	Login        OpLimit
	Refresh      OpLimit
	ResetRequest OpLimit
	ResetConfirm OpLimit
	TwoFactor    OpLimit
}

func (c Config) limit(op Op) OpLimit {
	switch op {
	case OpLogin:
		return c.Login
	case OpRefresh:
		return c.Refresh
	case OpResetRequest:
		return c.ResetRequest
	case OpResetConfirm:
		return c.ResetConfirm
	case OpTwoFactor:
		return c.TwoFactor
	default:
		return OpLimit{}
	}
}

// Decision is the outcome of one Allow call. RetryAfter is only meaningful
// when Allowed is false; it never exposes the underlying attempt counts.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter enforces fixed-window attempt budgets keyed by (operation,
// dimension, identity).
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
	config Config
}

// New creates a limiter backed by the given Redis client.
func New(redisClient redis.UniversalClient, prefix string, cfg Config) *Limiter {
	if prefix == "" {
		prefix = "gt:rl"
	}
	return &Limiter{
		redis:  redisClient,
		prefix: prefix,
		config: cfg,
	}
}

func (l *Limiter) key(op Op, dimension, identity string) string {
	return l.prefix + ":" + string(op) + ":" + dimension + ":" + identity
}

// Allow atomically records one attempt on every enabled dimension and
// reports whether the caller was still within budget beforehand. Both
// dimensions are checked even when the first already denies, so an attacker
// cannot probe one limit without spending the other.
func (l *Limiter) Allow(ctx context.Context, op Op, ip, identifier string) (Decision, error) {
	limit := l.config.limit(op)
	if !limit.Enabled() {
		return Decision{Allowed: true}, nil
	}

	denied := false
	var retryAfter time.Duration

	if limit.PerIP && ip != "" {
		d, err := l.hit(ctx, l.key(op, "ip", ip), limit)
		if err != nil {
			return Decision{}, err
		}
		if !d.Allowed {
			denied = true
			retryAfter = maxDuration(retryAfter, d.RetryAfter)
		}
	}

	if limit.PerIdentifier && identifier != "" {
		d, err := l.hit(ctx, l.key(op, "id", identifier), limit)
		if err != nil {
			return Decision{}, err
		}
		if !d.Allowed {
			denied = true
			retryAfter = maxDuration(retryAfter, d.RetryAfter)
		}
	}

	if denied {
		return Decision{Allowed: false, RetryAfter: retryAfter}, nil
	}
	return Decision{Allowed: true}, nil
}

// Reset clears the operation's counters for the given identities. Called
// after a successful login or password change.
func (l *Limiter) Reset(ctx context.Context, op Op, ip, identifier string) error {
	limit := l.config.limit(op)
	if !limit.Enabled() {
		return nil
	}

	var keys []string
	if limit.PerIP && ip != "" {
		keys = append(keys, l.key(op, "ip", ip))
	}
	if limit.PerIdentifier && identifier != "" {
		keys = append(keys, l.key(op, "id", identifier))
	}
	if len(keys) == 0 {
		return nil
	}

	if err := l.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) hit(ctx context.Context, key string, limit OpLimit) (Decision, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, limit.Window).Err(); err != nil {
			return Decision{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	// count is post-increment; the pre-increment value was count-1. The N-th
	// attempt under threshold N is the last one allowed.
	if count-1 >= int64(limit.MaxAttempts) {
		retryAfter := limit.Window
		if ttl, err := l.redis.PTTL(ctx, key).Result(); err == nil && ttl > 0 {
			retryAfter = ttl
		}
		return Decision{Allowed: false, RetryAfter: retryAfter}, nil
	}

	return Decision{Allowed: true}, nil
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

// Attempts returns the live counter for one (op, dimension, identity) tuple.
// Missing keys read as zero and do not reveal account existence.
func (l *Limiter) Attempts(ctx context.Context, op Op, dimension, identity string) (int, error) {
	count, err := l.redis.Get(ctx, l.key(op, dimension, identity)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}
