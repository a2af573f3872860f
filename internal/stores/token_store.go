package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goTokens/internal"
)

var (
	// ErrRecordNotFound is returned when the requested record does not exist
	// or has already logically expired.
	ErrRecordNotFound = errors.New("token record not found")
	// ErrAttemptsExceeded is returned when a failure-counted record hits its
	// attempt cap and is destroyed.
	ErrAttemptsExceeded = errors.New("token attempts exceeded")
	// ErrStoreUnavailable wraps every Redis infrastructure fault. Callers
	// must fail closed on it for security-bearing checks.
	ErrStoreUnavailable = errors.New("token store unavailable")
)

// deleteRecordScript removes a record and its index entry atomically.
// Deleting an absent key is not an error.
const deleteRecordScript = `
redis.call("SREM", KEYS[2], ARGV[1])
return redis.call("DEL", KEYS[1])
`

// takeDeleteScript is the atomic get-then-delete used for rotation and
// one-time consumption: it returns what was deleted, closing the race where
// two concurrent callers both observe the record as live.
const takeDeleteScript = `
local blob = redis.call("GET", KEYS[1])
if not blob then
  return false
end
redis.call("DEL", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
return blob
`

var (
	deleteRecordLua = redis.NewScript(deleteRecordScript)
	takeDeleteLua   = redis.NewScript(takeDeleteScript)
)

// TokenStore is a namespaced TTL key-value store over Redis. Every record is
// keyed by (namespace, subject id, token id) and indexed per subject so that
// delete-all-for-subject stays O(outstanding tokens).
type TokenStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewTokenStore creates a store with the given key prefix (default "gt").
func NewTokenStore(redisClient redis.UniversalClient, prefix string) *TokenStore {
	if prefix == "" {
		prefix = "gt"
	}
	return &TokenStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

// NewTokenID returns a fresh opaque token identifier with 128 bits of
// entropy.
func (s *TokenStore) NewTokenID() (string, error) {
	return internal.NewTokenID()
}

func (s *TokenStore) key(namespace, subjectID, tokenID string) string {
	return s.prefix + ":" + namespace + ":" + subjectID + ":" + tokenID
}

func (s *TokenStore) indexKey(namespace, subjectID string) string {
	return s.prefix + ":" + namespace + ":idx:" + subjectID
}

func (s *TokenStore) blacklistKey(tokenID string) string {
	return s.prefix + ":bl:" + tokenID
}

// Save persists the record with auto-expiry and registers it in the
// subject's index. The physical TTL bounds the logical lifetime, so no
// record outlives its validity beyond Redis expiry propagation.
func (s *TokenStore) Save(ctx context.Context, namespace string, record *Record, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("non-positive ttl for %s record", namespace)
	}
	encoded, err := encodeRecord(record)
	if err != nil {
		return err
	}

	key := s.key(namespace, record.SubjectID, record.TokenID)
	index := s.indexKey(namespace, record.SubjectID)

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, encoded, ttl)
		pipe.SAdd(ctx, index, record.TokenID)
		// Records within a namespace share one TTL scale, so refreshing the
		// index to the newest record's TTL keeps it alive long enough.
		pipe.Expire(ctx, index, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return nil
}

// Get loads a record, enforcing logical expiry on top of Redis TTL.
func (s *TokenStore) Get(ctx context.Context, namespace, subjectID, tokenID string) (*Record, error) {
	data, err := s.redis.Get(ctx, s.key(namespace, subjectID, tokenID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	record, err := decodeRecord(data)
	if err != nil {
		return nil, err
	}
	if time.Now().Unix() > record.ExpiresAt {
		_ = s.Delete(ctx, namespace, subjectID, tokenID)
		return nil, ErrRecordNotFound
	}

	return record, nil
}

// Exists reports whether a live record is present.
func (s *TokenStore) Exists(ctx context.Context, namespace, subjectID, tokenID string) (bool, error) {
	_, err := s.Get(ctx, namespace, subjectID, tokenID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Delete removes a record. Idempotent: deleting an absent record succeeds.
func (s *TokenStore) Delete(ctx context.Context, namespace, subjectID, tokenID string) error {
	err := deleteRecordLua.Run(
		ctx,
		s.redis,
		[]string{s.key(namespace, subjectID, tokenID), s.indexKey(namespace, subjectID)},
		tokenID,
	).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// TakeDelete atomically removes and returns the record. Exactly one of two
// concurrent callers gets the record; the other sees ErrRecordNotFound.
func (s *TokenStore) TakeDelete(ctx context.Context, namespace, subjectID, tokenID string) (*Record, error) {
	res, err := takeDeleteLua.Run(
		ctx,
		s.redis,
		[]string{s.key(namespace, subjectID, tokenID), s.indexKey(namespace, subjectID)},
		tokenID,
	).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	blob, ok := res.(string)
	if !ok {
		return nil, ErrRecordNotFound
	}

	record, err := decodeRecord([]byte(blob))
	if err != nil {
		return nil, err
	}
	if time.Now().Unix() > record.ExpiresAt {
		return nil, ErrRecordNotFound
	}

	return record, nil
}

// DeleteAllForSubject removes every record in the namespace belonging to the
// subject and returns how many were live.
func (s *TokenStore) DeleteAllForSubject(ctx context.Context, namespace, subjectID string) (int, error) {
	index := s.indexKey(namespace, subjectID)

	tokenIDs, err := s.redis.SMembers(ctx, index).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(tokenIDs) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(tokenIDs))
	for _, tokenID := range tokenIDs {
		keys = append(keys, s.key(namespace, subjectID, tokenID))
	}

	var deleted *redis.IntCmd
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.Del(ctx, keys...)
		pipe.Del(ctx, index)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return int(deleted.Val()), nil
}

// recordFailureRetries bounds the optimistic WATCH retries before the
// operation is reported as an infrastructure fault.
const recordFailureRetries = 4

// RecordFailure increments a record's attempt counter inside a WATCH
// transaction and destroys the record at the cap. Returns ErrAttemptsExceeded
// when the cap was hit on this call.
func (s *TokenStore) RecordFailure(ctx context.Context, namespace, subjectID, tokenID string, maxAttempts int) error {
	return s.recordFailure(ctx, namespace, subjectID, tokenID, maxAttempts, recordFailureRetries)
}

func (s *TokenStore) recordFailure(ctx context.Context, namespace, subjectID, tokenID string, maxAttempts, retries int) error {
	key := s.key(namespace, subjectID, tokenID)
	index := s.indexKey(namespace, subjectID)

	for i := 0; i < retries; i++ {
		var exceeded bool

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeRecord(data)
			if err != nil {
				return err
			}
			if time.Now().Unix() > record.ExpiresAt {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					pipe.SRem(ctx, index, tokenID)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrRecordNotFound
			}

			record.Attempts++
			if maxAttempts > 0 && int(record.Attempts) >= maxAttempts {
				exceeded = true
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					pipe.SRem(ctx, index, tokenID)
					return nil
				})
				return err
			}

			ttl := time.Until(time.Unix(record.ExpiresAt, 0))
			if ttl <= 0 {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					pipe.SRem(ctx, index, tokenID)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrRecordNotFound
			}

			updated, err := encodeRecord(record)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return ErrRecordNotFound
			case errors.Is(err, ErrRecordNotFound):
				return err
			default:
				return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
		}
		if exceeded {
			return ErrAttemptsExceeded
		}
		return nil
	}

	// The record is live but contended; this is an infrastructure outcome,
	// not an absent record.
	return fmt.Errorf("%w: watch retries exhausted", ErrStoreUnavailable)
}

// MarkBlacklisted records a token id as rejected until ttl elapses. A
// non-positive ttl is a no-op: the token is already naturally expired.
func (s *TokenStore) MarkBlacklisted(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := s.redis.Set(ctx, s.blacklistKey(tokenID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// IsBlacklisted reports whether the token id has been rejected early.
func (s *TokenStore) IsBlacklisted(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.blacklistKey(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n > 0, nil
}

// Ping checks store liveness and reports round-trip latency.
func (s *TokenStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return time.Since(start), nil
}
