package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/photopixel/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultInFlightTTL = 2 * time.Minute
	DefaultResultTTL   = 24 * time.Hour
)

// AttemptStore guards one checkout attempt per key and one running checkout
// per source cart.
//
// Begin claims key. When the key is already taken it reports the stored result
// of a finished attempt, or nil while the attempt is still running.
// LockSource claims the cart for the whole attempt, whatever key is used.
type AttemptStore interface {
	Begin(ctx context.Context, key string) (claimed bool, result *Result, err error)
	Succeed(ctx context.Context, key string, result *Result) error
	Release(ctx context.Context, key string) error
	LockSource(ctx context.Context, ref domain.CartRef) (bool, error)
	UnlockSource(ctx context.Context, ref domain.CartRef) error
}

type attemptRecord struct {
	State  domain.CheckoutState `json:"state"`
	Result *Result              `json:"result,omitempty"`
}

type memoryEntry struct {
	record  attemptRecord
	expires time.Time
}

type MemoryAttemptStore struct {
	mu          sync.Mutex
	entries     map[string]memoryEntry
	sources     map[string]time.Time
	inFlightTTL time.Duration
	resultTTL   time.Duration
	lastSweep   time.Time
	now         func() time.Time
}

func NewMemoryAttemptStore() *MemoryAttemptStore {
	return &MemoryAttemptStore{
		entries:     make(map[string]memoryEntry),
		sources:     make(map[string]time.Time),
		inFlightTTL: DefaultInFlightTTL,
		resultTTL:   DefaultResultTTL,
		now:         time.Now,
	}
}

// sweep drops expired entries, at most once per in-flight TTL. Callers hold mu.
func (s *MemoryAttemptStore) sweep(now time.Time) {
	if now.Sub(s.lastSweep) < s.inFlightTTL {
		return
	}
	s.lastSweep = now
	for key, e := range s.entries {
		if !now.Before(e.expires) {
			delete(s.entries, key)
		}
	}
	for key, expires := range s.sources {
		if !now.Before(expires) {
			delete(s.sources, key)
		}
	}
}

func (s *MemoryAttemptStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries) + len(s.sources)
}

func (s *MemoryAttemptStore) Begin(_ context.Context, key string) (bool, *Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweep(now)
	if e, ok := s.entries[key]; ok && now.Before(e.expires) {
		return false, e.record.Result, nil
	}
	s.entries[key] = memoryEntry{
		record:  attemptRecord{State: domain.CheckoutStateSubmitting},
		expires: now.Add(s.inFlightTTL),
	}
	return true, nil, nil
}

func (s *MemoryAttemptStore) Succeed(_ context.Context, key string, result *Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = memoryEntry{
		record:  attemptRecord{State: domain.CheckoutStateSucceeded, Result: result},
		expires: s.now().Add(s.resultTTL),
	}
	return nil
}

func (s *MemoryAttemptStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

func (s *MemoryAttemptStore) LockSource(_ context.Context, ref domain.CartRef) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweep(now)
	if expires, ok := s.sources[ref.String()]; ok && now.Before(expires) {
		return false, nil
	}
	s.sources[ref.String()] = now.Add(s.inFlightTTL)
	return true, nil
}

func (s *MemoryAttemptStore) UnlockSource(_ context.Context, ref domain.CartRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sources, ref.String())
	return nil
}

// RedisAttemptStore shares attempts between instances. The in-flight marker
// expires so a crashed instance cannot block a key forever.
type RedisAttemptStore struct {
	client      redis.UniversalClient
	inFlightTTL time.Duration
	resultTTL   time.Duration
}

func NewRedisAttemptStore(client redis.UniversalClient) *RedisAttemptStore {
	return &RedisAttemptStore{
		client:      client,
		inFlightTTL: DefaultInFlightTTL,
		resultTTL:   DefaultResultTTL,
	}
}

func attemptKey(key string) string {
	return "checkout:attempt:" + key
}

func sourceKey(ref domain.CartRef) string {
	return "checkout:source:" + ref.String()
}

func (s *RedisAttemptStore) Begin(ctx context.Context, key string) (bool, *Result, error) {
	marker, err := json.Marshal(attemptRecord{State: domain.CheckoutStateSubmitting})
	if err != nil {
		return false, nil, fmt.Errorf("marshal attempt: %w", err)
	}

	claimed, err := s.client.SetNX(ctx, attemptKey(key), marker, s.inFlightTTL).Result()
	if err != nil {
		return false, nil, fmt.Errorf("redis setnx failed: %w", err)
	}
	if claimed {
		return true, nil, nil
	}

	data, err := s.client.Get(ctx, attemptKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		// released between SETNX and GET; treat as still in flight
		return false, nil, nil
	}
	if err != nil {
		return false, nil, fmt.Errorf("redis get failed: %w", err)
	}

	var record attemptRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return false, nil, fmt.Errorf("unmarshal attempt failed: %w", err)
	}
	return false, record.Result, nil
}

func (s *RedisAttemptStore) Succeed(ctx context.Context, key string, result *Result) error {
	data, err := json.Marshal(attemptRecord{State: domain.CheckoutStateSucceeded, Result: result})
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}
	if err := s.client.Set(ctx, attemptKey(key), data, s.resultTTL).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (s *RedisAttemptStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, attemptKey(key)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (s *RedisAttemptStore) LockSource(ctx context.Context, ref domain.CartRef) (bool, error) {
	claimed, err := s.client.SetNX(ctx, sourceKey(ref), "1", s.inFlightTTL).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}
	return claimed, nil
}

func (s *RedisAttemptStore) UnlockSource(ctx context.Context, ref domain.CartRef) error {
	if err := s.client.Del(ctx, sourceKey(ref)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}
