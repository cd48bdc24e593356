// Package queue: distributed locking for admission-time dedup coalescing
// and the extractor concurrency cap, adapted from the teacher's
// DistributedLock/Semaphore (SETNX + Lua-script release, sorted-set
// semaphore). The dedup lock here is a latency optimization only — the
// Postgres partial unique index on dedup_key is the actual correctness
// guarantee (§4.1).
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLockNotAcquired is returned when a lock cannot be obtained.
var ErrLockNotAcquired = errors.New("queue: lock not acquired")

// DistributedLock issues SETNX-based locks scoped under keyPrefix.
type DistributedLock struct {
	client    *redis.Client
	keyPrefix string
}

// Lock represents a held lock.
type Lock struct {
	dl       *DistributedLock
	key      string
	value    string
	released bool
}

// NewDistributedLock creates a distributed lock manager.
func NewDistributedLock(client *redis.Client) *DistributedLock {
	return &DistributedLock{client: client, keyPrefix: "detalhar:lock:"}
}

// Acquire attempts to acquire a lock.
func (dl *DistributedLock) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	lockKey := dl.keyPrefix + key
	value := fmt.Sprintf("%d", time.Now().UnixNano())

	ok, err := dl.client.SetNX(ctx, lockKey, value, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: lock acquire: %w", err)
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}
	return &Lock{dl: dl, key: lockKey, value: value}, nil
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// Release releases the lock if still held by this holder.
func (l *Lock) Release(ctx context.Context) error {
	if l.released {
		return nil
	}
	if _, err := releaseScript.Run(ctx, l.dl.client, []string{l.key}, l.value).Result(); err != nil {
		return fmt.Errorf("queue: lock release: %w", err)
	}
	l.released = true
	return nil
}

// DedupLock scopes the distributed lock to admission-time dedup keys
// (key "dedup:<dedup_key>"), §4.1 step 2.
type DedupLock struct {
	dl *DistributedLock
}

// NewDedupLock creates a dedup-scoped lock manager.
func NewDedupLock(client *redis.Client) *DedupLock {
	return &DedupLock{dl: NewDistributedLock(client)}
}

// Acquire locks dedupKey for the duration of one admission request.
func (d *DedupLock) Acquire(ctx context.Context, dedupKey string, ttl time.Duration) (*Lock, error) {
	return d.dl.Acquire(ctx, "dedup:"+dedupKey, ttl)
}

// Semaphore is a distributed counting semaphore backed by a sorted set,
// used to cap concurrent extractor sessions (§4.3, MAX_EXTRACT_CONCURRENCY).
type Semaphore struct {
	client *redis.Client
	key    string
	limit  int
}

// NewSemaphore creates a distributed semaphore with the given slot limit.
func NewSemaphore(client *redis.Client, name string, limit int) *Semaphore {
	return &Semaphore{client: client, key: "detalhar:sem:" + name, limit: limit}
}

// Acquire grabs a slot, expiring after ttl if never released (e.g. a
// crashed worker), and returns an id to pass to Release.
func (s *Semaphore) Acquire(ctx context.Context, ttl time.Duration) (string, error) {
	now := time.Now()
	id := fmt.Sprintf("%d", now.UnixNano())
	score := float64(now.Add(ttl).UnixNano())

	s.client.ZRemRangeByScore(ctx, s.key, "-inf", fmt.Sprintf("%d", now.UnixNano()))

	count, err := s.client.ZCard(ctx, s.key).Result()
	if err != nil {
		return "", fmt.Errorf("queue: semaphore card: %w", err)
	}
	if count >= int64(s.limit) {
		return "", ErrLockNotAcquired
	}

	if err := s.client.ZAdd(ctx, s.key, redis.Z{Score: score, Member: id}).Err(); err != nil {
		return "", fmt.Errorf("queue: semaphore acquire: %w", err)
	}
	return id, nil
}

// Release frees a previously acquired slot.
func (s *Semaphore) Release(ctx context.Context, id string) error {
	return s.client.ZRem(ctx, s.key, id).Err()
}
