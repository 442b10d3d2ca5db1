// Package lock implements the per-(user_id, capture_id) serialization
// required by §5: a single capture must not be mutated by two concurrent
// scheduling requests. Grounded on the compozy example pack's Redis lock
// manager (engine/infra/cache/lock_manager.go) for the SET NX PX + Lua-guarded
// release shape, adapted down to the fixed-TTL, no-auto-renew case this
// engine needs (a scheduling request's total budget is bounded to 30s, so
// there is no long-held lock to keep alive).
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when a lock is already held by another request.
var ErrNotAcquired = errors.New("lock: resource is already locked")

// ErrNotOwned is returned when Release is called with a value that no
// longer matches the lock (it already expired and was re-acquired).
var ErrNotOwned = errors.New("lock: lock is not owned by this holder")

// Handle represents one acquired lock; the caller must Release it.
type Handle interface {
	Release(ctx context.Context) error
}

// Locker serializes access to a resource keyed by (userID, captureID).
type Locker interface {
	Acquire(ctx context.Context, userID, captureID uuid.UUID, ttl time.Duration) (Handle, error)
}

// Key formats the resource name a request locks on.
func Key(userID, captureID uuid.UUID) string {
	return fmt.Sprintf("%s:%s", userID, captureID)
}

// releaseScript only deletes the key if it still holds this holder's value,
// so a lock that already expired and was re-acquired by someone else is
// never deleted out from under them.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

// RedisLocker implements Locker over github.com/redis/go-redis/v9.
type RedisLocker struct {
	client *redis.Client
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

type redisHandle struct {
	client *redis.Client
	key    string
	value  string
}

func (l *RedisLocker) Acquire(ctx context.Context, userID, captureID uuid.UUID, ttl time.Duration) (Handle, error) {
	key := "lock:capture:" + Key(userID, captureID)
	value := randomToken()

	ok, err := l.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lock: acquire: %w", err)
	}
	if !ok {
		return nil, ErrNotAcquired
	}
	return &redisHandle{client: l.client, key: key, value: value}, nil
}

func (h *redisHandle) Release(ctx context.Context) error {
	result, err := h.client.Eval(ctx, releaseScript, []string{h.key}, h.value).Result()
	if err != nil {
		return fmt.Errorf("lock: release: %w", err)
	}
	if n, ok := result.(int64); !ok || n == 0 {
		return ErrNotOwned
	}
	return nil
}

func randomToken() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return uuid.New().String()
	}
	return hex.EncodeToString(b)
}

// InProcessLocker serializes access with a per-key one-token channel, used
// in local/dev/sqlite mode when no Redis URL is configured (§5, §9 mirrors
// the teacher's LocalMode dual-path pattern in pkg/config). A channel
// rather than sync.Mutex.Lock is used so a timed-out or cancelled Acquire
// can abandon its wait without ever touching the token — Lock would instead
// leave a goroutine blocked forever waiting to acquire a mutex nobody will
// release.
type InProcessLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewInProcessLocker() *InProcessLocker {
	return &InProcessLocker{locks: make(map[string]chan struct{})}
}

type inProcessHandle struct {
	tokens chan struct{}
}

func (l *InProcessLocker) tokenChan(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		ch <- struct{}{}
		l.locks[key] = ch
	}
	return ch
}

func (l *InProcessLocker) Acquire(ctx context.Context, userID, captureID uuid.UUID, ttl time.Duration) (Handle, error) {
	ch := l.tokenChan(Key(userID, captureID))

	timer := time.NewTimer(ttl)
	defer timer.Stop()

	select {
	case <-ch:
		return &inProcessHandle{tokens: ch}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrNotAcquired
	}
}

func (h *inProcessHandle) Release(ctx context.Context) error {
	select {
	case h.tokens <- struct{}{}:
	default:
	}
	return nil
}
