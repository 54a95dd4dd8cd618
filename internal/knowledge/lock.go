package knowledge

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// IngestLockKey serializes ingests across processes.
const IngestLockKey = "knowledge:ingest:lock"

// ErrIngestInProgress is returned when another ingest holds the lock.
var ErrIngestInProgress = errors.New("knowledge ingest already in progress")

// Locker grants a named exclusive lease.
type Locker interface {
	// TryLock returns a release func, or ok=false when the lock is held.
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// RedisLocker implements Locker with SET NX and an owner token.
type RedisLocker struct {
	Rdb *redis.Client
}

// compare-and-delete so an expired lease never frees another owner's lock
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

func (l RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.Rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = unlockScript.Run(ctx, l.Rdb, []string{key}, token).Err()
	}
	return release, true, nil
}

// LocalLocker is a process-local Locker.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *LocalLocker) TryLock(_ context.Context, key string, _ time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = make(map[string]bool)
	}
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}, true, nil
}
