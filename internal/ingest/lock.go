package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker serializes whole ingestion runs. TryLock never blocks; ok is false when another run
// holds the lock.
type Locker interface {
	TryLock(ctx context.Context) (release func(), ok bool, err error)
}

// MutexLock serializes runs inside one process.
type MutexLock struct{ mu sync.Mutex }

func (l *MutexLock) TryLock(ctx context.Context) (func(), bool, error) {
	if !l.mu.TryLock() {
		return nil, false, nil
	}
	return l.mu.Unlock, true, nil
}

// FileLock serializes runs across processes on one host with an exclusive flock. The kernel drops
// the lock when the holder exits, so a crashed run never wedges the next one.
type FileLock struct {
	path string
}

func NewFileLock(path string) (*FileLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	return &FileLock{path: path}, nil
}

func (l *FileLock) TryLock(ctx context.Context) (func(), bool, error) {
	fl := flock.New(l.path)
	ok, err := fl.TryLock()
	if err != nil || !ok {
		return nil, false, err
	}
	return func() { _ = fl.Unlock() }, true, nil
}

// RedisLock serializes runs across processes with SET NX and a TTL. Release deletes the key only
// while it still holds this holder's token.
type RedisLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

const defaultLockKey = "casewatch:ingest:lock"

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func NewRedisLock(client *redis.Client, ttl time.Duration) *RedisLock {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisLock{client: client, key: defaultLockKey, ttl: ttl}
}

func (l *RedisLock) TryLock(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.client, []string{l.key}, token).Err()
	}
	return release, true, nil
}
