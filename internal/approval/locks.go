package approval

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-authz/internal/shared"
)

// Locker serializes transitions of one request.
type Locker interface {
	Lock(ctx context.Context, id uuid.UUID) (unlock func(), err error)
}

// KeyedLocker is an in-process lock per request id. Entries are dropped once
// no goroutine holds or waits on them.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*keyedEntry
}

type keyedEntry struct {
	sem  chan struct{}
	refs int
}

// NewKeyedLocker builds an empty KeyedLocker.
func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[uuid.UUID]*keyedEntry)}
}

// Lock blocks until the request lock is held or ctx ends.
func (l *KeyedLocker) Lock(ctx context.Context, id uuid.UUID) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	e, ok := l.locks[id]
	if !ok {
		e = &keyedEntry{sem: make(chan struct{}, 1)}
		l.locks[id] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(id, e)
		return nil, ctx.Err()
	}
	return func() {
		<-e.sem
		l.release(id, e)
	}, nil
}

func (l *KeyedLocker) release(id uuid.UUID, e *keyedEntry) {
	l.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, id)
	}
	l.mu.Unlock()
}

// ErrLockBusy is returned when the distributed lock cannot be acquired in time.
var ErrLockBusy = fmt.Errorf("approval: request lock busy: %w", shared.ErrAlreadyProcessed)

var releaseScript = redis.NewScript(`if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker holds a short-lived Redis key per request so transitions are
// serialized across instances.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
}

// NewRedisLocker builds a RedisLocker. ttl bounds how long a crashed holder
// blocks others.
func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl, retry: 25 * time.Millisecond}
}

// Lock polls SET NX until acquired, ctx ends or the ttl elapses.
func (l *RedisLocker) Lock(ctx context.Context, id uuid.UUID) (func(), error) {
	key := shared.ApprovalLockKey(id.String())
	token := uuid.NewString()
	deadline := time.Now().Add(l.ttl)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire approval lock: %w", err)
		}
		if ok {
			return func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				_ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrLockBusy
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}
}

// ChainLocker acquires each locker in order and releases in reverse.
type ChainLocker []Locker

// Lock implements Locker.
func (c ChainLocker) Lock(ctx context.Context, id uuid.UUID) (func(), error) {
	unlocks := make([]func(), 0, len(c))
	release := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
	for _, l := range c {
		unlock, err := l.Lock(ctx, id)
		if err != nil {
			release()
			return nil, err
		}
		unlocks = append(unlocks, unlock)
	}
	return release, nil
}
