package approval

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-authz/internal/shared"
)

func TestKeyedLockerSerializesPerID(t *testing.T) {
	l := NewKeyedLocker()
	id := uuid.New()

	var mu sync.Mutex
	inside, peak := 0, 0
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), id)
			require.NoError(t, err)
			mu.Lock()
			inside++
			if inside > peak {
				peak = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	require.Equal(t, 1, peak)
	require.Empty(t, l.locks)
}

func TestKeyedLockerIndependentIDs(t *testing.T) {
	l := NewKeyedLocker()
	unlockA, err := l.Lock(context.Background(), uuid.New())
	require.NoError(t, err)
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB, err := l.Lock(context.Background(), uuid.New())
		if err == nil {
			unlockB()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on another id blocked")
	}
}

func TestKeyedLockerHonoursContextWhileWaiting(t *testing.T) {
	l := NewKeyedLocker()
	id := uuid.New()
	unlock, err := l.Lock(context.Background(), id)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, id)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	require.Empty(t, l.locks)

	again, err := l.Lock(context.Background(), id)
	require.NoError(t, err)
	again()
}

func TestRedisLockerBusyAndRelease(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l := NewRedisLocker(client, 100*time.Millisecond)
	id := uuid.New()
	key := shared.ApprovalLockKey(id.String())

	unlock, err := l.Lock(context.Background(), id)
	require.NoError(t, err)
	require.True(t, mr.Exists(key))

	_, err = l.Lock(context.Background(), id)
	require.ErrorIs(t, err, ErrLockBusy)
	require.ErrorIs(t, err, shared.ErrAlreadyProcessed)

	unlock()
	require.False(t, mr.Exists(key))

	unlock, err = l.Lock(context.Background(), id)
	require.NoError(t, err)
	unlock()
}

func TestRedisLockerDoesNotReleaseForeignToken(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l := NewRedisLocker(client, time.Second)
	id := uuid.New()
	key := shared.ApprovalLockKey(id.String())

	unlock, err := l.Lock(context.Background(), id)
	require.NoError(t, err)
	require.NoError(t, mr.Set(key, "someone-else"))
	unlock()

	got, err := mr.Get(key)
	require.NoError(t, err)
	require.Equal(t, "someone-else", got)
}
