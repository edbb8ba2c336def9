package lock_test

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/salon-escrow/internal/lock"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestLockerSerialisesHolders(t *testing.T) {
	_, client := newRedis(t)
	locker := lock.Locker{R: client, Prefix: "lock:escrow:", RetryBackoff: 5 * time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var (
		mu     sync.Mutex
		order  []string
		wg     sync.WaitGroup
		inside = make(chan struct{})
		done   = make(chan struct{})
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = locker.WithLock(ctx, "BKG-1", time.Second, func(context.Context) error {
			close(inside)
			<-done
			mu.Lock()
			order = append(order, "first")
			mu.Unlock()
			return nil
		})
	}()
	<-inside
	go func() {
		defer wg.Done()
		_ = locker.WithLock(ctx, "BKG-1", time.Second, func(context.Context) error {
			mu.Lock()
			order = append(order, "second")
			mu.Unlock()
			return nil
		})
	}()
	time.Sleep(20 * time.Millisecond)
	close(done)
	wg.Wait()

	require.Equal(t, []string{"first", "second"}, order)
}

func TestLockerGivesUpAfterMaxWait(t *testing.T) {
	mr, client := newRedis(t)
	require.NoError(t, mr.Set("lock:escrow:BKG-2", "someone-else"))

	locker := lock.Locker{R: client, Prefix: "lock:escrow:", RetryBackoff: 5 * time.Millisecond, MaxWait: 30 * time.Millisecond}
	called := false
	err := locker.WithLock(context.Background(), "BKG-2", time.Second, func(context.Context) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, lock.ErrNotAcquired)
	require.False(t, called)
}

func TestLockerReleaseKeepsForeignClaim(t *testing.T) {
	mr, client := newRedis(t)
	locker := lock.Locker{R: client, Prefix: "lock:"}

	err := locker.WithLock(context.Background(), "BKG-3", time.Second, func(context.Context) error {
		mr.Set("lock:BKG-3", "taken-over")
		return nil
	})
	require.NoError(t, err)

	got, err := mr.Get("lock:BKG-3")
	require.NoError(t, err)
	require.Equal(t, "taken-over", got)
}

func TestLockerReleasesOnError(t *testing.T) {
	mr, client := newRedis(t)
	locker := lock.Locker{R: client, Prefix: "lock:"}

	err := locker.WithLock(context.Background(), "BKG-4", time.Second, func(context.Context) error {
		require.True(t, mr.Exists("lock:BKG-4"))
		return context.Canceled
	})
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, mr.Exists("lock:BKG-4"))
}
