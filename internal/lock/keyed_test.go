package lock_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/salon-escrow/internal/lock"
)

func TestKeyedSerialisesSameKey(t *testing.T) {
	keyed := lock.NewKeyed()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := keyed.WithLock(ctx, "BKG-1", 0, func(context.Context) error {
				mu.Lock()
				active++
				if active > maxSeen {
					maxSeen = active
				}
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()
	require.Equal(t, 1, maxSeen)
	require.Zero(t, keyed.Size())
}

func TestKeyedDistinctKeysDoNotBlock(t *testing.T) {
	keyed := lock.NewKeyed()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := keyed.WithLock(ctx, "BKG-1", 0, func(ctx context.Context) error {
		return keyed.WithLock(ctx, "BKG-2", 0, func(context.Context) error { return nil })
	})
	require.NoError(t, err)
}

func TestKeyedHonoursContextWhileWaiting(t *testing.T) {
	keyed := lock.NewKeyed()
	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = keyed.WithLock(context.Background(), "BKG-1", 0, func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := keyed.WithLock(ctx, "BKG-1", 0, func(context.Context) error { return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
}

func TestChainRunsInsideEveryGuard(t *testing.T) {
	var order []string
	chain := lock.Chain{recordingGuard{name: "local", order: &order}, nil, recordingGuard{name: "redis", order: &order}}
	err := chain.WithLock(context.Background(), "k", time.Second, func(context.Context) error {
		order = append(order, "fn")
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"local", "redis", "fn"}, order)
}

type recordingGuard struct {
	name  string
	order *[]string
}

func (g recordingGuard) WithLock(ctx context.Context, _ string, _ time.Duration, fn func(context.Context) error) error {
	*g.order = append(*g.order, g.name)
	return fn(ctx)
}
