package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestSlidingWindowAllow(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()
	lim, err := NewSlidingWindow("2-S", "test:", client)
	if err != nil {
		t.Fatalf("new sliding window: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		d, err := lim.Allow(ctx, "key")
		if err != nil {
			t.Fatalf("allow: %v", err)
		}
		if !d.Allowed {
			t.Fatalf("expected request %d allowed", i+1)
		}
		if d.Remaining != 1-i {
			t.Fatalf("unexpected remaining %d on request %d", d.Remaining, i+1)
		}
	}

	d, err := lim.Allow(ctx, "key")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if d.Allowed {
		t.Fatal("expected third request to be limited")
	}
	if ttl := mr.TTL("test:key"); ttl <= 0 || ttl > time.Second {
		t.Fatalf("unexpected ttl %v", ttl)
	}
}

func TestSlidingWindowWithoutRedisAllows(t *testing.T) {
	d, err := SlidingWindow{Window: time.Second, Max: 1}.Allow(context.Background(), "k")
	if err != nil || !d.Allowed {
		t.Fatalf("expected pass-through, got %+v %v", d, err)
	}
}

func TestNewSlidingWindowRejectsBadRate(t *testing.T) {
	if _, err := NewSlidingWindow("lots", "x:", nil); err == nil {
		t.Fatal("expected parse error")
	}
}
