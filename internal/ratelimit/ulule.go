package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// FixedWindow adapts a ulule limiter to Limiter.
type FixedWindow struct {
	L *limiter.Limiter
}

// NewFixedWindow builds a limiter from a formatted rate such as "600-M".
// Counters live in Redis when rdb is set and in process memory otherwise.
func NewFixedWindow(formatted, prefix string, rdb *redis.Client) (*FixedWindow, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: parse rate %q: %w", formatted, err)
	}
	opts := limiter.StoreOptions{Prefix: prefix, CleanUpInterval: time.Minute}
	var store limiter.Store
	if rdb != nil {
		store, err = limiterredis.NewStoreWithOptions(rdb, opts)
		if err != nil {
			return nil, fmt.Errorf("ratelimit: redis store: %w", err)
		}
	} else {
		store = memory.NewStoreWithOptions(opts)
	}
	return &FixedWindow{L: limiter.New(store, rate)}, nil
}

func (f *FixedWindow) Allow(ctx context.Context, key string) (Decision, error) {
	lctx, err := f.L.Get(ctx, key)
	if err != nil {
		return Decision{}, err
	}
	return Decision{
		Allowed:   !lctx.Reached,
		Limit:     int(lctx.Limit),
		Remaining: int(lctx.Remaining),
		ResetAt:   time.Unix(lctx.Reset, 0),
	}, nil
}

// NewSlidingWindow builds a SlidingWindow from a formatted rate such as "30-M".
func NewSlidingWindow(formatted, prefix string, rdb *redis.Client) (SlidingWindow, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return SlidingWindow{}, fmt.Errorf("ratelimit: parse rate %q: %w", formatted, err)
	}
	return SlidingWindow{Client: rdb, Prefix: prefix, Window: rate.Period, Max: int(rate.Limit)}, nil
}
