package dispatcher

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

type DedupState int

const (
	DedupClaimed  DedupState = iota // caller owns the key and must Confirm or Release it
	DedupSent                       // an earlier send with this key succeeded
	DedupInFlight                   // another send holds the key and has not finished
)

// DedupGuard remembers which deterministic email keys were claimed or delivered.
type DedupGuard interface {
	Claim(ctx context.Context, key string, pendingTTL time.Duration) (DedupState, error)
	Confirm(ctx context.Context, key string, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

const (
	markPending = "pending"
	markSent    = "sent"
)

type RedisDedupGuard struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisDedupGuard(rdb *redis.Client, prefix string) *RedisDedupGuard {
	if prefix == "" {
		prefix = "onboard:"
	}
	return &RedisDedupGuard{rdb: rdb, prefix: prefix}
}

// Claim marks key pending for pendingTTL unless it is already held.
func (g *RedisDedupGuard) Claim(ctx context.Context, key string, pendingTTL time.Duration) (DedupState, error) {
	// a second round covers a pending mark expiring between SETNX and GET
	for range 2 {
		ok, err := g.rdb.SetNX(ctx, g.prefix+key, markPending, pendingTTL).Result()
		if err != nil {
			return 0, err
		}
		if ok {
			return DedupClaimed, nil
		}

		v, err := g.rdb.Get(ctx, g.prefix+key).Result()
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			return 0, err
		case v == markSent:
			return DedupSent, nil
		default:
			return DedupInFlight, nil
		}
	}
	return DedupInFlight, nil
}

// Confirm records a delivered key for ttl.
func (g *RedisDedupGuard) Confirm(ctx context.Context, key string, ttl time.Duration) error {
	return g.rdb.Set(ctx, g.prefix+key, markSent, ttl).Err()
}

func (g *RedisDedupGuard) Release(ctx context.Context, key string) error {
	return g.rdb.Del(ctx, g.prefix+key).Err()
}
