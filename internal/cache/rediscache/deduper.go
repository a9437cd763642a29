package rediscache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Deduper remembers which command ids were already relayed.
type Deduper struct {
	c      *redis.Client
	prefix string
}

func New(addr string) *Deduper {
	return &Deduper{
		c: redis.NewClient(&redis.Options{
			Addr: addr,
		}),
		prefix: "cio:cmd:",
	}
}

// MarkSeen records key with a TTL. It returns true only for the first caller;
// later calls within ttl see false.
func (d *Deduper) MarkSeen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := d.c.SetNX(ctx, d.prefix+key, time.Now().UTC().Unix(), ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "redis setnx")
	}
	return ok, nil
}

// Forget drops the mark so a redelivered command is relayed again.
func (d *Deduper) Forget(ctx context.Context, key string) error {
	if err := d.c.Del(ctx, d.prefix+key).Err(); err != nil {
		return errors.Wrap(err, "redis del")
	}
	return nil
}

func (d *Deduper) Ping(ctx context.Context) error {
	return errors.Wrap(d.c.Ping(ctx).Err(), "redis ping")
}

func (d *Deduper) Close() error {
	return d.c.Close()
}
