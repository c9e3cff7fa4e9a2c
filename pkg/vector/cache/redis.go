package cache

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/Zereker/vectorstore/pkg/vector"
)

// Redis shares entries and index generations between processes that front
// the same remote backend.
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

// NewRedis creates a Redis tier on client.
func NewRedis(client redis.UniversalClient, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

func (c *Redis) resultKey(key string) string { return c.prefix + "result:" + key }
func (c *Redis) genKey(index string) string  { return c.prefix + "gen:" + index }

func (c *Redis) Get(ctx context.Context, key string) (*vector.SearchResponse, bool, error) {
	data, err := c.client.Get(ctx, c.resultKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		c.misses.Add(1)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, vector.Wrap(vector.KindConnectionFailed, "", errors.WithMessage(err, "redis get"))
	}

	var resp vector.SearchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		c.misses.Add(1)
		return nil, false, vector.SerializationFailed("", "", err)
	}
	c.hits.Add(1)
	return &resp, true, nil
}

func (c *Redis) Set(ctx context.Context, key string, resp *vector.SearchResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return vector.SerializationFailed("", "", err)
	}
	if err := c.client.Set(ctx, c.resultKey(key), data, c.ttl).Err(); err != nil {
		return vector.Wrap(vector.KindConnectionFailed, "", errors.WithMessage(err, "redis set"))
	}
	return nil
}

func (c *Redis) Generation(ctx context.Context, index string) (uint64, error) {
	gen, err := c.client.Get(ctx, c.genKey(index)).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, vector.Wrap(vector.KindConnectionFailed, index, errors.WithMessage(err, "redis get generation"))
	}
	return gen, nil
}

func (c *Redis) Invalidate(ctx context.Context, index string) error {
	if err := c.client.Incr(ctx, c.genKey(index)).Err(); err != nil {
		return vector.Wrap(vector.KindConnectionFailed, index, errors.WithMessage(err, "redis incr generation"))
	}
	return nil
}

// Purge deletes every result key under the prefix. Generations are kept so
// that other processes never go back to an older generation.
func (c *Redis) Purge(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+"result:*", 500).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 500 {
			if err := c.client.Del(ctx, batch...).Err(); err != nil {
				return errors.WithMessage(err, "redis del")
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return errors.WithMessage(err, "redis scan")
	}
	if len(batch) > 0 {
		return errors.WithMessage(c.client.Del(ctx, batch...).Err(), "redis del")
	}
	return nil
}

func (c *Redis) Stats() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: -1,
	}
}
