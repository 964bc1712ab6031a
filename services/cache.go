package services

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// Cache is the read-through cache used for hot read paths. Implementations are
// best effort: a failed Set or Invalidate must not fail the caller.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration)
	InvalidatePrefix(ctx context.Context, prefix string)
}

type nopCache struct{}

func (nopCache) Get(context.Context, string) ([]byte, bool) { return nil, false }
func (nopCache) SetJSON(context.Context, string, interface{}, time.Duration) {}
func (nopCache) InvalidatePrefix(context.Context, string) {}

// NopCache never stores anything.
func NopCache() Cache { return nopCache{} }

func orNop(c Cache) Cache {
	if c == nil {
		return nopCache{}
	}
	return c
}

// cached returns the value stored under key, or calls load and stores its result.
func cached[T any](ctx context.Context, c Cache, key string, ttl time.Duration, load func() (T, error)) (T, error) {
	if b, ok := c.Get(ctx, key); ok {
		var v T
		if err := json.Unmarshal(b, &v); err == nil {
			return v, nil
		}
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	c.SetJSON(ctx, key, v, ttl)
	return v, nil
}

// keyspace versions the keys under one prefix. Bumping the version orphans any
// entry a load in flight writes after the bump.
type keyspace struct {
	prefix  string
	version atomic.Uint64
}

func (k *keyspace) key(parts ...string) string {
	return k.prefix + "v" + strconv.FormatUint(k.version.Load(), 10) + ":" + strings.Join(parts, ":")
}

func (k *keyspace) invalidate(ctx context.Context, c Cache) {
	k.version.Add(1)
	c.InvalidatePrefix(ctx, k.prefix)
}

// detached keeps ctx values but not its cancellation, for loads shared by
// every caller that joined a singleflight call.
func detached(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
