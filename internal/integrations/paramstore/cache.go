package paramstore

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	"lead-agent/internal/ttlstore"
)

// Cached serves parameter values from memory for up to ttl so hot paths such
// as webhook verification do not call SSM per request. Concurrent misses for
// one name share a single fetch. Errors are not cached.
type Cached struct {
	next   Getter
	values *ttlstore.Store[string]
	group  singleflight.Group
}

// NewCached wraps next with a read-through cache.
func NewCached(next Getter, ttl time.Duration, opts ...ttlstore.Option) (*Cached, error) {
	if next == nil {
		return nil, errors.New("paramstore: getter must not be nil")
	}
	if ttl <= 0 {
		return nil, errors.New("paramstore: cache ttl must be positive")
	}
	return &Cached{next: next, values: ttlstore.New[string](ttl, opts...)}, nil
}

func (c *Cached) GetParameter(ctx context.Context, name string) (string, error) {
	if v, ok := c.values.Get(name); ok {
		return v, nil
	}
	v, err, _ := c.group.Do(name, func() (any, error) {
		v, err := c.next.GetParameter(ctx, name)
		if err != nil {
			return "", err
		}
		c.values.Put(name, v)
		return v, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// BatchGetter fetches several parameters in one round trip. *Client
// satisfies it.
type BatchGetter interface {
	GetParameters(ctx context.Context, names ...string) (map[string]string, error)
}

// Prime loads names into the cache in one batch when the wrapped getter
// supports it. It is a no-op otherwise.
func (c *Cached) Prime(ctx context.Context, names ...string) error {
	bg, ok := c.next.(BatchGetter)
	if !ok || len(names) == 0 {
		return nil
	}
	values, err := bg.GetParameters(ctx, names...)
	if err != nil {
		return err
	}
	for name, v := range values {
		c.values.Put(name, v)
	}
	return nil
}
