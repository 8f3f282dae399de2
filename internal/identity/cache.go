package identity

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/ppwm/matcher-server-go/internal/model"
	"github.com/ppwm/matcher-server-go/internal/util"
)

// CachedSource remembers resolved identities per token so each request does
// not cost a provider round trip. Failures are not cached.
type CachedSource struct {
	source Source
	cache  *ttlcache.Cache[string, model.Identity]
}

func NewCachedSource(source Source, ttl time.Duration) *CachedSource {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, model.Identity](ttl),
		ttlcache.WithDisableTouchOnHit[string, model.Identity](),
	)
	go cache.Start()

	return &CachedSource{source: source, cache: cache}
}

func (c *CachedSource) Identify(ctx context.Context, token string) (model.Identity, error) {
	key := util.HashToken(token)
	if item := c.cache.Get(key); item != nil {
		return item.Value(), nil
	}

	ident, err := c.source.Identify(ctx, token)
	if err != nil {
		return model.Identity{}, err
	}

	c.cache.Set(key, ident, ttlcache.DefaultTTL)
	return ident, nil
}

func (c *CachedSource) Len() int {
	return c.cache.Len()
}

func (c *CachedSource) Stop() {
	c.cache.Stop()
}
