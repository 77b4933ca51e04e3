package routing

import (
	"context"
	"time"

	"github.com/velykodnyi/corridor/internal/domain"
	redisx "github.com/velykodnyi/corridor/internal/redis"
	redisrepo "github.com/velykodnyi/corridor/internal/repository/redis"
)

// CachedSource reuses a previously computed route for identical
// (origin, destination) pairs within a bounded window. The upstream
// routing collaborator is expensive and slow-changing, so a short TTL
// is safe. Route-not-found outcomes are not cached.
type CachedSource struct {
	src   Source
	cache *redisrepo.Cache
	ttl   time.Duration
}

func NewCachedSource(src Source, cache *redisrepo.Cache, ttl time.Duration) *CachedSource {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &CachedSource{
		src:   src,
		cache: cache,
		ttl:   ttl,
	}
}

func (c *CachedSource) GetRoute(ctx context.Context, origin, destination domain.Coordinate) ([]domain.Coordinate, error) {
	key := redisx.KeyRoute(origin.String(), destination.String())

	return redisrepo.GetOrSetJSON(
		ctx,
		c.cache,
		key,
		c.ttl,
		func(ctx context.Context) ([]domain.Coordinate, error) {
			return c.src.GetRoute(ctx, origin, destination)
		},
	)
}
