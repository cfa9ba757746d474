package relations

import (
	"context"
	"time"

	"github.com/Laperavee/Cielo-API/cielo/graph"
	"github.com/jellydator/ttlcache/v3"
)

type Fetcher interface {
	FetchRelations(ctx context.Context, address graph.Address) []graph.Relation
}

// Cache remembers the relations of recently fetched wallets so that several crawls run by
// the same process do not query shared neighbours again. Empty results are never cached:
// they may come from a transient failure.
type Cache struct {
	next  Fetcher
	cache *ttlcache.Cache[graph.Address, []graph.Relation]
}

func NewCache(next Fetcher, ttl time.Duration) *Cache {
	initPrometheusMetrics()

	c := &Cache{
		next: next,
		cache: ttlcache.New[graph.Address, []graph.Relation](
			ttlcache.WithTTL[graph.Address, []graph.Relation](ttl),
			ttlcache.WithDisableTouchOnHit[graph.Address, []graph.Relation](),
		),
	}
	go c.cache.Start()
	return c
}

func (c *Cache) FetchRelations(ctx context.Context, address graph.Address) []graph.Relation {
	if item := c.cache.Get(address); item != nil {
		prometheusCacheHits.Inc()
		return clone(item.Value())
	}

	relations := c.next.FetchRelations(ctx, address)
	if len(relations) > 0 {
		c.cache.Set(address, clone(relations), ttlcache.DefaultTTL)
	}
	return relations
}

func (c *Cache) Len() int {
	return c.cache.Len()
}

func (c *Cache) Stop() {
	c.cache.Stop()
}

func clone(relations []graph.Relation) []graph.Relation {
	out := make([]graph.Relation, len(relations))
	copy(out, relations)
	return out
}
