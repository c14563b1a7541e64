package compiler

import (
	"github.com/dgraph-io/ristretto/v2"
)

// ddlCache is a content-addressed cache of compiled DDL keyed by the
// schema's canonical hash. The compiler is deterministic, so a hit and
// a recompile are interchangeable; the cache is never a correctness
// dependency.
type ddlCache struct {
	cache *ristretto.Cache[string, string]
}

func newDDLCache() (*ddlCache, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: 1 << 12,
		MaxCost:     16 << 20, // 16 MiB of DDL text
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &ddlCache{cache: cache}, nil
}

func (c *ddlCache) get(hash string) (string, bool) {
	return c.cache.Get(hash)
}

func (c *ddlCache) set(hash, ddl string) {
	c.cache.Set(hash, ddl, int64(len(ddl)))
	c.cache.Wait()
}
