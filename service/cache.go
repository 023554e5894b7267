package service

import (
	"context"
	"sync"

	"gitlab.com/henri.philipps/diffdetect"
)

// ResourceCache is holding loaded resources by id. It is owned by the caller
// and attached to a context with WithResourceCache, e.g. for the duration of
// one watcher round or one HTTP request.
type ResourceCache struct {
	resources map[int64]diffdetect.Resource
	mu        sync.Mutex
}

// NewResourceCache returns an empty ResourceCache.
func NewResourceCache() *ResourceCache {
	return &ResourceCache{resources: map[int64]diffdetect.Resource{}}
}

// Get returns a copy of the cached resource.
func (c *ResourceCache) Get(id int64) (*diffdetect.Resource, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.resources[id]
	if !ok {
		return nil, false
	}
	return &r, true
}

func (c *ResourceCache) Put(r *diffdetect.Resource) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.resources[r.ID] = *r
}

func (c *ResourceCache) Invalidate(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.resources, id)
}

// Len returns the number of cached resources.
func (c *ResourceCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.resources)
}

type cacheKey struct{}

// WithResourceCache returns a context carrying the given cache.
func WithResourceCache(ctx context.Context, c *ResourceCache) context.Context {
	return context.WithValue(ctx, cacheKey{}, c)
}

func resourceCache(ctx context.Context) *ResourceCache {
	c, _ := ctx.Value(cacheKey{}).(*ResourceCache)
	return c
}
