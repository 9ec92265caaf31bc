package sessions

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/unitmatch/internal/tracking"
	"golang.org/x/sync/singleflight"
	"gonum.org/v1/gonum/mat"
)

type templateKey struct {
	session string
	group   string
	unit    int
}

// CachedProvider wraps a SessionProvider with a read-through template cache
// keyed by (session, channel group, unit). Concurrent loads of the same
// template share one call to the underlying provider. Failed loads are not
// cached.
type CachedProvider struct {
	tracking.SessionProvider

	mu        sync.RWMutex
	templates map[templateKey]*mat.Dense
	flight    singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachedProvider wraps p.
func NewCachedProvider(p tracking.SessionProvider) *CachedProvider {
	return &CachedProvider{
		SessionProvider: p,
		templates:       make(map[templateKey]*mat.Dense),
	}
}

// Template returns the cached template or loads it once.
func (c *CachedProvider) Template(ctx context.Context, session, group string, unit int) (*mat.Dense, error) {
	k := templateKey{session: session, group: group, unit: unit}

	c.mu.RLock()
	t, ok := c.templates[k]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
		return t, nil
	}

	v, err, _ := c.flight.Do(fmt.Sprintf("%s\x00%s\x00%d", session, group, unit), func() (interface{}, error) {
		c.mu.RLock()
		t, ok := c.templates[k]
		c.mu.RUnlock()
		if ok {
			return t, nil
		}

		c.misses.Add(1)
		t, err := c.SessionProvider.Template(ctx, session, group, unit)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.templates[k] = t
		c.mu.Unlock()
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*mat.Dense), nil
}

// Stats returns cache hits and underlying loads so far.
func (c *CachedProvider) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Len returns the number of cached templates.
func (c *CachedProvider) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.templates)
}
