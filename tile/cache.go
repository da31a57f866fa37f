// tile/cache.go
// Copyright(c) 2024-2026 radioscape contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package tile

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/radioscape/radioscape/renderer"
)

// Cache is the bounded LRU store of GPU-resident tiles. GPU object
// lifetimes are tied to cache residency, so all cache operations must
// happen on the render thread; there is no internal locking beyond
// what the LRU itself does.
type Cache struct {
	lru *lru.Cache[Coord, *Renderable]
	r   renderer.Renderer
}

// NewCache returns a cache bounded to maxTiles entries. Evicted tiles
// have their GPU resources released immediately.
func NewCache(maxTiles int, r renderer.Renderer) (*Cache, error) {
	c := &Cache{r: r}
	var err error
	c.lru, err = lru.NewWithEvict(maxTiles, func(_ Coord, t *Renderable) {
		t.Destroy(c.r)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Upload inserts or replaces the entry for t.Coord, promoting it to
// most recently used and evicting the least recently used tiles if
// over capacity. A replaced entry's GPU resources are released unless
// the new record carries the same handles.
func (c *Cache) Upload(t *Renderable) *Renderable {
	if old, ok := c.lru.Peek(t.Coord); ok && old != t {
		if old.Texture != 0 && old.Texture != t.Texture {
			c.r.DeleteTexture(old.Texture)
		}
		if old.OverlayVisTex != 0 && old.OverlayVisTex != t.OverlayVisTex {
			c.r.DeleteTexture(old.OverlayVisTex)
		}
		if old.OverlaySigTex != 0 && old.OverlaySigTex != t.OverlaySigTex {
			c.r.DeleteTexture(old.OverlaySigTex)
		}
	}
	c.lru.Add(t.Coord, t)
	return t
}

// Get returns the cached tile and promotes it to most recently used;
// the returned pointer may be mutated in place for overlay updates.
func (c *Cache) Get(coord Coord) (*Renderable, bool) {
	return c.lru.Get(coord)
}

// Touch promotes the entry to most recently used without returning it.
func (c *Cache) Touch(coord Coord) {
	c.lru.Get(coord)
}

// Has reports residency with no LRU side effect.
func (c *Cache) Has(coord Coord) bool {
	return c.lru.Contains(coord)
}

// Evict removes the entry, releasing its GPU resources.
func (c *Cache) Evict(coord Coord) {
	c.lru.Remove(coord)
}

// Clear removes every entry, releasing all GPU resources.
func (c *Cache) Clear() {
	c.lru.Purge()
}

func (c *Cache) Len() int {
	return c.lru.Len()
}

// ForEach calls visit for each cached tile, least recently used first,
// with no LRU side effect. The visit callback may mutate the tile in
// place but must not add or remove cache entries.
func (c *Cache) ForEach(visit func(*Renderable)) {
	for _, coord := range c.lru.Keys() {
		if t, ok := c.lru.Peek(coord); ok {
			visit(t)
		}
	}
}
