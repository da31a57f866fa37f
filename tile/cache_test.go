// tile/cache_test.go
// Copyright(c) 2024-2026 radioscape contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package tile

import (
	"testing"
)

// fakeRenderer hands out texture ids and records deletions.
type fakeRenderer struct {
	next    uint32
	deleted map[uint32]bool
	live    int
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{deleted: make(map[uint32]bool)}
}

func (f *fakeRenderer) create() uint32 {
	f.next++
	f.live++
	return f.next
}

func (f *fakeRenderer) CreateTextureRGBA(pix []byte, width, height int) uint32 { return f.create() }
func (f *fakeRenderer) CreateTextureR8(rows, cols int) uint32                  { return f.create() }
func (f *fakeRenderer) CreateTextureR32F(rows, cols int) uint32                { return f.create() }
func (f *fakeRenderer) UpdateTextureR8(id uint32, pix []byte, rows, cols int)  {}
func (f *fakeRenderer) UpdateTextureR32F(id uint32, pix []float32, rows, cols int) {
}

func (f *fakeRenderer) DeleteTexture(id uint32) {
	f.deleted[id] = true
	f.live--
}

func (f *fakeRenderer) Dispose() {}

func renderableAt(r *fakeRenderer, c Coord) *Renderable {
	return &Renderable{
		Coord:     c,
		Bounds:    TileBounds(c),
		Texture:   r.create(),
		Elevation: make([]float32, 9),
		ElevRows:  3,
		ElevCols:  3,
	}
}

func TestCacheEvictsOldest(t *testing.T) {
	fr := newFakeRenderer()
	c, err := NewCache(2, fr)
	if err != nil {
		t.Fatal(err)
	}

	a := renderableAt(fr, Coord{Z: ZoomHGT, X: -105, Y: 39})
	b := renderableAt(fr, Coord{Z: ZoomHGT, X: -104, Y: 39})
	d := renderableAt(fr, Coord{Z: ZoomHGT, X: -103, Y: 39})

	c.Upload(a)
	c.Upload(b)
	aTex := a.Texture // Destroy zeroes the handle on eviction
	c.Upload(d)

	if c.Has(a.Coord) {
		t.Errorf("oldest tile still cached")
	}
	if !fr.deleted[aTex] {
		t.Errorf("evicted tile's texture not released")
	}
	if !c.Has(b.Coord) || !c.Has(d.Coord) {
		t.Errorf("recent tiles evicted")
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d", c.Len())
	}
}

func TestCacheGetPromotes(t *testing.T) {
	fr := newFakeRenderer()
	c, _ := NewCache(2, fr)

	a := renderableAt(fr, Coord{Z: ZoomHGT, X: -105, Y: 39})
	b := renderableAt(fr, Coord{Z: ZoomHGT, X: -104, Y: 39})
	c.Upload(a)
	c.Upload(b)

	if _, ok := c.Get(a.Coord); !ok {
		t.Fatal("tile a missing")
	}

	c.Upload(renderableAt(fr, Coord{Z: ZoomHGT, X: -103, Y: 39}))

	if !c.Has(a.Coord) {
		t.Errorf("promoted tile evicted")
	}
	if c.Has(b.Coord) {
		t.Errorf("least recently used tile survived")
	}
}

func TestCacheTouch(t *testing.T) {
	fr := newFakeRenderer()
	c, _ := NewCache(2, fr)

	a := renderableAt(fr, Coord{Z: ZoomHGT, X: -105, Y: 39})
	b := renderableAt(fr, Coord{Z: ZoomHGT, X: -104, Y: 39})
	c.Upload(a)
	c.Upload(b)
	c.Touch(a.Coord)
	c.Upload(renderableAt(fr, Coord{Z: ZoomHGT, X: -103, Y: 39}))

	if !c.Has(a.Coord) {
		t.Errorf("touched tile evicted")
	}
}

func TestCacheForEachDoesNotPromote(t *testing.T) {
	fr := newFakeRenderer()
	c, _ := NewCache(2, fr)

	a := renderableAt(fr, Coord{Z: ZoomHGT, X: -105, Y: 39})
	b := renderableAt(fr, Coord{Z: ZoomHGT, X: -104, Y: 39})
	c.Upload(a)
	c.Upload(b)

	n := 0
	c.ForEach(func(*Renderable) { n++ })
	if n != 2 {
		t.Errorf("visited %d tiles", n)
	}

	c.Upload(renderableAt(fr, Coord{Z: ZoomHGT, X: -103, Y: 39}))
	if c.Has(a.Coord) {
		t.Errorf("iteration changed eviction order")
	}
}

func TestCacheUploadReplaces(t *testing.T) {
	fr := newFakeRenderer()
	c, _ := NewCache(4, fr)

	coord := Coord{Z: ZoomHGT, X: -105, Y: 39}
	old := renderableAt(fr, coord)
	c.Upload(old)
	oldTex := old.Texture

	c.Upload(renderableAt(fr, coord))

	if !fr.deleted[oldTex] {
		t.Errorf("replaced tile's texture not released")
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d after replace", c.Len())
	}
}

func TestCacheUploadKeepsSharedHandles(t *testing.T) {
	fr := newFakeRenderer()
	c, _ := NewCache(4, fr)

	coord := Coord{Z: ZoomHGT, X: -105, Y: 39}
	old := renderableAt(fr, coord)
	old.OverlayVisTex = fr.create()
	old.OverlaySigTex = fr.create()
	c.Upload(old)
	sharedTex, oldVis, oldSig := old.Texture, old.OverlayVisTex, old.OverlaySigTex

	// The replacement reuses the imagery texture but carries fresh
	// overlay handles; only the orphaned handles may be released.
	repl := &Renderable{
		Coord:         coord,
		Bounds:        TileBounds(coord),
		Texture:       sharedTex,
		OverlayVisTex: fr.create(),
		OverlaySigTex: fr.create(),
		Elevation:     make([]float32, 9),
		ElevRows:      3,
		ElevCols:      3,
	}
	c.Upload(repl)

	if fr.deleted[sharedTex] {
		t.Errorf("shared imagery texture released on replace")
	}
	if !fr.deleted[oldVis] || !fr.deleted[oldSig] {
		t.Errorf("replaced overlay textures not released")
	}
}

func TestCacheClear(t *testing.T) {
	fr := newFakeRenderer()
	c, _ := NewCache(4, fr)
	c.Upload(renderableAt(fr, Coord{Z: ZoomHGT, X: -105, Y: 39}))
	c.Upload(renderableAt(fr, Coord{Z: ZoomHGT, X: -104, Y: 39}))

	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len = %d after Clear", c.Len())
	}
	if fr.live != 0 {
		t.Errorf("%d textures leaked", fr.live)
	}
}
