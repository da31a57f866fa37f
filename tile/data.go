// tile/data.go
// Copyright(c) 2024-2026 radioscape contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package tile

import (
	"github.com/radioscape/radioscape/geo"
	"github.com/radioscape/radioscape/renderer"
)

// Data is the CPU-side payload a provider returns for one tile. It is
// consumed once when it is promoted into a Renderable and then
// discarded. Any of the grids may be absent.
type Data struct {
	Coord  Coord
	Bounds geo.Bounds

	// Elevation grid, row-major meters.
	Elevation          []float32
	ElevRows, ElevCols int

	// Imagery, row-major RGBA.
	Imagery             []byte
	ImgWidth, ImgHeight int

	// Precomputed overlay, if the provider has one.
	Viewshed []uint8
	Signal   []float32
}

// HasElevation reports whether the tile carries a well-formed elevation
// grid.
func (d *Data) HasElevation() bool {
	return d.ElevRows > 0 && d.ElevCols > 0 && len(d.Elevation) == d.ElevRows*d.ElevCols
}

// Renderable is a cached tile: the GPU texture handles plus a retained
// CPU copy of elevation and overlay data. The CPU elevation is kept for
// point sampling and viewshed recompute; the overlay arrays are
// mutated in place by recompute. Once uploaded, a Renderable is owned
// exclusively by the cache and touched only on the render thread.
type Renderable struct {
	Coord  Coord
	Bounds geo.Bounds

	// Imagery texture; zero when no imagery has been composited yet.
	Texture uint32

	Elevation          []float32
	ElevRows, ElevCols int

	Viewshed []uint8
	Signal   []float32

	// Overlay textures sampled by the terrain shader when valid,
	// avoiding a mesh rebuild on viewshed updates. Visibility is R8,
	// signal is R32F.
	OverlayVisTex   uint32
	OverlaySigTex   uint32
	OverlayTexValid bool
}

// UploadOverlayTextures mirrors the given overlay grids into the GPU
// overlay textures, creating them on first use.
func (t *Renderable) UploadOverlayTextures(r renderer.Renderer, vis []uint8, sig []float32, rows, cols int) {
	if t.OverlayVisTex == 0 {
		t.OverlayVisTex = r.CreateTextureR8(rows, cols)
	}
	if t.OverlaySigTex == 0 {
		t.OverlaySigTex = r.CreateTextureR32F(rows, cols)
	}

	// Scale visibility 0/1 to 0/255: R8 is normalized on sampling, so
	// storing 1 would read back as 1/255.
	scaled := make([]uint8, rows*cols)
	for i, v := range vis {
		if v != 0 {
			scaled[i] = 255
		}
	}

	r.UpdateTextureR8(t.OverlayVisTex, scaled, rows, cols)
	r.UpdateTextureR32F(t.OverlaySigTex, sig, rows, cols)
	t.OverlayTexValid = true
}

// DestroyOverlayTextures releases the overlay textures, if any.
func (t *Renderable) DestroyOverlayTextures(r renderer.Renderer) {
	if t.OverlayVisTex != 0 {
		r.DeleteTexture(t.OverlayVisTex)
		t.OverlayVisTex = 0
	}
	if t.OverlaySigTex != 0 {
		r.DeleteTexture(t.OverlaySigTex)
		t.OverlaySigTex = 0
	}
	t.OverlayTexValid = false
}

// Destroy releases all GPU resources held by the tile.
func (t *Renderable) Destroy(r renderer.Renderer) {
	if t.Texture != 0 {
		r.DeleteTexture(t.Texture)
		t.Texture = 0
	}
	t.DestroyOverlayTextures(r)
}
