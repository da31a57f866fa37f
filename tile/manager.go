// tile/manager.go
// Copyright(c) 2024-2026 radioscape contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package tile

import (
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/radioscape/radioscape/geo"
	"github.com/radioscape/radioscape/log"
	"github.com/radioscape/radioscape/renderer"
	"github.com/radioscape/radioscape/scene"
	"github.com/radioscape/radioscape/util"
	"github.com/radioscape/radioscape/viewshed"
)

// ImagerySource selects which imagery provider drapes the terrain.
type ImagerySource int

const (
	ImagerySatellite ImagerySource = iota
	ImageryStreet
	ImageryNone
)

func (s ImagerySource) String() string {
	return [...]string{"satellite", "street", "none"}[s]
}

// Per-frame time budget for promoting loader results to the GPU cache.
const drainBudget = 4 * time.Millisecond

// Composite imagery never exceeds this many slippy tiles per side; the
// preferred zoom steps down until the tile fits.
const maxCompositeDim = 16

const imageryTilePx = 256

// Default imagery zoom for project-bounds sized areas.
const defaultImageryZoom = 13

// Manager owns the tile pipeline: it decides which elevation tiles are
// needed, feeds the async loader, promotes finished tiles into the GPU
// cache within a frame budget, composites imagery onto them, and runs
// viewshed overlays across the cached set. All methods must be called
// from the render thread.
type Manager struct {
	lg *log.Logger
	r  renderer.Renderer

	cache  *Cache
	loader *AsyncLoader

	elevProvider Provider        // static mode, usually a SingleTileProvider
	dynProvider  DynamicProvider // camera-driven streaming, HGT or DSM
	imgProvider  Provider
	imgSource    ImagerySource
	imageryZoom  int

	bounds      geo.Bounds
	boundsSet   bool
	proj        geo.Projection
	elevLoaded  bool
	visibleElev []Coord

	// In-flight per-tile GPU viewshed pass.
	vsTiles   []Coord
	vsComp    []CompositeElevation
	vsCurrent int
	vsActive  bool
}

func NewManager(maxTiles int, r renderer.Renderer, lg *log.Logger) (*Manager, error) {
	cache, err := NewCache(maxTiles, r)
	if err != nil {
		return nil, err
	}
	return &Manager{
		lg:          lg,
		r:           r,
		cache:       cache,
		loader:      NewAsyncLoader(lg),
		imgSource:   ImageryNone,
		imageryZoom: defaultImageryZoom,
	}, nil
}

// Stop shuts down the loader goroutine. The manager is unusable
// afterwards.
func (m *Manager) Stop() {
	m.loader.Stop()
}

func (m *Manager) Cache() *Cache { return m.cache }

func (m *Manager) Projection() geo.Projection { return m.proj }

func (m *Manager) Bounds() geo.Bounds { return m.bounds }

// SetElevationProvider installs the static-mode elevation source and
// forces a reload on the next Update.
func (m *Manager) SetElevationProvider(p Provider) {
	m.elevProvider = p
	m.elevLoaded = false
}

// SetDynamicProvider installs a camera-driven elevation source. When
// set, UpdateDynamic streams tiles around the camera instead of
// loading a fixed set.
func (m *Manager) SetDynamicProvider(p DynamicProvider) {
	m.dynProvider = p
	m.elevLoaded = false
	if p != nil {
		m.lg.Infof("tile manager: dynamic provider %s", p.Name())
	}
}

func (m *Manager) SetImageryProvider(p Provider) {
	m.imgProvider = p
}

func (m *Manager) ImagerySource() ImagerySource { return m.imgSource }

// SetImagerySource swaps the imagery provider and strips the imagery
// texture from every cached tile so it is recomposited; elevation and
// overlays stay resident so no terrain is re-fetched.
func (m *Manager) SetImagerySource(src ImagerySource) {
	if src == m.imgSource {
		return
	}
	m.imgSource = src

	switch src {
	case ImagerySatellite:
		m.imgProvider = SatelliteProvider(m.lg)
	case ImageryStreet:
		m.imgProvider = StreetProvider(m.lg)
	case ImageryNone:
		m.imgProvider = nil
	}

	m.cache.ForEach(func(t *Renderable) {
		if t.Texture != 0 {
			m.r.DeleteTexture(t.Texture)
			t.Texture = 0
		}
	})

	m.lg.Infof("Imagery source: %s", src)
}

func (m *Manager) CycleImagerySource() {
	m.SetImagerySource((m.imgSource + 1) % 3)
}

// SetBounds fixes the static-mode area of interest and rebuilds the
// local projection around it.
func (m *Manager) SetBounds(b geo.Bounds) {
	m.bounds = b
	m.proj = geo.MakeProjection(b)
	m.boundsSet = true
	m.elevLoaded = false
}

// Update advances the static pipeline one frame: request missing
// elevation tiles, drain loader results within the frame budget, and
// composite imagery onto tiles that still lack a texture.
func (m *Manager) Update() {
	if !m.boundsSet {
		return
	}
	m.ensureElevationTiles()
	m.ensureImageryTiles()
}

// UpdateDynamic is the camera-driven variant: the visible set follows
// the viewpoint and cached tiles outside it age out of the LRU rather
// than being evicted eagerly.
func (m *Manager) UpdateDynamic(camLat, camLon float64) {
	if m.dynProvider == nil {
		m.Update()
		return
	}
	m.updateDynamicTiles(camLat, camLon)
	m.ensureImageryTiles()
}

func (m *Manager) ensureElevationTiles() {
	if m.elevProvider == nil || m.elevLoaded {
		return
	}

	m.visibleElev = m.elevProvider.TilesInBounds(m.bounds, 0)

	allLoaded := true
	for _, coord := range m.visibleElev {
		if m.cache.Has(coord) {
			continue
		}
		allLoaded = false
		if m.loader.IsPending(coord) {
			continue
		}
		m.loader.Request(coord, m.elevProvider)
	}

	m.drainReadyTiles()

	if allLoaded {
		done := true
		for _, coord := range m.visibleElev {
			if !m.cache.Has(coord) {
				done = false
				break
			}
		}
		m.elevLoaded = done
	}
}

func (m *Manager) updateDynamicTiles(camLat, camLon float64) {
	needed := m.dynProvider.TilesInView(camLat, camLon)

	for _, coord := range needed {
		if m.cache.Has(coord) {
			m.cache.Touch(coord)
			continue
		}
		if m.loader.IsPending(coord) {
			continue
		}
		m.loader.Request(coord, m.dynProvider)
	}

	m.drainReadyTiles()

	m.visibleElev = needed
	m.elevLoaded = true

	if len(needed) > 0 {
		total := TileBounds(needed[0])
		for _, coord := range needed[1:] {
			total = total.Union(TileBounds(coord))
		}
		m.bounds = total
		m.boundsSet = true
	}
}

// drainReadyTiles promotes completed loader results into the GPU cache
// until the frame budget runs out; anything left stays queued for the
// next frame.
func (m *Manager) drainReadyTiles() {
	start := time.Now()
	for {
		data := m.loader.PollResult()
		if data == nil {
			return
		}

		if data.Coord.Z < 0 || data.HasElevation() || len(data.Imagery) > 0 {
			// A tile may complete twice when it was re-requested while
			// the first result sat in the drain queue.
			if m.cache.Has(data.Coord) {
				m.lg.Debugf("tile %s already cached, skipping", data.Coord)
			} else {
				m.cache.Upload(m.build(data))
				m.lg.Infof("uploaded tile %s", data.Coord)
			}
		}

		if time.Since(start) > drainBudget {
			return
		}
	}
}

// build promotes CPU tile data to a cache-ready Renderable, uploading
// imagery and any precomputed overlay as textures.
func (m *Manager) build(data *Data) *Renderable {
	t := &Renderable{
		Coord:     data.Coord,
		Bounds:    data.Bounds,
		Elevation: data.Elevation,
		ElevRows:  data.ElevRows,
		ElevCols:  data.ElevCols,
		Viewshed:  data.Viewshed,
		Signal:    data.Signal,
	}
	if len(data.Imagery) > 0 && data.ImgWidth > 0 && data.ImgHeight > 0 {
		t.Texture = m.r.CreateTextureRGBA(data.Imagery, data.ImgWidth, data.ImgHeight)
	}
	if len(t.Viewshed) > 0 && len(t.Signal) == len(t.Viewshed) {
		t.UploadOverlayTextures(m.r, t.Viewshed, t.Signal, t.ElevRows, t.ElevCols)
	}
	return t
}

func (m *Manager) ensureImageryTiles() {
	if m.imgProvider == nil || !m.boundsSet || m.imgSource == ImageryNone {
		return
	}

	for _, coord := range m.visibleElev {
		t, ok := m.cache.Get(coord)
		if !ok || t.Texture != 0 {
			continue
		}
		m.compositeImageryForTile(t)
	}
}

// compositeImageryForTile fetches the slippy imagery tiles covering an
// elevation tile, assembles them into one image, crops it to the tile's
// exact bounds, and uploads it as the tile's texture. The zoom steps
// down from the preferred level until the composite fits within
// maxCompositeDim tiles per side.
func (m *Manager) compositeImageryForTile(t *Renderable) {
	zoom := util.Clamp(m.imageryZoom, m.imgProvider.MinZoom(), m.imgProvider.MaxZoom())
	var coords []Coord
	var minX, minY, tilesX, tilesY int

	for ; zoom >= 0; zoom-- {
		coords = BoundsToTileRange(t.Bounds, zoom)
		if len(coords) == 0 {
			return
		}

		minX, minY = coords[0].X, coords[0].Y
		maxX, maxY := minX, minY
		for _, c := range coords {
			minX, maxX = min(minX, c.X), max(maxX, c.X)
			minY, maxY = min(minY, c.Y), max(maxY, c.Y)
		}
		tilesX = maxX - minX + 1
		tilesY = maxY - minY + 1
		if tilesX <= maxCompositeDim && tilesY <= maxCompositeDim {
			break
		}
	}
	if zoom < 0 {
		return
	}

	compW := tilesX * imageryTilePx
	compH := tilesY * imageryTilePx
	composite := make([]byte, compW*compH*4)

	// The provider's disk cache keeps repeated composites cheap, but
	// first-time fetches go to the network, so run them concurrently.
	fetched := make([]*Data, len(coords))
	var g errgroup.Group
	g.SetLimit(8)
	for i, coord := range coords {
		i, coord := i, coord
		g.Go(func() error {
			d, err := m.imgProvider.FetchTile(coord)
			if err != nil {
				m.lg.Warnf("imagery fetch %s: %v", coord, err)
				return nil
			}
			fetched[i] = d
			return nil
		})
	}
	g.Wait()

	n := 0
	for i, coord := range coords {
		d := fetched[i]
		if d == nil || len(d.Imagery) == 0 {
			continue
		}
		ox := (coord.X - minX) * imageryTilePx
		oy := (coord.Y - minY) * imageryTilePx
		tw := min(d.ImgWidth, imageryTilePx)
		th := min(d.ImgHeight, imageryTilePx)
		for row := 0; row < th; row++ {
			src := row * d.ImgWidth * 4
			dst := ((oy+row)*compW + ox) * 4
			copy(composite[dst:dst+tw*4], d.Imagery[src:src+tw*4])
		}
		n++
	}
	if n == 0 {
		return
	}

	// Crop to the elevation tile's exact bounds using fractional tile
	// coordinates; the slippy grid usually overhangs the tile.
	fx0 := LonToTileXFrac(t.Bounds.MinLon, zoom) - float64(minX)
	fx1 := LonToTileXFrac(t.Bounds.MaxLon, zoom) - float64(minX)
	fy0 := LatToTileYFrac(t.Bounds.MaxLat, zoom) - float64(minY) // north = top
	fy1 := LatToTileYFrac(t.Bounds.MinLat, zoom) - float64(minY)

	cx0 := max(0, int(math.Round(fx0*imageryTilePx)))
	cy0 := max(0, int(math.Round(fy0*imageryTilePx)))
	cx1 := min(compW, int(math.Round(fx1*imageryTilePx)))
	cy1 := min(compH, int(math.Round(fy1*imageryTilePx)))
	cropW, cropH := cx1-cx0, cy1-cy0
	if cropW <= 0 || cropH <= 0 {
		return
	}

	cropped := make([]byte, cropW*cropH*4)
	for row := 0; row < cropH; row++ {
		src := ((cy0+row)*compW + cx0) * 4
		copy(cropped[row*cropW*4:(row+1)*cropW*4], composite[src:src+cropW*4])
	}

	m.lg.Infof("Composited %d/%d imagery tiles for %s, cropped %dx%d -> %dx%d px",
		n, len(coords), t.Coord, compW, compH, cropW, cropH)

	t.Texture = m.r.CreateTextureRGBA(cropped, cropW, cropH)
}

// ForEachVisible calls fn for every tile that should be drawn this
// frame. With a dynamic provider every cached tile is drawn; in static
// mode only the fixed visible set is.
func (m *Manager) ForEachVisible(fn func(*Renderable)) {
	if m.dynProvider != nil {
		m.cache.ForEach(fn)
		return
	}
	for _, coord := range m.visibleElev {
		if t, ok := m.cache.Get(coord); ok {
			fn(t)
		}
	}
}

// HasTerrain reports whether the visible elevation set is fully
// resident.
func (m *Manager) HasTerrain() bool {
	return m.elevLoaded && len(m.visibleElev) > 0
}

// ElevationAt samples terrain height at a geographic point with
// bilinear interpolation, or 0 if no cached tile covers it.
func (m *Manager) ElevationAt(lat, lon float64) float32 {
	var coord Coord
	switch m.dynProvider.(type) {
	case *HGTProvider:
		coord = LatLonToHGTCoord(lat, lon)
	case *DSMProvider:
		coord = LatLonToDSMCoord(lat, lon)
	default:
		if len(m.visibleElev) == 0 {
			return 0
		}
		coord = m.visibleElev[0]
	}

	t, ok := m.cache.Get(coord)
	if !ok || len(t.Elevation) == 0 || t.ElevRows < 2 || t.ElevCols < 2 {
		return 0
	}

	u := (lon - t.Bounds.MinLon) / (t.Bounds.MaxLon - t.Bounds.MinLon)
	v := (t.Bounds.MaxLat - lat) / (t.Bounds.MaxLat - t.Bounds.MinLat)
	u = util.Clamp(u, 0, 1)
	v = util.Clamp(v, 0, 1)

	gc := u * float64(t.ElevCols-1)
	gr := v * float64(t.ElevRows-1)

	c0 := util.Clamp(int(gc), 0, t.ElevCols-2)
	r0 := util.Clamp(int(gr), 0, t.ElevRows-2)
	fc := float32(gc - float64(c0))
	fr := float32(gr - float64(r0))

	h00 := t.Elevation[r0*t.ElevCols+c0]
	h10 := t.Elevation[(r0+1)*t.ElevCols+c0]
	h01 := t.Elevation[r0*t.ElevCols+c0+1]
	h11 := t.Elevation[(r0+1)*t.ElevCols+c0+1]

	h0 := h00 + fc*(h01-h00)
	h1 := h10 + fc*(h11-h10)
	return h0 + fr*(h1-h0)
}

// ApplyViewshedOverlays recomputes coverage for every cached tile on
// the CPU. Each tile is computed on its composite grid so rays can
// cross into neighbor tiles, then the center portion is written back
// and mirrored into the overlay textures. The imagery texture is
// untouched.
func (m *Manager) ApplyViewshedOverlays(nodes []scene.Node) {
	m.cache.ForEach(func(t *Renderable) {
		if len(t.Elevation) == 0 || t.ElevRows < 2 || t.ElevCols < 2 {
			return
		}

		total := t.ElevRows * t.ElevCols
		t.Viewshed = make([]uint8, total)
		t.Signal = make([]float32, total)
		for i := range t.Signal {
			t.Signal[i] = viewshed.NoSignal
		}

		ce := BuildCompositeElevation(t, m.cache)

		for i := range nodes {
			res := viewshed.Compute(ce.Data, ce.Rows, ce.Cols, ce.Bounds, &nodes[i])
			vis, sig := ce.ExtractCenterResults(res.Visibility, res.Signal)
			for j := 0; j < total; j++ {
				if vis[j] != 0 {
					t.Viewshed[j] = 1
					if sig[j] > t.Signal[j] {
						t.Signal[j] = sig[j]
					}
				}
			}
		}

		t.UploadOverlayTextures(m.r, t.Viewshed, t.Signal, t.ElevRows, t.ElevCols)
	})

	m.lg.Infof("Applied viewshed overlays to %d cached tiles for %d nodes",
		m.cache.Len(), len(nodes))
}

// KickViewshedGPU starts an asynchronous coverage recompute across all
// cached tiles, one tile per GPU pass. Stale overlay textures are
// dropped up front so tiles don't show old coverage while theirs is
// still queued.
func (m *Manager) KickViewshedGPU(nodes []scene.Node, gpu *viewshed.GPUViewshed) {
	if gpu == nil {
		m.ApplyViewshedOverlays(nodes)
		return
	}

	m.cache.ForEach(func(t *Renderable) {
		t.DestroyOverlayTextures(m.r)
	})

	m.vsTiles = m.vsTiles[:0]
	m.cache.ForEach(func(t *Renderable) {
		if len(t.Elevation) > 0 && t.ElevRows >= 2 && t.ElevCols >= 2 {
			m.vsTiles = append(m.vsTiles, t.Coord)
		}
	})
	if len(m.vsTiles) == 0 {
		return
	}

	m.vsComp = make([]CompositeElevation, len(m.vsTiles))
	m.vsCurrent = 0
	m.vsActive = true
	m.dispatchTileViewshed(0, nodes, gpu)
}

// dispatchTileViewshed kicks the GPU for the tile at idx, skipping
// over any tiles evicted since the pass started so the state machine
// cannot wedge on a missing entry.
func (m *Manager) dispatchTileViewshed(idx int, nodes []scene.Node, gpu *viewshed.GPUViewshed) {
	for ; idx < len(m.vsTiles); idx++ {
		t, ok := m.cache.Get(m.vsTiles[idx])
		if !ok {
			m.lg.Debugf("tile %s evicted before its viewshed pass, skipping", m.vsTiles[idx])
			continue
		}

		m.vsCurrent = idx
		ce := BuildCompositeElevation(t, m.cache)
		gpu.Kick(nodes, ce.Data, ce.Rows, ce.Cols, ce.Bounds)

		// Only the layout is needed at readback time.
		ce.Data = nil
		m.vsComp[idx] = ce
		return
	}

	m.vsCurrent = idx
	m.vsActive = false
	m.lg.Infof("Async tile viewshed complete for %d tiles, %d nodes",
		len(m.vsTiles), len(nodes))
}

// PollViewshedGPU advances the per-tile pass: when the GPU finishes a
// tile its results are read back, cropped to the center tile, and
// uploaded as overlay textures, then the next tile is dispatched. Call
// once per frame.
func (m *Manager) PollViewshedGPU(nodes []scene.Node, gpu *viewshed.GPUViewshed) {
	if gpu == nil || !m.vsActive {
		return
	}
	if gpu.Poll() != viewshed.Ready {
		return
	}

	idx := m.vsCurrent
	if merged := gpu.ReadBack(); merged != nil && idx < len(m.vsTiles) {
		if t, ok := m.cache.Get(m.vsTiles[idx]); ok {
			ce := &m.vsComp[idx]
			t.Viewshed, t.Signal = ce.ExtractCenterResults(merged.Visibility, merged.Signal)
			t.UploadOverlayTextures(m.r, t.Viewshed, t.Signal, t.ElevRows, t.ElevCols)
		}
	}

	m.dispatchTileViewshed(m.vsCurrent+1, nodes, gpu)
}

// ViewshedActive reports whether a per-tile GPU pass is in flight.
func (m *Manager) ViewshedActive() bool { return m.vsActive }

// Clear drops all cached tiles and pending loads, returning the
// manager to its initial state without stopping the loader.
func (m *Manager) Clear() {
	m.loader.ClearPending()
	m.cache.Clear()
	m.elevLoaded = false
	m.visibleElev = nil
	m.vsActive = false
	m.vsTiles = nil
	m.vsComp = nil
}
