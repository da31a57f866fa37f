// tile/manager_test.go
// Copyright(c) 2024-2026 radioscape contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package tile

import (
	"testing"

	"github.com/radioscape/radioscape/geo"
	"github.com/radioscape/radioscape/log"
	"github.com/radioscape/radioscape/scene"
	"github.com/radioscape/radioscape/viewshed"
)

var managerBounds = geo.Bounds{MinLat: 39, MinLon: -105, MaxLat: 40, MaxLon: -104}

// elevationProvider serves one HGT-style tile with a fixed 3x3 grid.
func elevationProvider() *stubProvider {
	coord := Coord{Z: ZoomHGT, X: -105, Y: 39}
	return &stubProvider{
		tiles: []Coord{coord},
		fetch: func(c Coord) (*Data, error) {
			return &Data{
				Coord:     c,
				Bounds:    TileBounds(c),
				Elevation: []float32{0, 1, 2, 3, 4, 5, 6, 7, 8},
				ElevRows:  3,
				ElevCols:  3,
			}, nil
		},
	}
}

func testManager(t *testing.T) (*Manager, *fakeRenderer) {
	t.Helper()
	fr := newFakeRenderer()
	m, err := NewManager(8, fr, log.New("warn", t.TempDir()))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(m.Stop)
	return m, fr
}

func loadTerrain(t *testing.T, m *Manager) {
	t.Helper()
	m.SetBounds(managerBounds)
	m.SetElevationProvider(elevationProvider())
	waitFor(t, "terrain", func() bool {
		m.Update()
		return m.HasTerrain()
	})
}

func TestManagerStaticLoad(t *testing.T) {
	m, _ := testManager(t)
	loadTerrain(t, m)

	coord := Coord{Z: ZoomHGT, X: -105, Y: 39}
	tr, ok := m.Cache().Get(coord)
	if !ok {
		t.Fatal("tile not cached")
	}
	if tr.ElevRows != 3 || tr.ElevCols != 3 {
		t.Errorf("tile dims %dx%d", tr.ElevRows, tr.ElevCols)
	}

	n := 0
	m.ForEachVisible(func(*Renderable) { n++ })
	if n != 1 {
		t.Errorf("visible tiles = %d", n)
	}
}

func TestManagerDrainDropsAlreadyCached(t *testing.T) {
	m, fr := testManager(t)

	p := elevationProvider()
	p.gate = make(chan struct{})
	m.SetBounds(managerBounds)
	m.SetElevationProvider(p)
	m.Update() // requests the tile; the fetch blocks on the gate

	// The same coordinate lands in the cache while the fetch is still
	// in flight.
	coord := Coord{Z: ZoomHGT, X: -105, Y: 39}
	direct := renderableAt(fr, coord)
	m.Cache().Upload(direct)
	tex := direct.Texture

	close(p.gate)
	waitFor(t, "stale result drained", func() bool {
		m.Update()
		m.drainReadyTiles()
		return !m.loader.IsPending(coord)
	})

	// The late result must be dropped, not re-uploaded over the
	// existing entry.
	got, ok := m.Cache().Get(coord)
	if !ok || got != direct {
		t.Fatal("cached tile replaced by stale loader result")
	}
	if fr.deleted[tex] {
		t.Error("cached tile's texture destroyed by stale result")
	}
	if !m.HasTerrain() {
		t.Error("terrain not marked loaded")
	}
}

func TestManagerElevationAt(t *testing.T) {
	m, _ := testManager(t)
	loadTerrain(t, m)

	// Grid center: row 1, col 1 of the 3x3 grid.
	if h := m.ElevationAt(39.5, -104.5); h != 4 {
		t.Errorf("center elevation = %g, want 4", h)
	}
	// Northwest corner is row 0, col 0.
	if h := m.ElevationAt(40, -105); h != 0 {
		t.Errorf("northwest elevation = %g, want 0", h)
	}
	// Southeast corner.
	if h := m.ElevationAt(39, -104); h != 8 {
		t.Errorf("southeast elevation = %g, want 8", h)
	}
	// Halfway between the center and east cells of the middle row.
	if h := m.ElevationAt(39.5, -104.25); h != 4.5 {
		t.Errorf("interpolated elevation = %g, want 4.5", h)
	}
	// Points outside the tile clamp to the nearest edge sample.
	if h := m.ElevationAt(10, 10); h != 8 {
		t.Errorf("clamped elevation = %g, want 8", h)
	}
}

func TestManagerApplyViewshedOverlays(t *testing.T) {
	m, _ := testManager(t)
	loadTerrain(t, m)

	node := scene.Node{Lat: 39.5, Lon: -104.5}
	node.ApplyDefaults()
	m.ApplyViewshedOverlays([]scene.Node{node})

	tr, _ := m.Cache().Get(Coord{Z: ZoomHGT, X: -105, Y: 39})
	if len(tr.Viewshed) != 9 || len(tr.Signal) != 9 {
		t.Fatalf("overlay sizes %d/%d", len(tr.Viewshed), len(tr.Signal))
	}
	if tr.Viewshed[4] != 1 {
		t.Errorf("node cell not covered")
	}
	if !tr.OverlayTexValid {
		t.Errorf("overlay textures not uploaded")
	}
}

func TestManagerImagerySourceSwitch(t *testing.T) {
	m, fr := testManager(t)
	loadTerrain(t, m)

	tr, _ := m.Cache().Get(Coord{Z: ZoomHGT, X: -105, Y: 39})
	tr.Texture = fr.create()
	tex := tr.Texture

	m.SetImagerySource(ImagerySatellite)
	if tr.Texture != 0 {
		t.Errorf("imagery texture kept across source switch")
	}
	if !fr.deleted[tex] {
		t.Errorf("old imagery texture not released")
	}
	if len(tr.Elevation) == 0 {
		t.Errorf("terrain data dropped on imagery switch")
	}

	m.CycleImagerySource()
	if m.ImagerySource() != ImageryStreet {
		t.Errorf("source after cycle = %v", m.ImagerySource())
	}
	m.CycleImagerySource()
	if m.ImagerySource() != ImageryNone {
		t.Errorf("source after second cycle = %v", m.ImagerySource())
	}
}

// managerBackend is a compute backend that reports every cell covered.
type managerBackend struct {
	rows, cols int
}

func (f *managerBackend) UploadElevation(elevation []float32, rows, cols int) {
	f.rows, f.cols = rows, cols
}
func (f *managerBackend) ClearMergeTargets()                                              {}
func (f *managerBackend) DispatchRows(job viewshed.NodeJob, cellMeters float32, o, n int) {}
func (f *managerBackend) DispatchMerge()                                                  {}
func (f *managerBackend) PlaceFence()                                                     {}
func (f *managerBackend) FenceSignaled() bool                                             { return true }
func (f *managerBackend) WaitFence()                                                      {}

func (f *managerBackend) ReadBack() ([]uint8, []float32, []uint8) {
	n := f.rows * f.cols
	vis := make([]uint8, n)
	sig := make([]float32, n)
	overlap := make([]uint8, n)
	for i := range vis {
		vis[i] = 1
		sig[i] = -70
		overlap[i] = 1
	}
	return vis, sig, overlap
}

func TestManagerGPUViewshed(t *testing.T) {
	m, _ := testManager(t)
	loadTerrain(t, m)

	gpu := viewshed.NewGPUViewshed(&managerBackend{}, log.New("warn", t.TempDir()))
	node := scene.Node{Lat: 39.5, Lon: -104.5}
	node.ApplyDefaults()
	nodes := []scene.Node{node}

	m.KickViewshedGPU(nodes, gpu)
	if !m.ViewshedActive() {
		t.Fatal("pass not active after kick")
	}

	for i := 0; m.ViewshedActive(); i++ {
		if i > 100 {
			t.Fatal("per-tile pass did not finish")
		}
		m.PollViewshedGPU(nodes, gpu)
	}

	tr, _ := m.Cache().Get(Coord{Z: ZoomHGT, X: -105, Y: 39})
	if len(tr.Viewshed) != 9 {
		t.Fatalf("viewshed size %d", len(tr.Viewshed))
	}
	for i, v := range tr.Viewshed {
		if v != 1 {
			t.Errorf("cell %d not covered", i)
		}
		if tr.Signal[i] != -70 {
			t.Errorf("cell %d signal %g", i, tr.Signal[i])
		}
	}
	if !tr.OverlayTexValid {
		t.Errorf("overlay textures not uploaded")
	}
}

func TestManagerGPUViewshedSkipsEvictedTile(t *testing.T) {
	m, _ := testManager(t)

	coords := []Coord{{Z: ZoomHGT, X: -105, Y: 39}, {Z: ZoomHGT, X: -104, Y: 39}}
	p := elevationProvider()
	p.tiles = coords
	m.SetBounds(managerBounds)
	m.SetElevationProvider(p)
	waitFor(t, "terrain", func() bool {
		m.Update()
		return m.HasTerrain()
	})

	gpu := viewshed.NewGPUViewshed(&managerBackend{}, log.New("warn", t.TempDir()))
	node := scene.Node{Lat: 39.5, Lon: -104.5}
	node.ApplyDefaults()
	nodes := []scene.Node{node}

	m.KickViewshedGPU(nodes, gpu)
	if !m.ViewshedActive() {
		t.Fatal("pass not active after kick")
	}

	// The queued second tile disappears mid-pass; the pass must skip
	// it and still finish.
	evicted := m.vsTiles[1]
	m.Cache().Evict(evicted)

	for i := 0; m.ViewshedActive(); i++ {
		if i > 100 {
			t.Fatal("per-tile pass did not finish")
		}
		m.PollViewshedGPU(nodes, gpu)
	}

	first, ok := m.Cache().Get(m.vsTiles[0])
	if !ok {
		t.Fatal("first tile missing")
	}
	if len(first.Viewshed) != 9 || !first.OverlayTexValid {
		t.Errorf("first tile overlays not applied: %d cells, valid=%v",
			len(first.Viewshed), first.OverlayTexValid)
	}
}

type dynamicStub struct {
	stubProvider
}

func (p *dynamicStub) TilesInView(lat, lon float64) []Coord { return p.tiles }

func TestManagerDynamicUpdate(t *testing.T) {
	m, _ := testManager(t)

	p := &dynamicStub{stubProvider: *elevationProvider()}
	m.SetDynamicProvider(p)

	coord := p.tiles[0]
	waitFor(t, "dynamic tile", func() bool {
		m.UpdateDynamic(39.5, -104.5)
		return m.Cache().Has(coord)
	})

	if !m.HasTerrain() {
		t.Errorf("terrain not reported resident")
	}
	if m.Bounds() != TileBounds(coord) {
		t.Errorf("bounds = %+v", m.Bounds())
	}

	n := 0
	m.ForEachVisible(func(*Renderable) { n++ })
	if n != 1 {
		t.Errorf("visible tiles = %d", n)
	}
}

func TestManagerClear(t *testing.T) {
	m, _ := testManager(t)
	loadTerrain(t, m)

	m.Clear()
	if m.Cache().Len() != 0 {
		t.Errorf("cache not emptied")
	}
	if m.HasTerrain() {
		t.Errorf("terrain still reported after Clear")
	}
}
