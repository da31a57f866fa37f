// viewshed/gpu_test.go
// Copyright(c) 2024-2026 radioscape contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package viewshed

import (
	"fmt"
	"testing"

	"github.com/radioscape/radioscape/geo"
	"github.com/radioscape/radioscape/log"
	"github.com/radioscape/radioscape/scene"
)

// fakeBackend records the dispatch sequence and lets tests control
// when fences appear signaled.
type fakeBackend struct {
	ops        []string
	rows, cols int
	signaled   bool
}

func (f *fakeBackend) UploadElevation(elevation []float32, rows, cols int) {
	f.rows, f.cols = rows, cols
	f.ops = append(f.ops, fmt.Sprintf("upload %dx%d", rows, cols))
}

func (f *fakeBackend) ClearMergeTargets() {
	f.ops = append(f.ops, "clear")
}

func (f *fakeBackend) DispatchRows(job NodeJob, cellMeters float32, rowOffset, rowCount int) {
	f.ops = append(f.ops, fmt.Sprintf("rows %d+%d", rowOffset, rowCount))
}

func (f *fakeBackend) DispatchMerge() {
	f.ops = append(f.ops, "merge")
}

func (f *fakeBackend) PlaceFence()         { f.ops = append(f.ops, "fence") }
func (f *fakeBackend) FenceSignaled() bool { return f.signaled }
func (f *fakeBackend) WaitFence()          {}

func (f *fakeBackend) ReadBack() ([]uint8, []float32, []uint8) {
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

func testNodes(b geo.Bounds, n int) []scene.Node {
	lat, lon := b.Center()
	nodes := make([]scene.Node, n)
	for i := range nodes {
		nodes[i] = scene.Node{Lat: lat, Lon: lon}
		nodes[i].ApplyDefaults()
	}
	return nodes
}

func TestGPUViewshedSequencing(t *testing.T) {
	const rows, cols = 300, 64
	b := geo.Bounds{MinLat: 39, MinLon: -105, MaxLat: 39.08, MaxLon: -104.98}
	elev := make([]float32, rows*cols)
	lg := log.New("warn", t.TempDir())

	fake := &fakeBackend{signaled: true}
	g := NewGPUViewshed(fake, lg)

	g.Kick(testNodes(b, 2), elev, rows, cols, b)
	if g.State() != Dispatched {
		t.Fatalf("state after Kick = %v", g.State())
	}

	for i := 0; g.State() == Dispatched; i++ {
		if i > 100 {
			t.Fatalf("state machine did not converge")
		}
		g.Poll()
	}
	if g.State() != Ready {
		t.Fatalf("final state = %v", g.State())
	}

	// 300 rows at a 128-row band size is 3 bands per node, then a
	// merge, repeated for both nodes.
	want := []string{
		"upload 300x64", "clear",
		"rows 0+128", "fence", "rows 128+128", "fence", "rows 256+44", "fence",
		"merge", "fence",
		"rows 0+128", "fence", "rows 128+128", "fence", "rows 256+44", "fence",
		"merge", "fence",
	}
	if len(fake.ops) != len(want) {
		t.Fatalf("ops = %v", fake.ops)
	}
	for i := range want {
		if fake.ops[i] != want[i] {
			t.Errorf("op %d = %q, want %q", i, fake.ops[i], want[i])
		}
	}

	if nb := bandCount(rows); nb != 3 {
		t.Errorf("bandCount(%d) = %d, want 3", rows, nb)
	}
}

func TestGPUViewshedFencePending(t *testing.T) {
	const rows, cols = 64, 64
	b := geo.Bounds{MinLat: 39, MinLon: -105, MaxLat: 39.02, MaxLon: -104.98}
	lg := log.New("warn", t.TempDir())

	fake := &fakeBackend{signaled: false}
	g := NewGPUViewshed(fake, lg)
	g.Kick(testNodes(b, 1), make([]float32, rows*cols), rows, cols, b)

	before := len(fake.ops)
	for i := 0; i < 5; i++ {
		if got := g.Poll(); got != Dispatched {
			t.Fatalf("Poll with pending fence = %v", got)
		}
	}
	if len(fake.ops) != before {
		t.Errorf("work dispatched while fence pending: %v", fake.ops[before:])
	}

	fake.signaled = true
	for g.Poll() == Dispatched {
	}
	if g.State() != Ready {
		t.Errorf("state = %v after fence signaled", g.State())
	}
}

func TestGPUViewshedReadBack(t *testing.T) {
	const rows, cols = 32, 16
	b := geo.Bounds{MinLat: 39, MinLon: -105, MaxLat: 39.01, MaxLon: -104.99}
	lg := log.New("warn", t.TempDir())

	g := NewGPUViewshed(&fakeBackend{signaled: true}, lg)

	if m := g.ReadBack(); m != nil {
		t.Fatalf("ReadBack before Kick returned %v", m)
	}

	m := g.ComputeAll(testNodes(b, 1), make([]float32, rows*cols), rows, cols, b)
	if m == nil {
		t.Fatal("ComputeAll returned nil")
	}
	if m.Rows != rows || m.Cols != cols {
		t.Errorf("result dims %dx%d", m.Rows, m.Cols)
	}
	if g.State() != Idle {
		t.Errorf("state after ReadBack = %v", g.State())
	}
}

func TestGPUViewshedNoNodes(t *testing.T) {
	const rows, cols = 16, 16
	b := geo.Bounds{MinLat: 39, MinLon: -105, MaxLat: 39.01, MaxLon: -104.99}
	lg := log.New("warn", t.TempDir())

	g := NewGPUViewshed(&fakeBackend{signaled: true}, lg)
	g.Kick(nil, make([]float32, rows*cols), rows, cols, b)
	if g.State() != Ready {
		t.Fatalf("state with no nodes = %v", g.State())
	}
	if m := g.ReadBack(); m == nil {
		t.Error("expected cleared result grids")
	}
}

func TestBuildJobsNodeCell(t *testing.T) {
	elev, rows, cols, b := testGrid()
	cell := CellMeters(b, rows, cols)
	for _, rc := range [][2]int{{0, 0}, {50, 50}, {33, 67}, {100, 100}} {
		node := nodeAtCell(b, rows, cols, rc[0], rc[1])
		jobs := BuildJobs([]scene.Node{node}, elev, rows, cols, b, cell)
		if len(jobs) != 1 {
			t.Fatalf("len(jobs) = %d", len(jobs))
		}
		if jobs[0].Row != rc[0] || jobs[0].Col != rc[1] {
			t.Errorf("node at (%d,%d) mapped to (%d,%d)",
				rc[0], rc[1], jobs[0].Row, jobs[0].Col)
		}
	}
}

func TestBuildJobsDefaults(t *testing.T) {
	const rows, cols = 16, 16
	b := geo.Bounds{MinLat: 39, MinLon: -105, MaxLat: 39.01, MaxLon: -104.99}
	elev := make([]float32, rows*cols)
	for i := range elev {
		elev[i] = 100
	}

	lat, lon := b.Center()
	nodes := []scene.Node{{Lat: lat, Lon: lon}} // all hardware fields unset
	cell := CellMeters(b, rows, cols)
	jobs := BuildJobs(nodes, elev, rows, cols, b, cell)

	if len(jobs) != 1 {
		t.Fatalf("len(jobs) = %d", len(jobs))
	}
	j := jobs[0]
	if j.ObserverHeight != 100+scene.DefaultAntennaHeightM {
		t.Errorf("observer height = %g", j.ObserverHeight)
	}
	if j.TxPowerDbm != scene.DefaultTxPowerDbm || j.FreqMHz != scene.DefaultFrequencyMHz ||
		j.RxSensDbm != scene.DefaultRxSensitivityDbm {
		t.Errorf("defaults not applied: %+v", j)
	}
	wantRange := int(5 * 1000 / cell)
	if j.MaxRangeCells != wantRange {
		t.Errorf("max range cells = %d, want %d", j.MaxRangeCells, wantRange)
	}
}
