// viewshed/viewshed_test.go
// Copyright(c) 2024-2026 radioscape contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package viewshed

import (
	"math"
	"testing"

	"github.com/radioscape/radioscape/geo"
	"github.com/radioscape/radioscape/scene"
)

// 101x101 grid over roughly 3x2.5 km; cells are around 30 m.
func testGrid() ([]float32, int, int, geo.Bounds) {
	const rows, cols = 101, 101
	b := geo.Bounds{MinLat: 39, MinLon: -105, MaxLat: 39.027, MaxLon: -104.973}
	return make([]float32, rows*cols), rows, cols, b
}

func nodeAtCell(b geo.Bounds, rows, cols, r, c int) scene.Node {
	latRes := (b.MaxLat - b.MinLat) / float64(rows-1)
	lonRes := (b.MaxLon - b.MinLon) / float64(cols-1)
	n := scene.Node{
		Lat: b.MaxLat - float64(r)*latRes,
		Lon: b.MinLon + float64(c)*lonRes,
	}
	n.ApplyDefaults()
	return n
}

func TestComputeNodeCellRounding(t *testing.T) {
	// Nodes placed exactly on a grid point must map to that cell even
	// when the lat/lon division lands just below the integer; the cell
	// then gets the near-field assignment rather than far-field loss.
	elev, rows, cols, b := testGrid()
	for _, rc := range [][2]int{{0, 0}, {33, 67}, {50, 50}, {99, 1}, {100, 100}} {
		node := nodeAtCell(b, rows, cols, rc[0], rc[1])
		res := Compute(elev, rows, cols, b, &node)
		i := rc[0]*cols + rc[1]
		if res.Visibility[i] != 1 || res.Signal[i] != nearFieldSignal {
			t.Errorf("cell (%d,%d): vis=%d signal=%v, want near field",
				rc[0], rc[1], res.Visibility[i], res.Signal[i])
		}
	}
}

func TestComputeNearField(t *testing.T) {
	elev, rows, cols, b := testGrid()
	node := nodeAtCell(b, rows, cols, 50, 50)

	res := Compute(elev, rows, cols, b, &node)

	i := 50*cols + 50
	if res.Visibility[i] != 1 {
		t.Errorf("node cell not visible")
	}
	if res.Signal[i] != nearFieldSignal {
		t.Errorf("node cell signal = %g, want %g", res.Signal[i], float32(nearFieldSignal))
	}
}

func TestComputeFlatTerrainVisible(t *testing.T) {
	elev, rows, cols, b := testGrid()
	node := nodeAtCell(b, rows, cols, 50, 50)

	res := Compute(elev, rows, cols, b, &node)

	for _, rc := range [][2]int{{50, 90}, {10, 50}, {90, 90}, {0, 0}} {
		if res.Visibility[rc[0]*cols+rc[1]] != 1 {
			t.Errorf("cell (%d,%d) not visible on flat terrain", rc[0], rc[1])
		}
	}
}

func TestComputeFlatFalloff(t *testing.T) {
	elev, rows, cols, b := testGrid()
	node := nodeAtCell(b, rows, cols, 50, 50)

	res := Compute(elev, rows, cols, b, &node)

	// Signal decreases monotonically moving east from the node.
	prev := res.Signal[50*cols+52]
	for c := 53; c < cols; c++ {
		s := res.Signal[50*cols+c]
		if s >= prev {
			t.Fatalf("signal at col %d (%g) not below col %d (%g)", c, s, c-1, prev)
		}
		prev = s
	}
}

func TestComputeSignalIsFreeSpace(t *testing.T) {
	elev, rows, cols, b := testGrid()
	node := nodeAtCell(b, rows, cols, 50, 50)

	res := Compute(elev, rows, cols, b, &node)

	// With no obstruction the received level is EIRP minus free-space
	// loss. Recreate the geometry for a cell 10 columns east.
	latRes := (b.MaxLat - b.MinLat) / float64(rows-1)
	lonRes := (b.MaxLon - b.MinLon) / float64(cols-1)
	centerLat := (b.MinLat + b.MaxLat) / 2
	cellM := (latRes*geo.MetersPerDegreeLat + lonRes*geo.MetersPerDegreeLon(centerLat)) / 2

	distKm := math.Max(10*cellM/1000, 0.01)
	fspl := 20*math.Log10(distKm) + 20*math.Log10(scene.DefaultFrequencyMHz) + 32.44
	want := float64(node.EIRP()) - fspl

	got := float64(res.Signal[50*cols+60])
	if math.Abs(got-want) > 0.1 {
		t.Errorf("signal 10 cells east = %.2f dBm, want %.2f", got, want)
	}
}

func TestComputeWallOcclusion(t *testing.T) {
	elev, rows, cols, b := testGrid()

	// A 200 m wall five columns east of the node.
	for r := 0; r < rows; r++ {
		elev[r*cols+55] = 200
	}

	node := nodeAtCell(b, rows, cols, 50, 50)
	node.RxSensitivityDbm = -100

	res := Compute(elev, rows, cols, b, &node)

	if res.Visibility[50*cols+53] != 1 {
		t.Errorf("cell before the wall should be visible")
	}
	if res.Visibility[50*cols+90] != 0 {
		t.Errorf("cell far beyond the wall should be shadowed")
	}
	// Diffraction loss shows up in the signal even where shadowed.
	clear := res.Signal[50*cols+45]
	shadowed := res.Signal[50*cols+90]
	if shadowed >= clear {
		t.Errorf("shadowed signal %g not below clear-path signal %g", shadowed, clear)
	}
}

func TestComputeDegenerateGrid(t *testing.T) {
	node := scene.Node{Lat: 39, Lon: -105}
	res := Compute(nil, 0, 0, geo.Bounds{}, &node)
	if len(res.Visibility) != 0 {
		t.Errorf("expected empty result for empty grid")
	}

	res = Compute(make([]float32, 5), 1, 5, geo.Bounds{MinLat: 39, MaxLat: 40, MinLon: -105, MaxLon: -104}, &node)
	for i, v := range res.Visibility {
		if v != 0 {
			t.Errorf("cell %d visible in single-row grid", i)
		}
	}
}

func TestMergedAccumulate(t *testing.T) {
	elev, rows, cols, b := testGrid()
	nodes := []scene.Node{
		nodeAtCell(b, rows, cols, 50, 30),
		nodeAtCell(b, rows, cols, 50, 70),
	}

	m := ComputeMerged(elev, rows, cols, b, nodes)

	mid := 50*cols + 50
	if m.Visibility[mid] != 1 {
		t.Fatalf("midpoint not covered")
	}
	if m.Overlap[mid] != 2 {
		t.Errorf("midpoint overlap = %d, want 2", m.Overlap[mid])
	}

	// The merged signal is the stronger of the two nodes.
	a := Compute(elev, rows, cols, b, &nodes[0])
	bb := Compute(elev, rows, cols, b, &nodes[1])
	want := max(a.Signal[mid], bb.Signal[mid])
	if m.Signal[mid] != want {
		t.Errorf("merged signal %g, want %g", m.Signal[mid], want)
	}

	// A cell near node 0 only.
	near := 50*cols + 31
	if m.Overlap[near] < 1 {
		t.Errorf("cell near node 0 not covered")
	}
}

func TestMergedUncoveredCells(t *testing.T) {
	m := NewMerged(4, 4)
	for i := range m.Signal {
		if m.Signal[i] != NoSignal {
			t.Fatalf("uncovered signal = %g, want %g", m.Signal[i], float32(NoSignal))
		}
	}
	if m.Rows != 4 || m.Cols != 4 {
		t.Errorf("dims %dx%d", m.Rows, m.Cols)
	}
}
