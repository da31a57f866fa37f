// tile/composite.go
// Copyright(c) 2024-2026 radioscape contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package tile

import "github.com/radioscape/radioscape/geo"

// CompositeElevation is a center tile's elevation grid expanded with
// whatever same-resolution neighbors are resident in the cache, so a
// viewshed ray can march past the center tile's edges. The center
// occupies a sub-rectangle of the grid recorded by the Center* fields.
type CompositeElevation struct {
	Data       []float32
	Bounds     geo.Bounds
	Rows, Cols int

	CenterRowStart, CenterColStart int
	CenterRows, CenterCols         int
}

// BuildCompositeElevation assembles the 3x3 neighborhood of center from
// the cache. Only neighbors matching the center's grid resolution
// participate, and the grid expands only toward directions where at
// least one neighbor exists. Grid row 0 is geographic north; HGT and
// DSM coordinates count y northward while slippy map tiles count y
// southward, so the y offset flips sign between the two schemes.
func BuildCompositeElevation(center *Renderable, cache *Cache) CompositeElevation {
	cr, cc := center.ElevRows, center.ElevCols
	ce := CompositeElevation{CenterRows: cr, CenterCols: cc}

	var nb [3][3]*Renderable
	nb[1][1] = center
	northUp := center.Coord.Z < 0

	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dy == 0 && dx == 0 {
				continue
			}
			nc := Coord{Z: center.Coord.Z, X: center.Coord.X + dx, Y: center.Coord.Y + dy}
			n, ok := cache.Get(nc)
			if !ok || n.ElevRows != cr || n.ElevCols != cc || len(n.Elevation) == 0 {
				continue
			}
			gr := 1 + dy
			if northUp {
				gr = 1 - dy
			}
			nb[gr][dx+1] = n
		}
	}

	topRows, bottomRows, leftCols, rightCols := 0, 0, 0, 0
	if nb[0][0] != nil || nb[0][1] != nil || nb[0][2] != nil {
		topRows = cr
	}
	if nb[2][0] != nil || nb[2][1] != nil || nb[2][2] != nil {
		bottomRows = cr
	}
	if nb[0][0] != nil || nb[1][0] != nil || nb[2][0] != nil {
		leftCols = cc
	}
	if nb[0][2] != nil || nb[1][2] != nil || nb[2][2] != nil {
		rightCols = cc
	}

	ce.Rows = topRows + cr + bottomRows
	ce.Cols = leftCols + cc + rightCols
	ce.CenterRowStart = topRows
	ce.CenterColStart = leftCols
	ce.Data = make([]float32, ce.Rows*ce.Cols)

	for gr := 0; gr < 3; gr++ {
		for gc := 0; gc < 3; gc++ {
			n := nb[gr][gc]
			if n == nil {
				continue
			}
			dstR := 0
			if gr == 1 {
				dstR = topRows
			} else if gr == 2 {
				dstR = topRows + cr
			}
			dstC := 0
			if gc == 1 {
				dstC = leftCols
			} else if gc == 2 {
				dstC = leftCols + cc
			}
			for r := 0; r < cr; r++ {
				copy(ce.Data[(dstR+r)*ce.Cols+dstC:], n.Elevation[r*cc:(r+1)*cc])
			}
		}
	}

	latSpan := center.Bounds.MaxLat - center.Bounds.MinLat
	lonSpan := center.Bounds.MaxLon - center.Bounds.MinLon
	ce.Bounds = center.Bounds
	if topRows > 0 {
		ce.Bounds.MaxLat += latSpan
	}
	if bottomRows > 0 {
		ce.Bounds.MinLat -= latSpan
	}
	if leftCols > 0 {
		ce.Bounds.MinLon -= lonSpan
	}
	if rightCols > 0 {
		ce.Bounds.MaxLon += lonSpan
	}
	return ce
}

// ExtractCenterResults pulls the center tile's sub-rectangle out of
// composite-grid visibility and signal results.
func (ce *CompositeElevation) ExtractCenterResults(compVis []uint8, compSig []float32) ([]uint8, []float32) {
	vis := make([]uint8, ce.CenterRows*ce.CenterCols)
	sig := make([]float32, ce.CenterRows*ce.CenterCols)
	for r := 0; r < ce.CenterRows; r++ {
		srcOff := (ce.CenterRowStart+r)*ce.Cols + ce.CenterColStart
		dstOff := r * ce.CenterCols
		copy(vis[dstOff:dstOff+ce.CenterCols], compVis[srcOff:])
		copy(sig[dstOff:dstOff+ce.CenterCols], compSig[srcOff:])
	}
	return vis, sig
}
