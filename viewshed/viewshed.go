// viewshed/viewshed.go
// Copyright(c) 2024-2026 radioscape contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package viewshed computes radio line-of-sight coverage and received
// signal strength over elevation grids, on the CPU or incrementally on
// the GPU.
package viewshed

import (
	"math"

	"github.com/radioscape/radioscape/geo"
	"github.com/radioscape/radioscape/scene"
	"github.com/radioscape/radioscape/util"
)

// NoSignal is the sentinel stored in signal grids where no value has
// been computed.
const NoSignal = -999.0

// nearFieldSignal is assigned to the node's own cell, where the far
// field FSPL model does not apply.
const nearFieldSignal = -60.0

// earthCurveFactor is 1 / (2 k Re) with k the standard 4/3 effective
// earth radius factor.
const earthCurveFactor = 1.0 / (2.0 * (4.0 / 3.0) * 6371000.0)

// Result holds the per-cell outputs of a viewshed computation.
type Result struct {
	Visibility []uint8   // 0 or 1
	Signal     []float32 // dBm, NoSignal where undefined
	Rows, Cols int
}

// Compute runs the line-of-sight and signal model for one node over an
// elevation grid. The node may sit off-grid, on an adjacent composite
// tile; only its ground elevation read is clamped to the grid.
//
// For each target cell the path is marched toward the node, tracking
// the single dominant obstruction above the curvature-corrected sight
// line (Deygout). Received power is EIRP minus free-space path loss
// minus ITU-R P.526 knife-edge diffraction loss; a cell is visible
// when that is at or above the node's receiver sensitivity.
func Compute(elevation []float32, rows, cols int, bounds geo.Bounds, node *scene.Node) Result {
	total := rows * cols
	res := Result{
		Visibility: make([]uint8, total),
		Signal:     make([]float32, total),
		Rows:       rows,
		Cols:       cols,
	}
	for i := range res.Signal {
		res.Signal[i] = NoSignal
	}
	if total == 0 || rows < 2 || cols < 2 {
		return res
	}

	latRes := (bounds.MaxLat - bounds.MinLat) / float64(rows-1)
	lonRes := (bounds.MaxLon - bounds.MinLon) / float64(cols-1)

	// Round to the nearest cell: a node placed exactly on a grid point
	// must land on it even when the division comes out at 49.999...
	nr := int(math.Round((bounds.MaxLat - node.Lat) / latRes))
	nc := int(math.Round((node.Lon - bounds.MinLon) / lonRes))

	nrElev := util.Clamp(nr, 0, rows-1)
	ncElev := util.Clamp(nc, 0, cols-1)
	nodeElev := elevation[nrElev*cols+ncElev]

	antennaH := node.AntennaHeightM
	if antennaH < 1 {
		antennaH = scene.DefaultAntennaHeightM
	}
	obsH := nodeElev + antennaH

	// Cell size in meters, averaged between the lat and lon extents;
	// about 30 m for SRTM1 at mid latitudes.
	centerLat := (bounds.MinLat + bounds.MaxLat) / 2
	cellMLat := latRes * geo.MetersPerDegreeLat
	cellMLon := lonRes * geo.MetersPerDegreeLon(centerLat)
	cellM := float32((cellMLat + cellMLon) / 2)

	txPower := node.TxPowerDbm
	if txPower <= 0 {
		txPower = scene.DefaultTxPowerDbm
	}
	freqMHz := node.FrequencyMHz
	if freqMHz <= 0 {
		freqMHz = scene.DefaultFrequencyMHz
	}
	rxSens := node.RxSensitivityDbm
	if rxSens >= 0 {
		rxSens = scene.DefaultRxSensitivityDbm
	}
	eirp := txPower + node.AntennaGainDbi - node.CableLossDb

	// Range is the full grid diagonal; the loss model provides the
	// effective cutoff, not an artificial radius.
	maxRangeCells := float32(math.Sqrt(float64(rows*rows + cols*cols)))

	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			dr, dc := r-nr, c-nc
			distCells := float32(math.Sqrt(float64(dr*dr + dc*dc)))

			if distCells < 0.5 {
				res.Visibility[r*cols+c] = 1
				res.Signal[r*cols+c] = nearFieldSignal
				continue
			}
			if distCells > maxRangeCells {
				continue
			}

			steps := int(distCells*1.5) + 1
			targetElev := elevation[r*cols+c]
			dTotal := distCells * cellM

			// Largest positive violation of the sight line and the
			// path fraction where it occurs.
			var maxViolation, bestT float32
			for s := 1; s < steps; s++ {
				t := float32(s) / float32(steps)
				si := int(float32(nr) + float32(dr)*t)
				sj := int(float32(nc) + float32(dc)*t)
				if si < 0 || si >= rows || sj < 0 || sj >= cols {
					continue
				}

				dAlong := dTotal * t
				dRemain := dTotal * (1 - t)
				earthCurve := dAlong * dRemain * earthCurveFactor
				neededH := obsH + (targetElev-obsH)*t - earthCurve
				if v := elevation[si*cols+sj] - neededH; v > maxViolation {
					maxViolation = v
					bestT = t
				}
			}

			distKm := dTotal / 1000
			if distKm < 0.01 {
				distKm = 0.01
			}
			fspl := 20*log10(distKm) + 20*log10(freqMHz) + 32.44

			var diffLoss float32
			if maxViolation > 0 {
				lambda := 299.792458 / freqMHz
				d1 := dTotal * bestT
				d2 := dTotal * (1 - bestT)
				dHarmonic := d1 * d2 / (d1 + d2)
				v := maxViolation * float32(math.Sqrt(float64(2/(lambda*dHarmonic))))
				if v > -0.78 {
					diffLoss = 6.9 + 20*log10(float32(math.Sqrt(float64((v-0.1)*(v-0.1)+1)))+v-0.1)
				}
			}

			received := eirp - fspl - diffLoss
			if received >= rxSens {
				res.Visibility[r*cols+c] = 1
			}
			res.Signal[r*cols+c] = received
		}
	}

	return res
}

// Merged holds multi-node results: visibility OR'd across nodes,
// signal the per-cell maximum, and a per-cell count of covering nodes.
type Merged struct {
	Visibility []uint8
	Signal     []float32
	Overlap    []uint8
	Rows, Cols int
}

// NewMerged returns a cleared accumulator for a rows x cols grid.
func NewMerged(rows, cols int) *Merged {
	m := &Merged{
		Visibility: make([]uint8, rows*cols),
		Signal:     make([]float32, rows*cols),
		Overlap:    make([]uint8, rows*cols),
		Rows:       rows,
		Cols:       cols,
	}
	for i := range m.Signal {
		m.Signal[i] = NoSignal
	}
	return m
}

// Accumulate merges one node's result into the accumulator.
func (m *Merged) Accumulate(r Result) {
	for i, v := range r.Visibility {
		if v != 0 {
			m.Visibility[i] = 1
			m.Overlap[i]++
			if r.Signal[i] > m.Signal[i] {
				m.Signal[i] = r.Signal[i]
			}
		}
	}
}

// ComputeMerged runs Compute for every node and merges the results.
func ComputeMerged(elevation []float32, rows, cols int, bounds geo.Bounds, nodes []scene.Node) *Merged {
	m := NewMerged(rows, cols)
	for i := range nodes {
		m.Accumulate(Compute(elevation, rows, cols, bounds, &nodes[i]))
	}
	return m
}

func log10(v float32) float32 {
	return float32(math.Log10(float64(v)))
}
