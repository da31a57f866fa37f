// viewshed/gpu.go
// Copyright(c) 2024-2026 radioscape contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package viewshed

import (
	"math"

	"github.com/radioscape/radioscape/geo"
	"github.com/radioscape/radioscape/log"
	"github.com/radioscape/radioscape/scene"
	"github.com/radioscape/radioscape/util"
)

// State of the chunked GPU computation.
type State int

const (
	Idle State = iota
	Dispatched
	Ready
)

func (s State) String() string {
	return [...]string{"idle", "dispatched", "ready"}[s]
}

// rowBandSize is how many grid rows one dispatch covers. A full-grid
// pass for all nodes can take longer than a frame; banding it keeps
// each dispatch short enough that the per-frame fence poll makes
// steady progress without stalling rendering.
const rowBandSize = 128

// NodeJob is the precomputed per-node work item: the node mapped to a
// grid cell, with its observer height and radio parameters resolved.
// Heights come from the CPU-side elevation grid so dispatching never
// reads back from the GPU.
type NodeJob struct {
	Row, Col       int
	ObserverHeight float32
	MaxRangeCells  int
	TxPowerDbm     float32
	AntennaGainDbi float32
	CableLossDb    float32
	RxSensDbm      float32
	FreqMHz        float32
}

// ComputeBackend is the GPU surface the state machine drives. The GL
// implementation is in glbackend.go; tests substitute a fake.
type ComputeBackend interface {
	// UploadElevation sizes the working textures for a rows x cols
	// grid and uploads the elevation samples.
	UploadElevation(elevation []float32, rows, cols int)

	// ClearMergeTargets zeroes visibility and overlap and fills signal
	// with NoSignal.
	ClearMergeTargets()

	// DispatchRows runs the propagation pass for one node over grid
	// rows [rowOffset, rowOffset+rowCount).
	DispatchRows(job NodeJob, cellMeters float32, rowOffset, rowCount int)

	// DispatchMerge folds the node's scratch results into the merge
	// accumulators.
	DispatchMerge()

	// PlaceFence inserts a fence after the commands issued so far.
	PlaceFence()

	// FenceSignaled polls the fence with zero timeout.
	FenceSignaled() bool

	// WaitFence blocks until the fence signals.
	WaitFence()

	// ReadBack returns the merged visibility, signal, and overlap
	// grids.
	ReadBack() (vis []uint8, sig []float32, overlap []uint8)
}

// GPUViewshed spreads a multi-node viewshed across frames: Kick
// dispatches the first row band and places a fence, then each frame's
// Poll either finds the fence still pending or advances the state
// machine one step: next band, then the node's merge pass, then the
// next node, until all nodes are merged and the results can be read
// back.
type GPUViewshed struct {
	backend ComputeBackend
	lg      *log.Logger

	state      State
	jobs       []NodeJob
	jobIndex   int
	rowOffset  int
	inMerge    bool
	rows, cols int
	cellMeters float32
}

func NewGPUViewshed(backend ComputeBackend, lg *log.Logger) *GPUViewshed {
	return &GPUViewshed{backend: backend, lg: lg}
}

func (g *GPUViewshed) State() State { return g.state }

// BuildJobs resolves nodes against the CPU elevation grid.
func BuildJobs(nodes []scene.Node, elevation []float32, rows, cols int,
	bounds geo.Bounds, cellMeters float32) []NodeJob {
	latRes := (bounds.MaxLat - bounds.MinLat) / float64(rows-1)
	lonRes := (bounds.MaxLon - bounds.MinLon) / float64(cols-1)

	jobs := make([]NodeJob, 0, len(nodes))
	for i := range nodes {
		n := &nodes[i]
		nr := util.Clamp(int(math.Round((bounds.MaxLat-n.Lat)/latRes)), 0, rows-1)
		nc := util.Clamp(int(math.Round((n.Lon-bounds.MinLon)/lonRes)), 0, cols-1)

		antennaH := n.AntennaHeightM
		if antennaH < 1 {
			antennaH = scene.DefaultAntennaHeightM
		}
		maxRangeKm := n.MaxRangeKm
		if maxRangeKm <= 0 {
			maxRangeKm = 5
		}
		txPower := n.TxPowerDbm
		if txPower <= 0 {
			txPower = scene.DefaultTxPowerDbm
		}
		freq := n.FrequencyMHz
		if freq <= 0 {
			freq = scene.DefaultFrequencyMHz
		}
		rxSens := n.RxSensitivityDbm
		if rxSens >= 0 {
			rxSens = scene.DefaultRxSensitivityDbm
		}

		jobs = append(jobs, NodeJob{
			Row:            nr,
			Col:            nc,
			ObserverHeight: elevation[nr*cols+nc] + antennaH,
			MaxRangeCells:  max(int(maxRangeKm*1000/cellMeters), 1),
			TxPowerDbm:     txPower,
			AntennaGainDbi: n.AntennaGainDbi,
			CableLossDb:    n.CableLossDb,
			RxSensDbm:      rxSens,
			FreqMHz:        freq,
		})
	}
	return jobs
}

// CellMeters returns the average cell size in meters for a grid.
func CellMeters(bounds geo.Bounds, rows, cols int) float32 {
	latRes := (bounds.MaxLat - bounds.MinLat) / float64(rows-1)
	lonRes := (bounds.MaxLon - bounds.MinLon) / float64(cols-1)
	centerLat := (bounds.MinLat + bounds.MaxLat) / 2
	return float32((latRes*geo.MetersPerDegreeLat +
		lonRes*geo.MetersPerDegreeLon(centerLat)) / 2)
}

// Kick starts a new computation. Any in-progress one is abandoned.
func (g *GPUViewshed) Kick(nodes []scene.Node, elevation []float32, rows, cols int,
	bounds geo.Bounds) {
	if rows < 2 || cols < 2 || len(elevation) != rows*cols {
		g.state = Idle
		return
	}

	g.rows, g.cols = rows, cols
	g.cellMeters = CellMeters(bounds, rows, cols)
	g.jobs = BuildJobs(nodes, elevation, rows, cols, bounds, g.cellMeters)

	g.backend.UploadElevation(elevation, rows, cols)
	g.backend.ClearMergeTargets()

	if len(g.jobs) == 0 {
		// Nothing to compute; the cleared targets are the result.
		g.state = Ready
		return
	}

	g.jobIndex = 0
	g.rowOffset = 0
	g.inMerge = false
	g.dispatchBand()
	g.state = Dispatched
}

func (g *GPUViewshed) dispatchBand() {
	count := min(rowBandSize, g.rows-g.rowOffset)
	g.backend.DispatchRows(g.jobs[g.jobIndex], g.cellMeters, g.rowOffset, count)
	g.backend.PlaceFence()
}

// Poll advances the state machine at most one step; it never blocks.
// Call once per frame while state is Dispatched.
func (g *GPUViewshed) Poll() State {
	if g.state != Dispatched {
		return g.state
	}
	if !g.backend.FenceSignaled() {
		return Dispatched
	}

	if g.inMerge {
		// This node is fully merged; move on.
		g.jobIndex++
		if g.jobIndex >= len(g.jobs) {
			g.state = Ready
			return Ready
		}
		g.inMerge = false
		g.rowOffset = 0
		g.dispatchBand()
		return Dispatched
	}

	g.rowOffset += rowBandSize
	if g.rowOffset >= g.rows {
		g.backend.DispatchMerge()
		g.backend.PlaceFence()
		g.inMerge = true
		return Dispatched
	}

	g.dispatchBand()
	return Dispatched
}

// ReadBack returns the merged grids once state is Ready and resets to
// Idle. It returns nil if called in any other state.
func (g *GPUViewshed) ReadBack() *Merged {
	if g.state != Ready {
		return nil
	}

	vis, sig, overlap := g.backend.ReadBack()
	g.state = Idle
	return &Merged{
		Visibility: vis,
		Signal:     sig,
		Overlap:    overlap,
		Rows:       g.rows,
		Cols:       g.cols,
	}
}

// ComputeAll runs the whole pipeline synchronously, blocking on each
// fence instead of returning between steps.
func (g *GPUViewshed) ComputeAll(nodes []scene.Node, elevation []float32, rows, cols int,
	bounds geo.Bounds) *Merged {
	g.Kick(nodes, elevation, rows, cols, bounds)
	for g.state == Dispatched {
		g.backend.WaitFence()
		g.Poll()
	}
	return g.ReadBack()
}

// bandCount returns how many row bands cover n rows.
func bandCount(n int) int {
	return int(math.Ceil(float64(n) / rowBandSize))
}
