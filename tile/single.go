// tile/single.go
// Copyright(c) 2024-2026 radioscape contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package tile

import (
	"github.com/radioscape/radioscape/geo"
	"github.com/radioscape/radioscape/util"
)

// SingleTileProvider wraps an in-memory elevation grid, plus optional
// precomputed overlay arrays, as the lone tile {0,0,0}. It backs the
// static, project-bounds mode where the terrain comes from the loaded
// project rather than a streaming source.
type SingleTileProvider struct {
	bounds     geo.Bounds
	elevation  []float32
	rows, cols int
	viewshed   []uint8
	signal     []float32
	hasData    bool
}

func (p *SingleTileProvider) Name() string        { return "single" }
func (p *SingleTileProvider) Coverage() geo.Bounds { return p.bounds }
func (p *SingleTileProvider) MinZoom() int        { return 0 }
func (p *SingleTileProvider) MaxZoom() int        { return 0 }

// SetData replaces the provider's contents. Overlay slices may be nil.
func (p *SingleTileProvider) SetData(bounds geo.Bounds, elevation []float32, rows, cols int,
	viewshed []uint8, signal []float32) {
	p.bounds = bounds
	p.rows, p.cols = rows, cols
	p.elevation = util.DuplicateSlice(elevation)
	p.viewshed = util.DuplicateSlice(viewshed)
	p.signal = util.DuplicateSlice(signal)
	p.hasData = len(p.elevation) == rows*cols && rows >= 2 && cols >= 2
}

func (p *SingleTileProvider) FetchTile(c Coord) (*Data, error) {
	if !p.hasData || c != (Coord{}) {
		return nil, nil
	}
	return &Data{
		Coord:     Coord{},
		Bounds:    p.bounds,
		Elevation: util.DuplicateSlice(p.elevation),
		ElevRows:  p.rows,
		ElevCols:  p.cols,
		Viewshed:  util.DuplicateSlice(p.viewshed),
		Signal:    util.DuplicateSlice(p.signal),
	}, nil
}

func (p *SingleTileProvider) TilesInBounds(geo.Bounds, int) []Coord {
	if !p.hasData {
		return nil
	}
	return []Coord{{}}
}
