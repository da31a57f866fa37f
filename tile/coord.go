// tile/coord.go
// Copyright(c) 2024-2026 radioscape contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package tile

import (
	"fmt"
	"math"

	"github.com/radioscape/radioscape/geo"
	"github.com/radioscape/radioscape/util"
)

// Reserved zoom values for providers that don't use the slippy map
// tiling scheme. HGT tiles are one-degree cells addressed by the
// southwest corner's integer lat-long; DSM tiles are fixed-resolution
// surface model cells.
const (
	ZoomHGT = -1
	ZoomDSM = -2
)

// Coord addresses a single tile. For zoom >= 0 it is a standard slippy
// map coordinate; the negative sentinel zooms are defined above. Coords
// are comparable and are used as cache keys throughout.
type Coord struct {
	Z, X, Y int
}

func (c Coord) String() string {
	switch c.Z {
	case ZoomHGT:
		return fmt.Sprintf("hgt(%d,%d)", c.X, c.Y)
	case ZoomDSM:
		return fmt.Sprintf("dsm(%d,%d)", c.X, c.Y)
	default:
		return fmt.Sprintf("%d/%d/%d", c.Z, c.X, c.Y)
	}
}

// LatToTileY returns the slippy map tile y index at the given zoom,
// clamped to the valid range.
func LatToTileY(lat float64, z int) int {
	latRad := lat * math.Pi / 180
	n := 1 << z
	y := int((1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2 * float64(n))
	return util.Clamp(y, 0, n-1)
}

// LonToTileX returns the slippy map tile x index at the given zoom,
// clamped to the valid range.
func LonToTileX(lon float64, z int) int {
	n := 1 << z
	x := int((lon + 180) / 360 * float64(n))
	return util.Clamp(x, 0, n-1)
}

// LatToTileYFrac returns the fractional tile y coordinate, used for
// sub-tile pixel mapping when compositing imagery.
func LatToTileYFrac(lat float64, z int) float64 {
	latRad := lat * math.Pi / 180
	n := float64(int(1) << z)
	return (1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2 * n
}

// LonToTileXFrac returns the fractional tile x coordinate.
func LonToTileXFrac(lon float64, z int) float64 {
	n := float64(int(1) << z)
	return (lon + 180) / 360 * n
}

// SlippyBounds returns the geographic bounds of a slippy map tile.
func SlippyBounds(c Coord) geo.Bounds {
	n := float64(int(1) << c.Z)
	lonMin := float64(c.X)/n*360 - 180
	lonMax := float64(c.X+1)/n*360 - 180

	latMaxRad := math.Atan(math.Sinh(math.Pi * (1 - 2*float64(c.Y)/n)))
	latMinRad := math.Atan(math.Sinh(math.Pi * (1 - 2*float64(c.Y+1)/n)))

	return geo.Bounds{
		MinLat: latMinRad * 180 / math.Pi,
		MaxLat: latMaxRad * 180 / math.Pi,
		MinLon: lonMin,
		MaxLon: lonMax,
	}
}

// TileBounds returns the geographic bounds for any coordinate scheme.
func TileBounds(c Coord) geo.Bounds {
	switch c.Z {
	case ZoomHGT:
		return HGTBounds(c)
	case ZoomDSM:
		return DSMBounds(c)
	default:
		return SlippyBounds(c)
	}
}

// BoundsToTileRange returns all slippy tile coordinates covering the
// bounding box at the given zoom, in row-major order from the north.
func BoundsToTileRange(b geo.Bounds, zoom int) []Coord {
	xMin := LonToTileX(b.MinLon, zoom)
	xMax := LonToTileX(b.MaxLon, zoom)
	yMin := LatToTileY(b.MaxLat, zoom) // max lat -> smaller y
	yMax := LatToTileY(b.MinLat, zoom)

	var tiles []Coord
	for y := yMin; y <= yMax; y++ {
		for x := xMin; x <= xMax; x++ {
			tiles = append(tiles, Coord{Z: zoom, X: x, Y: y})
		}
	}
	return tiles
}
