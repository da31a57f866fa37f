// tile/provider.go
// Copyright(c) 2024-2026 radioscape contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package tile

import "github.com/radioscape/radioscape/geo"

// Provider is the contract a tile source satisfies. FetchTile may
// block on network or disk I/O; it is called from the loader's worker
// goroutine, or directly from the render thread for imagery
// compositing, where the provider's own disk cache is expected to make
// repeated calls cheap. A nil Data with a nil error means the tile is
// not available from this source.
type Provider interface {
	Name() string
	Coverage() geo.Bounds
	MinZoom() int
	MaxZoom() int

	FetchTile(c Coord) (*Data, error)

	// TilesInBounds returns all coordinates covering bounds at the
	// given zoom. Slippy map providers can use BoundsToTileRange.
	TilesInBounds(b geo.Bounds, zoom int) []Coord
}

// DynamicProvider is a Provider that can also select tiles around a
// roaming viewpoint, for camera-driven terrain streaming.
type DynamicProvider interface {
	Provider
	TilesInView(lat, lon float64) []Coord
}
