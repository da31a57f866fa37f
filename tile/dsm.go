// tile/dsm.go
// Copyright(c) 2024-2026 radioscape contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package tile

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/radioscape/radioscape/geo"
	"github.com/radioscape/radioscape/geotiff"
	"github.com/radioscape/radioscape/log"
)

// dsmHeaderBytes is how much of a GeoTIFF is read when indexing; the
// IFD and its tag values sit at the front of these files.
const dsmHeaderBytes = 64 * 1024

// DSMProvider serves high resolution LiDAR surface model tiles from
// GeoTIFF files in a local directory. Coordinates use the ZoomDSM
// sentinel on a 0.01-degree grid: x = floor(lon*100), y = floor(lat*100).
type DSMProvider struct {
	dataDir string
	scanned bool
	index   []dsmIndexEntry
	lg      *log.Logger
}

type dsmIndexEntry struct {
	path   string
	bounds geo.Bounds
	coord  Coord
}

func NewDSMProvider(lg *log.Logger) *DSMProvider {
	return &DSMProvider{lg: lg}
}

func (p *DSMProvider) Name() string { return "dsm" }

func (p *DSMProvider) Coverage() geo.Bounds {
	return geo.Bounds{MinLat: -90, MaxLat: 90, MinLon: -180, MaxLon: 180}
}

func (p *DSMProvider) MinZoom() int { return 0 }
func (p *DSMProvider) MaxZoom() int { return 0 }

// SetDataDir points the provider at a directory of GeoTIFF tiles; the
// directory is reindexed lazily on the next query.
func (p *DSMProvider) SetDataDir(dir string) {
	p.dataDir = dir
	p.scanned = false
}

// LatLonToDSMCoord returns the 0.01-degree cell containing the
// position.
func LatLonToDSMCoord(lat, lon float64) Coord {
	return Coord{Z: ZoomDSM, X: int(math.Floor(lon * 100)), Y: int(math.Floor(lat * 100))}
}

// DSMBounds returns the geographic bounds of a 0.01-degree cell.
func DSMBounds(c Coord) geo.Bounds {
	minLat, minLon := float64(c.Y)/100, float64(c.X)/100
	return geo.Bounds{MinLat: minLat, MaxLat: minLat + 0.01, MinLon: minLon, MaxLon: minLon + 0.01}
}

func (p *DSMProvider) scan() {
	if p.scanned || p.dataDir == "" {
		return
	}
	p.scanned = true
	p.index = nil

	if _, err := os.Stat(p.dataDir); err != nil {
		p.lg.Warnf("dsm: data directory %s: %v", p.dataDir, err)
		return
	}

	filepath.Walk(p.dataDir, func(path string, fi os.FileInfo, err error) error {
		if err != nil || fi.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".tif", ".tiff":
		default:
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return nil
		}
		header := make([]byte, dsmHeaderBytes)
		n, _ := io.ReadFull(f, header)
		f.Close()

		info, err := geotiff.Parse(header[:n])
		if err != nil || !info.HasGeo {
			return nil
		}

		bounds := dsmInfoBounds(info)
		lat, lon := bounds.Center()
		p.index = append(p.index, dsmIndexEntry{
			path:   path,
			bounds: bounds,
			coord:  LatLonToDSMCoord(lat, lon),
		})
		return nil
	})

	p.lg.Infof("dsm: indexed %d GeoTIFF tiles in %s", len(p.index), p.dataDir)
}

func dsmInfoBounds(info geotiff.Info) geo.Bounds {
	return geo.Bounds{
		MinLon: info.TieX,
		MaxLon: info.TieX + info.ScaleX*float64(info.Width),
		MaxLat: info.TieY,
		MinLat: info.TieY - info.ScaleY*float64(info.Height),
	}
}

func (p *DSMProvider) TilesInBounds(b geo.Bounds, _ int) []Coord {
	p.scan()

	var result []Coord
	for _, idx := range p.index {
		if idx.bounds.MaxLat < b.MinLat || idx.bounds.MinLat > b.MaxLat ||
			idx.bounds.MaxLon < b.MinLon || idx.bounds.MinLon > b.MaxLon {
			continue
		}
		result = append(result, idx.coord)
	}
	return result
}

// TilesInView returns the indexed tiles within roughly a kilometer of
// the given position.
func (p *DSMProvider) TilesInView(lat, lon float64) []Coord {
	const rangeDeg = 0.01
	return p.TilesInBounds(geo.Bounds{
		MinLat: lat - rangeDeg, MaxLat: lat + rangeDeg,
		MinLon: lon - rangeDeg, MaxLon: lon + rangeDeg,
	}, 0)
}

func (p *DSMProvider) FetchTile(c Coord) (*Data, error) {
	p.scan()

	for _, idx := range p.index {
		if idx.coord == c {
			return p.loadGeoTIFF(idx.path)
		}
	}
	return nil, nil
}

func (p *DSMProvider) loadGeoTIFF(path string) (*Data, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	info, err := geotiff.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	elev, err := geotiff.ReadElevation(raw, info)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	bounds := dsmInfoBounds(info)
	lat, lon := bounds.Center()

	p.lg.Infof("dsm: loaded %s (%dx%d, %.6f..%.6f lat, %.6f..%.6f lon)",
		path, info.Width, info.Height, bounds.MinLat, bounds.MaxLat, bounds.MinLon, bounds.MaxLon)

	return &Data{
		Coord:     LatLonToDSMCoord(lat, lon),
		Bounds:    bounds,
		Elevation: elev,
		ElevRows:  info.Height,
		ElevCols:  info.Width,
	}, nil
}
