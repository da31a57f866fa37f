// tile/hgt.go
// Copyright(c) 2024-2026 radioscape contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package tile

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/radioscape/radioscape/geo"
	"github.com/radioscape/radioscape/log"
)

// HGTProvider serves SRTM elevation from one-degree .hgt cells,
// downloading the gzipped files from the public AWS terrain bucket on
// demand and caching the uncompressed payloads on disk. Coordinates
// use the ZoomHGT sentinel with x = floor(lon), y = floor(lat).
type HGTProvider struct {
	cache  *DiskCache
	client *http.Client
	lg     *log.Logger
}

const hgtURLBase = "https://s3.amazonaws.com/elevation-tiles-prod/skadi"

// hgtEdgeThreshold is the fractional distance from a tile edge, about
// 17 km at the equator, inside which the neighboring tile is also
// considered in view.
const hgtEdgeThreshold = 0.15

func NewHGTProvider(lg *log.Logger) *HGTProvider {
	var dir string
	if cd, err := os.UserCacheDir(); err == nil {
		dir = filepath.Join(cd, "Radioscape", "hgt")
	}
	p := &HGTProvider{
		cache:  NewDiskCache(dir, lg),
		client: &http.Client{Timeout: 60 * time.Second},
		lg:     lg,
	}
	lg.Infof("hgt provider: cache %s", p.cache.Dir())
	return p
}

func (p *HGTProvider) Name() string { return "hgt" }

func (p *HGTProvider) Coverage() geo.Bounds {
	return geo.Bounds{MinLat: -90, MaxLat: 90, MinLon: -180, MaxLon: 180}
}

func (p *HGTProvider) MinZoom() int { return 0 }
func (p *HGTProvider) MaxZoom() int { return 0 }

// LatLonToHGTCoord returns the coordinate of the one-degree cell
// containing the given position.
func LatLonToHGTCoord(lat, lon float64) Coord {
	return Coord{Z: ZoomHGT, X: int(math.Floor(lon)), Y: int(math.Floor(lat))}
}

// HGTFilename returns the SRTM filename for a cell, e.g. "N38W106.hgt".
func HGTFilename(c Coord) string {
	ns := 'N'
	if c.Y < 0 {
		ns = 'S'
	}
	ew := 'E'
	if c.X < 0 {
		ew = 'W'
	}
	abs := func(v int) int {
		if v < 0 {
			return -v
		}
		return v
	}
	return fmt.Sprintf("%c%02d%c%03d.hgt", ns, abs(c.Y), ew, abs(c.X))
}

// HGTBounds returns the geographic bounds of a one-degree cell.
func HGTBounds(c Coord) geo.Bounds {
	return geo.Bounds{
		MinLat: float64(c.Y), MaxLat: float64(c.Y) + 1,
		MinLon: float64(c.X), MaxLon: float64(c.X) + 1,
	}
}

func (p *HGTProvider) TilesInBounds(b geo.Bounds, _ int) []Coord {
	minY, maxY := int(math.Floor(b.MinLat)), int(math.Floor(b.MaxLat))
	minX, maxX := int(math.Floor(b.MinLon)), int(math.Floor(b.MaxLon))

	var tiles []Coord
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			tiles = append(tiles, Coord{Z: ZoomHGT, X: x, Y: y})
		}
	}
	return tiles
}

// TilesInView returns the 1-4 cells the camera straddles: always the
// containing cell, plus neighbors when the position is within
// hgtEdgeThreshold of a cell edge.
func (p *HGTProvider) TilesInView(lat, lon float64) []Coord {
	center := LatLonToHGTCoord(lat, lon)
	tiles := []Coord{center}

	fracLat := lat - math.Floor(lat)
	fracLon := lon - math.Floor(lon)

	nearSouth := fracLat < hgtEdgeThreshold
	nearNorth := fracLat > 1-hgtEdgeThreshold
	nearWest := fracLon < hgtEdgeThreshold
	nearEast := fracLon > 1-hgtEdgeThreshold

	adjLat := center.Y
	if nearSouth {
		adjLat = center.Y - 1
	} else if nearNorth {
		adjLat = center.Y + 1
	}
	adjLon := center.X
	if nearWest {
		adjLon = center.X - 1
	} else if nearEast {
		adjLon = center.X + 1
	}

	wrapLon := func(x int) int {
		if x < -180 {
			x += 360
		}
		if x >= 180 {
			x -= 360
		}
		return x
	}

	if (nearSouth || nearNorth) && adjLat >= -90 && adjLat <= 89 {
		tiles = append(tiles, Coord{Z: ZoomHGT, X: center.X, Y: adjLat})
	}
	if nearWest || nearEast {
		tiles = append(tiles, Coord{Z: ZoomHGT, X: wrapLon(adjLon), Y: center.Y})
	}
	if (nearSouth || nearNorth) && (nearWest || nearEast) && adjLat >= -90 && adjLat <= 89 {
		tiles = append(tiles, Coord{Z: ZoomHGT, X: wrapLon(adjLon), Y: adjLat})
	}

	return tiles
}

func (p *HGTProvider) FetchTile(c Coord) (*Data, error) {
	filename := HGTFilename(c)

	raw, err := p.acquire(filename)
	if err != nil {
		return nil, err
	}

	elev, rows, cols, err := parseHGT(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}

	p.lg.Infof("hgt: loaded %s (%dx%d)", filename, rows, cols)
	return &Data{
		Coord:     c,
		Bounds:    HGTBounds(c),
		Elevation: elev,
		ElevRows:  rows,
		ElevCols:  cols,
	}, nil
}

// parseHGT decodes the raw .hgt payload: big-endian int16 samples in a
// square grid, SRTM1 (3601x3601) or SRTM3 (1201x1201). Void samples
// (very negative values) become zero.
func parseHGT(raw []byte) ([]float32, int, int, error) {
	samples := len(raw) / 2

	var n int
	switch samples {
	case 3601 * 3601:
		n = 3601
	case 1201 * 1201:
		n = 1201
	default:
		return nil, 0, 0, fmt.Errorf("unexpected size %d bytes (%d samples)", len(raw), samples)
	}

	elev := make([]float32, samples)
	for i := 0; i < samples; i++ {
		v := int16(uint16(raw[2*i])<<8 | uint16(raw[2*i+1]))
		if v < -1000 {
			v = 0
		}
		elev[i] = float32(v)
	}
	return elev, n, n, nil
}

func (p *HGTProvider) acquire(filename string) ([]byte, error) {
	if p.cache.Has(filename) {
		p.lg.Debugf("hgt cache hit: %s", filename)
		if raw := p.cache.Read(filename); raw != nil {
			return raw, nil
		}
	}

	raw, err := p.download(filename)
	if err != nil {
		return nil, err
	}

	p.cache.Write(filename, raw)
	p.lg.Infof("hgt: cached %s (%d bytes)", filename, len(raw))
	return raw, nil
}

func (p *HGTProvider) download(filename string) ([]byte, error) {
	// The bucket organizes files by latitude band, e.g.
	// skadi/N38/N38W106.hgt.gz.
	url := fmt.Sprintf("%s/%s/%s.gz", hgtURLBase, filename[:3], filename)
	p.lg.Infof("hgt: downloading %s", url)

	resp, err := p.client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d for %s", resp.StatusCode, url)
	}

	zr, err := gzip.NewReader(resp.Body)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, err
	}

	p.lg.Infof("hgt: downloaded %s (%d bytes uncompressed)", filename, len(raw))
	return raw, nil
}
