// tile/urltile.go
// Copyright(c) 2024-2026 radioscape contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package tile

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/radioscape/radioscape/geo"
	"github.com/radioscape/radioscape/log"
)

// URLTileProvider fetches imagery tiles from a slippy map URL template
// with {z}/{x}/{y} placeholders, decoding them to RGBA and caching the
// raw downloads on disk.
type URLTileProvider struct {
	name        string
	urlTemplate string
	fileExt     string
	minZoom     int
	maxZoom     int
	userAgent   string

	cache  *DiskCache
	client *http.Client
	lg     *log.Logger
}

func NewURLTileProvider(name, urlTemplate, fileExt string, minZoom, maxZoom int,
	userAgent string, lg *log.Logger) *URLTileProvider {
	return &URLTileProvider{
		name:        name,
		urlTemplate: urlTemplate,
		fileExt:     fileExt,
		minZoom:     minZoom,
		maxZoom:     maxZoom,
		userAgent:   userAgent,
		cache:       NewDiskCache("", lg),
		client:      &http.Client{Timeout: 15 * time.Second},
		lg:          lg,
	}
}

// SatelliteProvider returns the Esri world imagery source.
func SatelliteProvider(lg *log.Logger) *URLTileProvider {
	return NewURLTileProvider("esri_satellite",
		"https://server.arcgisonline.com/ArcGIS/rest/services/World_Imagery/MapServer/tile/{z}/{y}/{x}",
		"jpg", 0, 18, "", lg)
}

// StreetProvider returns the OpenStreetMap raster source. OSM requires
// an identifying user agent.
func StreetProvider(lg *log.Logger) *URLTileProvider {
	return NewURLTileProvider("osm",
		"https://tile.openstreetmap.org/{z}/{x}/{y}.png",
		"png", 0, 19, "radioscape/1.0 (tile viewer)", lg)
}

func (p *URLTileProvider) Name() string { return p.name }

func (p *URLTileProvider) Coverage() geo.Bounds {
	// Web mercator coverage
	return geo.Bounds{MinLat: -85.05, MaxLat: 85.05, MinLon: -180, MaxLon: 180}
}

func (p *URLTileProvider) MinZoom() int { return p.minZoom }
func (p *URLTileProvider) MaxZoom() int { return p.maxZoom }

func (p *URLTileProvider) TilesInBounds(b geo.Bounds, zoom int) []Coord {
	return BoundsToTileRange(b, zoom)
}

func (p *URLTileProvider) buildURL(c Coord) string {
	r := strings.NewReplacer(
		"{z}", strconv.Itoa(c.Z),
		"{x}", strconv.Itoa(c.X),
		"{y}", strconv.Itoa(c.Y))
	return r.Replace(p.urlTemplate)
}

func (p *URLTileProvider) cacheKey(c Coord) string {
	return fmt.Sprintf("%s/%d/%d/%d.%s", p.name, c.Z, c.X, c.Y, p.fileExt)
}

func (p *URLTileProvider) FetchTile(c Coord) (*Data, error) {
	key := p.cacheKey(c)

	raw := p.cache.Read(key)
	if raw != nil {
		p.lg.Debugf("tile cache hit: %s", key)
	} else {
		url := p.buildURL(c)
		p.lg.Infof("downloading tile %s", url)

		var err error
		raw, err = p.download(url)
		if err != nil {
			return nil, err
		}
		p.cache.Write(key, raw)
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}

	// Force RGBA regardless of the decoded format.
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)

	return &Data{
		Coord:     c,
		Bounds:    SlippyBounds(c),
		Imagery:   rgba.Pix,
		ImgWidth:  b.Dx(),
		ImgHeight: b.Dy(),
	}, nil
}

func (p *URLTileProvider) download(url string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d for %s", resp.StatusCode, url)
	}
	return io.ReadAll(resp.Body)
}
