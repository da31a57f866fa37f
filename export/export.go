// export/export.go
// Copyright(c) 2024-2026 radioscape contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package export renders merged coverage results into georeferenced
// images for use in external GIS tools.
package export

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"os"

	"github.com/radioscape/radioscape/geo"
	"github.com/radioscape/radioscape/geotiff"
	"github.com/radioscape/radioscape/util"
	"github.com/radioscape/radioscape/viewshed"
)

// Signal ramp endpoints in dBm: at or above strong is pure green, at
// or below weak pure red, yellow in between.
const (
	strongSignalDbm = -80
	weakSignalDbm   = -130
)

// SignalColor maps received signal strength to the green-yellow-red
// coverage ramp.
func SignalColor(dbm float32) color.NRGBA {
	t := util.Clamp((dbm-weakSignalDbm)/(strongSignalDbm-weakSignalDbm), 0, 1)
	var r, g float32
	if t > 0.5 {
		r = 2 * (1 - t)
		g = 1
	} else {
		r = 1
		g = 2 * t
	}
	return color.NRGBA{R: uint8(r * 255), G: uint8(g * 255), A: 255}
}

// CoverageImage rasterizes a merged result: covered cells get the
// signal ramp color, uncovered cells are fully transparent.
func CoverageImage(m *viewshed.Merged) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, m.Cols, m.Rows))
	for r := 0; r < m.Rows; r++ {
		for c := 0; c < m.Cols; c++ {
			i := r*m.Cols + c
			if m.Visibility[i] != 0 {
				img.SetRGBA(c, r, rgba(SignalColor(m.Signal[i])))
			}
		}
	}
	return img
}

func rgba(c color.NRGBA) color.RGBA {
	// Coverage pixels are always fully opaque, so no premultiply needed.
	return color.RGBA{R: c.R, G: c.G, B: c.B, A: c.A}
}

// WriteCoverageGeoTIFF encodes the coverage raster as a georeferenced
// TIFF. Row 0 of the grid is geographic north, matching the TIFF
// convention of a tie point at the northwest corner.
func WriteCoverageGeoTIFF(w io.Writer, m *viewshed.Merged, bounds geo.Bounds) error {
	if m.Rows < 1 || m.Cols < 1 {
		return fmt.Errorf("empty coverage grid")
	}
	img := CoverageImage(m)
	scaleX := (bounds.MaxLon - bounds.MinLon) / float64(m.Cols)
	scaleY := (bounds.MaxLat - bounds.MinLat) / float64(m.Rows)
	return geotiff.Encode(w, img, bounds.MinLon, bounds.MaxLat, scaleX, scaleY)
}

// WriteCoverageFile is WriteCoverageGeoTIFF to a named file.
func WriteCoverageFile(path string, m *viewshed.Merged, bounds geo.Bounds) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteCoverageGeoTIFF(f, m, bounds); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
