// export/export_test.go
// Copyright(c) 2024-2026 radioscape contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package export

import (
	"bytes"
	"math"
	"testing"

	"github.com/radioscape/radioscape/geo"
	"github.com/radioscape/radioscape/geotiff"
	"github.com/radioscape/radioscape/viewshed"
)

func TestSignalColor(t *testing.T) {
	for _, tc := range []struct {
		dbm     float32
		r, g, b uint8
	}{
		{-80, 0, 255, 0},   // strong: green
		{-60, 0, 255, 0},   // above ramp clamps
		{-130, 255, 0, 0},  // weak: red
		{-150, 255, 0, 0},  // below ramp clamps
		{-105, 255, 255, 0}, // midpoint: yellow
	} {
		c := SignalColor(tc.dbm)
		if c.R != tc.r || c.G != tc.g || c.B != tc.b {
			t.Errorf("SignalColor(%v) = (%d, %d, %d), want (%d, %d, %d)",
				tc.dbm, c.R, c.G, c.B, tc.r, tc.g, tc.b)
		}
		if c.A != 255 {
			t.Errorf("SignalColor(%v) alpha = %d", tc.dbm, c.A)
		}
	}

	// Ramp is monotone in red as the signal weakens through the upper half.
	prev := SignalColor(-80)
	for dbm := float32(-85); dbm >= -105; dbm -= 5 {
		c := SignalColor(dbm)
		if c.R < prev.R {
			t.Errorf("red channel decreased at %v dBm", dbm)
		}
		prev = c
	}
}

func TestCoverageImage(t *testing.T) {
	m := viewshed.NewMerged(2, 3)
	m.Visibility[0] = 1
	m.Signal[0] = -80
	m.Visibility[4] = 1
	m.Signal[4] = -130

	img := CoverageImage(m)
	if b := img.Bounds(); b.Dx() != 3 || b.Dy() != 2 {
		t.Fatalf("image %dx%d, want 3x2", b.Dx(), b.Dy())
	}
	if c := img.RGBAAt(0, 0); c.G != 255 || c.A != 255 {
		t.Errorf("covered strong cell = %+v", c)
	}
	if c := img.RGBAAt(1, 1); c.R != 255 || c.A != 255 {
		t.Errorf("covered weak cell = %+v", c)
	}
	if c := img.RGBAAt(2, 0); c.A != 0 {
		t.Errorf("uncovered cell not transparent: %+v", c)
	}
}

func TestWriteCoverageGeoTIFF(t *testing.T) {
	bounds := geo.Bounds{MinLat: 39, MinLon: -105, MaxLat: 40, MaxLon: -104}
	m := viewshed.NewMerged(10, 20)
	for i := range m.Visibility {
		m.Visibility[i] = 1
		m.Signal[i] = -90
	}

	var buf bytes.Buffer
	if err := WriteCoverageGeoTIFF(&buf, m, bounds); err != nil {
		t.Fatalf("WriteCoverageGeoTIFF: %v", err)
	}

	info, err := geotiff.Parse(buf.Bytes())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if info.Width != 20 || info.Height != 10 {
		t.Errorf("got %dx%d, want 20x10", info.Width, info.Height)
	}
	if !info.HasGeo {
		t.Fatal("missing georeferencing")
	}
	// Tie point is the northwest corner.
	if info.TieX != -105 || info.TieY != 40 {
		t.Errorf("tiepoint (%v, %v), want (-105, 40)", info.TieX, info.TieY)
	}
	if math.Abs(info.ScaleX-1.0/20) > 1e-12 || math.Abs(info.ScaleY-1.0/10) > 1e-12 {
		t.Errorf("scale (%v, %v), want (0.05, 0.1)", info.ScaleX, info.ScaleY)
	}
}

func TestWriteCoverageGeoTIFFEmptyGrid(t *testing.T) {
	var buf bytes.Buffer
	m := &viewshed.Merged{}
	if err := WriteCoverageGeoTIFF(&buf, m, geo.Bounds{MaxLat: 1, MaxLon: 1}); err == nil {
		t.Error("expected error for empty grid")
	}
}
