// geo/geo_test.go
// Copyright(c) 2024-2026 radioscape contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package geo

import (
	"math"
	"testing"
)

func TestMetersPerDegreeLon(t *testing.T) {
	if got := MetersPerDegreeLon(0); math.Abs(got-MetersPerDegreeLat) > 1 {
		t.Errorf("equator meters/degree = %g", got)
	}
	if got := MetersPerDegreeLon(60); math.Abs(got-MetersPerDegreeLat/2) > 100 {
		t.Errorf("60N meters/degree = %g", got)
	}
	if got := MetersPerDegreeLon(-60); math.Abs(got-MetersPerDegreeLon(60)) > 1e-9 {
		t.Errorf("longitude scale not symmetric about the equator")
	}
}

func TestBounds(t *testing.T) {
	b := Bounds{MinLat: 39, MinLon: -105, MaxLat: 40, MaxLon: -104}

	lat, lon := b.Center()
	if lat != 39.5 || lon != -104.5 {
		t.Errorf("center = (%g, %g)", lat, lon)
	}

	if !b.Contains(39.5, -104.5) || !b.Contains(39, -105) {
		t.Errorf("Contains rejects interior or edge points")
	}
	if b.Contains(38.9, -104.5) || b.Contains(39.5, -103.9) {
		t.Errorf("Contains accepts exterior points")
	}

	u := b.Union(Bounds{MinLat: 40, MinLon: -104, MaxLat: 41, MaxLon: -103})
	want := Bounds{MinLat: 39, MinLon: -105, MaxLat: 41, MaxLon: -103}
	if u != want {
		t.Errorf("union = %+v, want %+v", u, want)
	}
}

func TestProjectionRoundTrip(t *testing.T) {
	b := Bounds{MinLat: 39, MinLon: -105, MaxLat: 40, MaxLon: -104}
	p := MakeProjection(b)

	for _, pt := range [][2]float64{
		{39.5, -104.5},
		{39, -105},
		{40, -104},
		{39.25, -104.75},
	} {
		x, z := p.Project(pt[0], pt[1])
		lat, lon := p.Unproject(x, z)
		if math.Abs(lat-pt[0]) > 1e-9 || math.Abs(lon-pt[1]) > 1e-9 {
			t.Errorf("round trip (%g, %g) -> (%g, %g)", pt[0], pt[1], lat, lon)
		}
	}
}

func TestProjectionOrientation(t *testing.T) {
	b := Bounds{MinLat: 39, MinLon: -105, MaxLat: 40, MaxLon: -104}
	p := MakeProjection(b)

	// X grows eastward, Z grows southward.
	x0, z0 := p.Project(39.5, -104.5)
	xe, _ := p.Project(39.5, -104.4)
	_, zs := p.Project(39.4, -104.5)
	if xe <= x0 {
		t.Errorf("x does not grow eastward: %g vs %g", xe, x0)
	}
	if zs <= z0 {
		t.Errorf("z does not grow southward: %g vs %g", zs, z0)
	}
}

func TestProjectionExtents(t *testing.T) {
	b := Bounds{MinLat: 39, MinLon: -105, MaxLat: 40, MaxLon: -104}
	p := MakeProjection(b)

	if w := p.WidthMeters(b); math.Abs(w-MetersPerDegreeLon(39.5)) > 1 {
		t.Errorf("width = %g m", w)
	}
	if h := p.HeightMeters(b); math.Abs(h-MetersPerDegreeLat) > 1 {
		t.Errorf("height = %g m", h)
	}
}
