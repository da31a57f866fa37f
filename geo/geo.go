// geo/geo.go
// Copyright(c) 2024-2026 radioscape contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package geo

import "math"

// EarthRadiusMeters is the mean earth radius.
const EarthRadiusMeters = 6371000.0

// MetersPerDegreeLat is the approximate north-south extent of one degree
// of latitude; it is close to constant over the globe.
const MetersPerDegreeLat = 111320.0

// MetersPerDegreeLon returns the east-west extent of one degree of
// longitude at the given latitude, which shrinks toward the poles.
func MetersPerDegreeLon(latDegrees float64) float64 {
	return MetersPerDegreeLat * math.Cos(latDegrees*math.Pi/180)
}

// Bounds is a lat-long aligned bounding box.
type Bounds struct {
	MinLat, MinLon float64
	MaxLat, MaxLon float64
}

func (b Bounds) Center() (lat, lon float64) {
	return (b.MinLat + b.MaxLat) / 2, (b.MinLon + b.MaxLon) / 2
}

func (b Bounds) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// Union returns the smallest Bounds enclosing both b and o.
func (b Bounds) Union(o Bounds) Bounds {
	return Bounds{
		MinLat: math.Min(b.MinLat, o.MinLat),
		MinLon: math.Min(b.MinLon, o.MinLon),
		MaxLat: math.Max(b.MaxLat, o.MaxLat),
		MaxLon: math.Max(b.MaxLon, o.MaxLon),
	}
}

// Projection maps lat-long coordinates to a local tangent plane measured
// in meters from the center of a Bounds. X points east and Z points
// south, so north is -Z; elevations go on the Y axis.
type Projection struct {
	CenterLat, CenterLon float64
	mPerDegLat           float64
	mPerDegLon           float64
}

func MakeProjection(b Bounds) Projection {
	lat, lon := b.Center()
	return Projection{
		CenterLat:  lat,
		CenterLon:  lon,
		mPerDegLat: MetersPerDegreeLat,
		mPerDegLon: MetersPerDegreeLon(lat),
	}
}

func (p Projection) Project(lat, lon float64) (x, z float64) {
	x = (lon - p.CenterLon) * p.mPerDegLon
	z = (p.CenterLat - lat) * p.mPerDegLat
	return
}

func (p Projection) Unproject(x, z float64) (lat, lon float64) {
	lon = p.CenterLon + x/p.mPerDegLon
	lat = p.CenterLat - z/p.mPerDegLat
	return
}

func (p Projection) WidthMeters(b Bounds) float64 {
	return (b.MaxLon - b.MinLon) * p.mPerDegLon
}

func (p Projection) HeightMeters(b Bounds) float64 {
	return (b.MaxLat - b.MinLat) * p.mPerDegLat
}
