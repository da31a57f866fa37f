// viewshed/link.go
// Copyright(c) 2024-2026 radioscape contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package viewshed

import (
	"math"

	"github.com/radioscape/radioscape/geo"
	"github.com/radioscape/radioscape/scene"
	"github.com/radioscape/radioscape/util"
)

// Link is a point-to-point budget between two nodes over terrain.
type Link struct {
	A, B       int // indices into the node slice
	DistanceKm float32
	PathLossDb float32
	RxDbm      float32
	MarginDb   float32 // against the receiver's sensitivity
	Viable     bool
}

// Profiles longer than this are subsampled before the loss model runs.
const maxProfileSamples = 1024

// AnalyzeLinks evaluates every node pair with the given loss model
// over the terrain profile between them. The elevation grid must cover
// both endpoints; pairs outside it are skipped.
func AnalyzeLinks(elevation []float32, rows, cols int, bounds geo.Bounds,
	nodes []scene.Node, model PropagationModel, params scene.ITMParams) []Link {
	if rows < 2 || cols < 2 || len(elevation) != rows*cols {
		return nil
	}

	latRes := (bounds.MaxLat - bounds.MinLat) / float64(rows-1)
	lonRes := (bounds.MaxLon - bounds.MinLon) / float64(cols-1)
	cellM := CellMeters(bounds, rows, cols)

	cellOf := func(n *scene.Node) (int, int, bool) {
		if !bounds.Contains(n.Lat, n.Lon) {
			return 0, 0, false
		}
		r := util.Clamp(int((bounds.MaxLat-n.Lat)/latRes), 0, rows-1)
		c := util.Clamp(int((n.Lon-bounds.MinLon)/lonRes), 0, cols-1)
		return r, c, true
	}

	var links []Link
	for i := range nodes {
		ri, ci, ok := cellOf(&nodes[i])
		if !ok {
			continue
		}
		for j := i + 1; j < len(nodes); j++ {
			rj, cj, ok := cellOf(&nodes[j])
			if !ok {
				continue
			}

			profile, stepM := ExtractProfile(elevation, rows, cols,
				ri, ci, rj, cj, cellM, maxProfileSamples)

			tx, rx := &nodes[i], &nodes[j]
			loss := PathLoss(model, profile, stepM,
				tx.AntennaHeightM, rx.AntennaHeightM, tx.FrequencyMHz, params)

			rxDbm := tx.EIRP() + rx.AntennaGainDbi - rx.CableLossDb - loss
			margin := rxDbm - rx.RxSensitivityDbm

			dr := float64(rj-ri) * latRes * geo.MetersPerDegreeLat
			dc := float64(cj-ci) * lonRes * geo.MetersPerDegreeLon((nodes[i].Lat+nodes[j].Lat)/2)
			distKm := float32(math.Hypot(dr, dc) / 1000)

			links = append(links, Link{
				A:          i,
				B:          j,
				DistanceKm: distKm,
				PathLossDb: loss,
				RxDbm:      rxDbm,
				MarginDb:   margin,
				Viable:     margin > 0,
			})
		}
	}
	return links
}
