// viewshed/itm.go
// Copyright(c) 2024-2026 radioscape contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package viewshed

import (
	"math"
	"sort"

	"github.com/radioscape/radioscape/scene"
	"github.com/radioscape/radioscape/util"
)

// Simplified Longley-Rice (ITM) point-to-point propagation, after the
// NTIA reference implementation: two-ray ground reflection for short
// paths, smooth-earth diffraction for medium paths, tropospheric
// scatter for long paths, with terrain roughness and climate/ground
// parameter effects.

const (
	earthRadiusM = 6371000.0
	kEffective   = 4.0 / 3.0
)

// deltaH is the interdecile range of the profile's interior heights,
// the ITM terrain roughness parameter.
func deltaH(profile []float32) float64 {
	if len(profile) < 3 {
		return 0
	}
	sorted := util.DuplicateSlice(profile[1 : len(profile)-1])
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	i10 := int(float64(len(sorted)) * 0.1)
	i90 := min(int(float64(len(sorted))*0.9), len(sorted)-1)
	return float64(sorted[i90] - sorted[i10])
}

func freeSpaceLoss(distM, freqMHz float64) float64 {
	distKm := math.Max(distM/1000, 0.01)
	return 20*math.Log10(distKm) + 20*math.Log10(freqMHz) + 32.44
}

// horizonDistance is the smooth-earth radio horizon for an antenna at
// height h meters.
func horizonDistance(h float64) float64 {
	return math.Sqrt(2 * kEffective * earthRadiusM * h)
}

func smoothEarthDiffraction(distM, freqMHz, h1, h2, dh float64) float64 {
	lambda := 299.792458 / freqMHz

	// Terrain clutter reduces effective antenna height.
	he1, he2 := h1, h2
	if dh > 0 {
		he1 = math.Max(h1-0.1*dh, 1)
		he2 = math.Max(h2-0.1*dh, 1)
	}

	dls := horizonDistance(he1) + horizonDistance(he2)
	if distM <= dls {
		ratio := distM / dls
		return 6 * ratio * ratio
	}

	// Beyond the horizon: treat the bulge as an equivalent knife edge.
	dExcess := distM - dls
	v := 2 * dExcess / math.Sqrt(lambda*distM)
	if v < -0.78 {
		return 0
	}
	return 6.9 + 20*math.Log10(math.Sqrt((v-0.1)*(v-0.1)+1)+v-0.1)
}

// troposcatterLoss uses the simplified Yeh scatter model; it only
// matters for paths of tens of kilometers and beyond.
func troposcatterLoss(distM, freqMHz float64, climate int) float64 {
	if distM/1000 < 10 {
		return 0
	}

	surfaceRefractivity := [...]float64{0, 360, 320, 370, 325, 310, 350, 295}
	ns := 310.0
	if climate >= 1 && climate <= 7 {
		ns = surfaceRefractivity[climate]
	}

	theta := distM / (kEffective * earthRadiusM)
	loss := 190 - 10*math.Log10(ns) + 20*math.Log10(freqMHz) + 30*math.Log10(theta) - 0.27*ns
	return math.Max(loss, 0)
}

func groundLoss(freqMHz, dielectric, conductivity float64, polarization int) float64 {
	omega := 2 * math.Pi * freqMHz * 1e6
	const epsilon0 = 8.854e-12
	ratio := conductivity / (omega * epsilon0 * dielectric)

	var loss float64
	if polarization == 0 { // horizontal
		loss = 2 + 3*math.Log10(1+ratio)
	} else { // vertical
		loss = 1 + 2*math.Log10(1+ratio)
	}
	return math.Max(loss, 0)
}

// ITMPointToPoint returns the median path loss in dB over the given
// evenly spaced terrain profile. txHeight and rxHeight are antenna
// heights above local ground.
func ITMPointToPoint(profile []float32, stepM, txHeight, rxHeight, freqMHz float32,
	params scene.ITMParams) float32 {
	if len(profile) < 2 || stepM <= 0 || freqMHz <= 0 {
		return 999
	}

	distM := float64(len(profile)-1) * float64(stepM)
	if distM < 1 {
		return 0
	}

	dh := deltaH(profile)
	h1, h2 := float64(txHeight), float64(rxHeight)
	f := float64(freqMHz)

	fsl := freeSpaceLoss(distM, f)
	dfl := smoothEarthDiffraction(distM, f, h1, h2, dh)
	gnd := groundLoss(f, float64(params.GroundDielectric), float64(params.GroundConductivity),
		params.Polarization)
	scl := troposcatterLoss(distM, f, params.Climate)

	dls := horizonDistance(h1) + horizonDistance(h2)

	var total float64
	switch {
	case distM < dls*0.5:
		// Well within line of sight.
		total = fsl + gnd + 0.1*dh/math.Max(h1, 1)
	case distM < dls*2:
		// Transition zone; blend free space into diffraction.
		t := util.Clamp((distM-dls*0.5)/(dls*1.5), 0, 1)
		total = (fsl+gnd)*(1-t) + (fsl+dfl+gnd)*t
	case scl > fsl+dfl+gnd:
		// Tropospheric scatter dominates.
		t := util.Clamp((distM/dls-2)/3, 0, 1)
		total = (fsl+dfl+gnd)*(1-t) + scl*t
	default:
		total = fsl + dfl + gnd
	}

	if dh > 10 {
		// Roughness adds multipath and shadowing loss.
		total += 0.5 * math.Log10(dh/10) * 10
	}

	return float32(total)
}

// ExtractProfile returns evenly spaced elevation samples along the
// path between two grid cells, subsampled to at most maxSamples. The
// returned step is the sample spacing in meters.
func ExtractProfile(elevation []float32, rows, cols, r0, c0, r1, c1 int,
	cellMeters float32, maxSamples int) (profile []float32, stepM float32) {
	dr, dc := r1-r0, c1-c0
	distCells := float32(math.Sqrt(float64(dr*dr + dc*dc)))
	nSamples := int(distCells) + 1

	if nSamples < 2 {
		return []float32{elevation[r0*cols+c0], elevation[r1*cols+c1]}, cellMeters
	}

	step := 1
	if nSamples > maxSamples {
		step = (nSamples + maxSamples - 1) / maxSamples
		nSamples = (nSamples + step - 1) / step
	}

	profile = make([]float32, 0, nSamples)
	for i := 0; i < nSamples; i++ {
		t := min(float32(i*step)/distCells, 1)
		ir := util.Clamp(int(float32(r0)+float32(dr)*t), 0, rows-1)
		ic := util.Clamp(int(float32(c0)+float32(dc)*t), 0, cols-1)
		profile = append(profile, elevation[ir*cols+ic])
	}
	profile[len(profile)-1] = elevation[util.Clamp(r1, 0, rows-1)*cols+util.Clamp(c1, 0, cols-1)]

	return profile, cellMeters * float32(step)
}
