// viewshed/shaders.go
// Copyright(c) 2024-2026 radioscape contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package viewshed

// Compute shader sources. The propagation pass mirrors the CPU
// implementation in Compute: ray march with 4/3 earth curvature, one
// dominant knife edge, FSPL plus ITU-R P.526 diffraction loss.

const viewshedShaderSrc = `#version 430 core
layout(local_size_x = 16, local_size_y = 16) in;

layout(r32f, binding = 0) uniform readonly  image2D uElevation;
layout(r8ui, binding = 1) uniform writeonly uimage2D uVisibility;
layout(r32f, binding = 2) uniform writeonly image2D uSignal;

uniform ivec2 uGridSize;        // (cols, rows)
uniform ivec2 uNodeCell;        // (col, row)
uniform int   uRowOffset;
uniform float uObserverHeight;
uniform int   uMaxRangeCells;
uniform float uTxPowerDbm;
uniform float uAntennaGainDbi;
uniform float uCableLossDb;
uniform float uRxSensitivityDbm;
uniform float uFreqMhz;
uniform float uCellMeters;
uniform float uEarthCurveFactor;

void main() {
    int c = int(gl_GlobalInvocationID.x);
    int r = int(gl_GlobalInvocationID.y) + uRowOffset;
    if (c >= uGridSize.x || r >= uGridSize.y)
        return;

    ivec2 cell = ivec2(c, r);
    int dr = r - uNodeCell.y;
    int dc = c - uNodeCell.x;
    float distCells = sqrt(float(dr * dr + dc * dc));

    if (distCells < 0.5) {
        imageStore(uVisibility, cell, uvec4(1u));
        imageStore(uSignal, cell, vec4(-60.0));
        return;
    }
    if (distCells > float(uMaxRangeCells)) {
        imageStore(uVisibility, cell, uvec4(0u));
        imageStore(uSignal, cell, vec4(-999.0));
        return;
    }

    int steps = int(distCells * 1.5) + 1;
    float targetElev = imageLoad(uElevation, cell).r;
    float dTotal = distCells * uCellMeters;

    float maxViolation = 0.0;
    float bestT = 0.0;
    for (int s = 1; s < steps; ++s) {
        float t = float(s) / float(steps);
        int si = int(float(uNodeCell.y) + float(dr) * t);
        int sj = int(float(uNodeCell.x) + float(dc) * t);
        if (si < 0 || si >= uGridSize.y || sj < 0 || sj >= uGridSize.x)
            continue;

        float dAlong = dTotal * t;
        float dRemain = dTotal * (1.0 - t);
        float earthCurve = dAlong * dRemain * uEarthCurveFactor;
        float neededH = uObserverHeight + (targetElev - uObserverHeight) * t - earthCurve;
        float violation = imageLoad(uElevation, ivec2(sj, si)).r - neededH;
        if (violation > maxViolation) {
            maxViolation = violation;
            bestT = t;
        }
    }

    float distKm = max(dTotal / 1000.0, 0.01);
    float fspl = 20.0 * log(distKm) / log(10.0)
               + 20.0 * log(uFreqMhz) / log(10.0) + 32.44;

    float diffLoss = 0.0;
    if (maxViolation > 0.0) {
        float lambda = 299.792458 / uFreqMhz;
        float d1 = dTotal * bestT;
        float d2 = dTotal * (1.0 - bestT);
        float dHarmonic = d1 * d2 / (d1 + d2);
        float v = maxViolation * sqrt(2.0 / (lambda * dHarmonic));
        if (v > -0.78) {
            diffLoss = 6.9 + 20.0 * log(sqrt((v - 0.1) * (v - 0.1) + 1.0) + v - 0.1) / log(10.0);
        }
    }

    float received = uTxPowerDbm + uAntennaGainDbi - uCableLossDb - fspl - diffLoss;
    imageStore(uVisibility, cell, uvec4(received >= uRxSensitivityDbm ? 1u : 0u));
    imageStore(uSignal, cell, vec4(received));
}
`

const mergeShaderSrc = `#version 430 core
layout(local_size_x = 16, local_size_y = 16) in;

layout(r8ui, binding = 0) uniform readonly  uimage2D uNodeVis;
layout(r32f, binding = 1) uniform readonly  image2D  uNodeSig;
layout(r8ui, binding = 2) uniform           uimage2D uMergedVis;
layout(r32f, binding = 3) uniform           image2D  uMergedSig;
layout(r8ui, binding = 4) uniform           uimage2D uOverlap;

uniform ivec2 uGridSize; // (cols, rows)

void main() {
    int c = int(gl_GlobalInvocationID.x);
    int r = int(gl_GlobalInvocationID.y);
    if (c >= uGridSize.x || r >= uGridSize.y)
        return;

    ivec2 cell = ivec2(c, r);
    uint vis = imageLoad(uNodeVis, cell).r;
    if (vis == 0u)
        return;

    imageStore(uMergedVis, cell, uvec4(1u));
    imageStore(uOverlap, cell, uvec4(imageLoad(uOverlap, cell).r + 1u));

    float sig = imageLoad(uNodeSig, cell).r;
    if (sig > imageLoad(uMergedSig, cell).r)
        imageStore(uMergedSig, cell, vec4(sig));
}
`
