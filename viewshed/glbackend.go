// viewshed/glbackend.go
// Copyright(c) 2024-2026 radioscape contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package viewshed

import (
	"fmt"
	"strings"

	"github.com/go-gl/gl/v4.3-core/gl"

	"github.com/radioscape/radioscape/log"
)

// GLBackend runs the viewshed passes as OpenGL 4.3 compute shaders.
// All methods must be called from the thread owning the GL context.
type GLBackend struct {
	viewshedProg uint32
	mergeProg    uint32

	elevationTex uint32 // R32F input
	nodeVisTex   uint32 // R8UI per-node scratch
	nodeSigTex   uint32 // R32F per-node scratch
	mergedVisTex uint32 // R8UI accumulated
	mergedSigTex uint32 // R32F accumulated
	overlapTex   uint32 // R8UI accumulated

	rows, cols int
	fence      uintptr

	lg *log.Logger
}

// GLComputeAvailable reports whether the current context supports
// compute shaders.
func GLComputeAvailable() bool {
	var major, minor int32
	gl.GetIntegerv(gl.MAJOR_VERSION, &major)
	gl.GetIntegerv(gl.MINOR_VERSION, &minor)
	return major > 4 || (major == 4 && minor >= 3)
}

func NewGLBackend(lg *log.Logger) (*GLBackend, error) {
	if !GLComputeAvailable() {
		return nil, fmt.Errorf("compute shaders unavailable (need GL 4.3+)")
	}

	b := &GLBackend{lg: lg}
	var err error
	if b.viewshedProg, err = compileComputeProgram(viewshedShaderSrc); err != nil {
		return nil, fmt.Errorf("viewshed shader: %w", err)
	}
	if b.mergeProg, err = compileComputeProgram(mergeShaderSrc); err != nil {
		return nil, fmt.Errorf("merge shader: %w", err)
	}

	lg.Info("GPU viewshed compute shaders initialized")
	return b, nil
}

func compileComputeProgram(src string) (uint32, error) {
	shader := gl.CreateShader(gl.COMPUTE_SHADER)
	csrc, free := gl.Strs(src + "\x00")
	gl.ShaderSource(shader, 1, csrc, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var n int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &n)
		logText := strings.Repeat("\x00", int(n+1))
		gl.GetShaderInfoLog(shader, n, nil, gl.Str(logText))
		gl.DeleteShader(shader)
		return 0, fmt.Errorf("compile: %s", logText)
	}

	prog := gl.CreateProgram()
	gl.AttachShader(prog, shader)
	gl.LinkProgram(prog)
	gl.DeleteShader(shader)

	gl.GetProgramiv(prog, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var n int32
		gl.GetProgramiv(prog, gl.INFO_LOG_LENGTH, &n)
		logText := strings.Repeat("\x00", int(n+1))
		gl.GetProgramInfoLog(prog, n, nil, gl.Str(logText))
		gl.DeleteProgram(prog)
		return 0, fmt.Errorf("link: %s", logText)
	}
	return prog, nil
}

func (b *GLBackend) makeTexture(internalFormat uint32) uint32 {
	var tex uint32
	gl.GenTextures(1, &tex)
	gl.BindTexture(gl.TEXTURE_2D, tex)
	gl.TexStorage2D(gl.TEXTURE_2D, 1, internalFormat, int32(b.cols), int32(b.rows))
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.NEAREST)
	return tex
}

func (b *GLBackend) createTextures(rows, cols int) {
	if b.rows == rows && b.cols == cols && b.elevationTex != 0 {
		return
	}
	b.destroyTextures()
	b.rows, b.cols = rows, cols

	b.elevationTex = b.makeTexture(gl.R32F)
	b.nodeVisTex = b.makeTexture(gl.R8UI)
	b.nodeSigTex = b.makeTexture(gl.R32F)
	b.mergedVisTex = b.makeTexture(gl.R8UI)
	b.mergedSigTex = b.makeTexture(gl.R32F)
	b.overlapTex = b.makeTexture(gl.R8UI)
	gl.BindTexture(gl.TEXTURE_2D, 0)
}

func (b *GLBackend) destroyTextures() {
	for _, tex := range []*uint32{&b.elevationTex, &b.nodeVisTex, &b.nodeSigTex,
		&b.mergedVisTex, &b.mergedSigTex, &b.overlapTex} {
		if *tex != 0 {
			gl.DeleteTextures(1, tex)
			*tex = 0
		}
	}
	b.rows, b.cols = 0, 0
}

func (b *GLBackend) Dispose() {
	b.destroyTextures()
	if b.fence != 0 {
		gl.DeleteSync(b.fence)
		b.fence = 0
	}
	gl.DeleteProgram(b.viewshedProg)
	gl.DeleteProgram(b.mergeProg)
}

func (b *GLBackend) UploadElevation(elevation []float32, rows, cols int) {
	b.createTextures(rows, cols)
	gl.BindTexture(gl.TEXTURE_2D, b.elevationTex)
	gl.TexSubImage2D(gl.TEXTURE_2D, 0, 0, 0, int32(cols), int32(rows),
		gl.RED, gl.FLOAT, gl.Ptr(elevation))
	gl.BindTexture(gl.TEXTURE_2D, 0)
}

func (b *GLBackend) ClearMergeTargets() {
	total := b.rows * b.cols
	if total == 0 {
		return
	}

	// Unpack alignment 1: cols need not be a multiple of 4 for the
	// byte textures.
	gl.PixelStorei(gl.UNPACK_ALIGNMENT, 1)

	zero := make([]uint8, total)
	gl.BindTexture(gl.TEXTURE_2D, b.mergedVisTex)
	gl.TexSubImage2D(gl.TEXTURE_2D, 0, 0, 0, int32(b.cols), int32(b.rows),
		gl.RED_INTEGER, gl.UNSIGNED_BYTE, gl.Ptr(zero))
	gl.BindTexture(gl.TEXTURE_2D, b.overlapTex)
	gl.TexSubImage2D(gl.TEXTURE_2D, 0, 0, 0, int32(b.cols), int32(b.rows),
		gl.RED_INTEGER, gl.UNSIGNED_BYTE, gl.Ptr(zero))

	noSignal := make([]float32, total)
	for i := range noSignal {
		noSignal[i] = NoSignal
	}
	gl.BindTexture(gl.TEXTURE_2D, b.mergedSigTex)
	gl.TexSubImage2D(gl.TEXTURE_2D, 0, 0, 0, int32(b.cols), int32(b.rows),
		gl.RED, gl.FLOAT, gl.Ptr(noSignal))

	gl.PixelStorei(gl.UNPACK_ALIGNMENT, 4)
	gl.BindTexture(gl.TEXTURE_2D, 0)
}

func (b *GLBackend) uniform(prog uint32, name string) int32 {
	return gl.GetUniformLocation(prog, gl.Str(name+"\x00"))
}

func (b *GLBackend) DispatchRows(job NodeJob, cellMeters float32, rowOffset, rowCount int) {
	gl.UseProgram(b.viewshedProg)
	gl.Uniform2i(b.uniform(b.viewshedProg, "uGridSize"), int32(b.cols), int32(b.rows))
	gl.Uniform2i(b.uniform(b.viewshedProg, "uNodeCell"), int32(job.Col), int32(job.Row))
	gl.Uniform1i(b.uniform(b.viewshedProg, "uRowOffset"), int32(rowOffset))
	gl.Uniform1f(b.uniform(b.viewshedProg, "uObserverHeight"), job.ObserverHeight)
	gl.Uniform1i(b.uniform(b.viewshedProg, "uMaxRangeCells"), int32(job.MaxRangeCells))
	gl.Uniform1f(b.uniform(b.viewshedProg, "uTxPowerDbm"), job.TxPowerDbm)
	gl.Uniform1f(b.uniform(b.viewshedProg, "uAntennaGainDbi"), job.AntennaGainDbi)
	gl.Uniform1f(b.uniform(b.viewshedProg, "uCableLossDb"), job.CableLossDb)
	gl.Uniform1f(b.uniform(b.viewshedProg, "uRxSensitivityDbm"), job.RxSensDbm)
	gl.Uniform1f(b.uniform(b.viewshedProg, "uFreqMhz"), job.FreqMHz)
	gl.Uniform1f(b.uniform(b.viewshedProg, "uCellMeters"), cellMeters)
	gl.Uniform1f(b.uniform(b.viewshedProg, "uEarthCurveFactor"), earthCurveFactor)

	gl.BindImageTexture(0, b.elevationTex, 0, false, 0, gl.READ_ONLY, gl.R32F)
	gl.BindImageTexture(1, b.nodeVisTex, 0, false, 0, gl.WRITE_ONLY, gl.R8UI)
	gl.BindImageTexture(2, b.nodeSigTex, 0, false, 0, gl.WRITE_ONLY, gl.R32F)

	groupsX := uint32((b.cols + 15) / 16)
	groupsY := uint32((rowCount + 15) / 16)
	gl.DispatchCompute(groupsX, groupsY, 1)
	gl.MemoryBarrier(gl.SHADER_IMAGE_ACCESS_BARRIER_BIT)
}

func (b *GLBackend) DispatchMerge() {
	gl.UseProgram(b.mergeProg)
	gl.Uniform2i(b.uniform(b.mergeProg, "uGridSize"), int32(b.cols), int32(b.rows))

	gl.BindImageTexture(0, b.nodeVisTex, 0, false, 0, gl.READ_ONLY, gl.R8UI)
	gl.BindImageTexture(1, b.nodeSigTex, 0, false, 0, gl.READ_ONLY, gl.R32F)
	gl.BindImageTexture(2, b.mergedVisTex, 0, false, 0, gl.READ_WRITE, gl.R8UI)
	gl.BindImageTexture(3, b.mergedSigTex, 0, false, 0, gl.READ_WRITE, gl.R32F)
	gl.BindImageTexture(4, b.overlapTex, 0, false, 0, gl.READ_WRITE, gl.R8UI)

	groupsX := uint32((b.cols + 15) / 16)
	groupsY := uint32((b.rows + 15) / 16)
	gl.DispatchCompute(groupsX, groupsY, 1)
	gl.MemoryBarrier(gl.SHADER_IMAGE_ACCESS_BARRIER_BIT)
}

func (b *GLBackend) PlaceFence() {
	if b.fence != 0 {
		gl.DeleteSync(b.fence)
	}
	b.fence = gl.FenceSync(gl.SYNC_GPU_COMMANDS_COMPLETE, 0)
	gl.Flush()
}

func (b *GLBackend) FenceSignaled() bool {
	if b.fence == 0 {
		return true
	}
	status := gl.ClientWaitSync(b.fence, 0, 0)
	return status == gl.ALREADY_SIGNALED || status == gl.CONDITION_SATISFIED
}

func (b *GLBackend) WaitFence() {
	if b.fence == 0 {
		return
	}
	gl.ClientWaitSync(b.fence, gl.SYNC_FLUSH_COMMANDS_BIT, ^uint64(0))
}

func (b *GLBackend) ReadBack() (vis []uint8, sig []float32, overlap []uint8) {
	total := b.rows * b.cols
	vis = make([]uint8, total)
	sig = make([]float32, total)
	overlap = make([]uint8, total)
	if total == 0 {
		return
	}

	gl.PixelStorei(gl.PACK_ALIGNMENT, 1)

	gl.BindTexture(gl.TEXTURE_2D, b.mergedVisTex)
	gl.GetTexImage(gl.TEXTURE_2D, 0, gl.RED_INTEGER, gl.UNSIGNED_BYTE, gl.Ptr(vis))
	gl.BindTexture(gl.TEXTURE_2D, b.mergedSigTex)
	gl.GetTexImage(gl.TEXTURE_2D, 0, gl.RED, gl.FLOAT, gl.Ptr(sig))
	gl.BindTexture(gl.TEXTURE_2D, b.overlapTex)
	gl.GetTexImage(gl.TEXTURE_2D, 0, gl.RED_INTEGER, gl.UNSIGNED_BYTE, gl.Ptr(overlap))

	gl.PixelStorei(gl.PACK_ALIGNMENT, 4)
	gl.BindTexture(gl.TEXTURE_2D, 0)
	return
}
