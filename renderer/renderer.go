// renderer/renderer.go
// Copyright(c) 2024-2026 radioscape contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package renderer

// Renderer abstracts the GPU texture operations the tile pipeline
// needs. There is currently a single implementation of it, the OpenGL
// one, though keeping these details behind an interface lets the tile
// and viewshed packages run in tests without a GL context.
type Renderer interface {
	// CreateTextureRGBA returns an identifier for a texture holding the
	// given row-major RGBA pixels.
	CreateTextureRGBA(pix []byte, width, height int) uint32

	// CreateTextureR8 and CreateTextureR32F allocate single-channel
	// textures sized for a rows x cols overlay grid; contents are
	// undefined until updated.
	CreateTextureR8(rows, cols int) uint32
	CreateTextureR32F(rows, cols int) uint32

	UpdateTextureR8(id uint32, pix []byte, rows, cols int)
	UpdateTextureR32F(id uint32, pix []float32, rows, cols int)

	DeleteTexture(id uint32)

	// Dispose releases resources allocated by the renderer.
	Dispose()
}
