// renderer/oglrenderer.go
// Copyright(c) 2024-2026 radioscape contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package renderer

import (
	"github.com/go-gl/gl/v4.3-core/gl"

	"github.com/radioscape/radioscape/log"
)

// OpenGLRenderer implements Renderer on a current OpenGL 4.3 context.
// All methods must be called from the thread that owns the context.
type OpenGLRenderer struct {
	createdTextures []uint32
	lg              *log.Logger
}

func NewOpenGLRenderer(lg *log.Logger) (*OpenGLRenderer, error) {
	if err := gl.Init(); err != nil {
		return nil, err
	}
	lg.Infof("OpenGL version %s", gl.GoStr(gl.GetString(gl.VERSION)))
	return &OpenGLRenderer{lg: lg}, nil
}

func (r *OpenGLRenderer) createTexture(internalFormat int32, rows, cols int) uint32 {
	var id uint32
	gl.GenTextures(1, &id)
	gl.BindTexture(gl.TEXTURE_2D, id)
	gl.TexStorage2D(gl.TEXTURE_2D, 1, uint32(internalFormat), int32(cols), int32(rows))
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.BindTexture(gl.TEXTURE_2D, 0)

	r.createdTextures = append(r.createdTextures, id)
	return id
}

func (r *OpenGLRenderer) CreateTextureRGBA(pix []byte, width, height int) uint32 {
	id := r.createTexture(gl.RGBA8, height, width)
	gl.BindTexture(gl.TEXTURE_2D, id)
	gl.TexSubImage2D(gl.TEXTURE_2D, 0, 0, 0, int32(width), int32(height),
		gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(pix))
	gl.BindTexture(gl.TEXTURE_2D, 0)
	return id
}

func (r *OpenGLRenderer) CreateTextureR8(rows, cols int) uint32 {
	return r.createTexture(gl.R8, rows, cols)
}

func (r *OpenGLRenderer) CreateTextureR32F(rows, cols int) uint32 {
	return r.createTexture(gl.R32F, rows, cols)
}

func (r *OpenGLRenderer) UpdateTextureR8(id uint32, pix []byte, rows, cols int) {
	gl.PixelStorei(gl.UNPACK_ALIGNMENT, 1)
	gl.BindTexture(gl.TEXTURE_2D, id)
	gl.TexSubImage2D(gl.TEXTURE_2D, 0, 0, 0, int32(cols), int32(rows),
		gl.RED, gl.UNSIGNED_BYTE, gl.Ptr(pix))
	gl.PixelStorei(gl.UNPACK_ALIGNMENT, 4)
	gl.BindTexture(gl.TEXTURE_2D, 0)
}

func (r *OpenGLRenderer) UpdateTextureR32F(id uint32, pix []float32, rows, cols int) {
	gl.BindTexture(gl.TEXTURE_2D, id)
	gl.TexSubImage2D(gl.TEXTURE_2D, 0, 0, 0, int32(cols), int32(rows),
		gl.RED, gl.FLOAT, gl.Ptr(pix))
	gl.BindTexture(gl.TEXTURE_2D, 0)
}

func (r *OpenGLRenderer) DeleteTexture(id uint32) {
	gl.DeleteTextures(1, &id)
	for i, t := range r.createdTextures {
		if t == id {
			r.createdTextures = append(r.createdTextures[:i], r.createdTextures[i+1:]...)
			break
		}
	}
}

func (r *OpenGLRenderer) Dispose() {
	for _, id := range r.createdTextures {
		gl.DeleteTextures(1, &id)
	}
	r.createdTextures = nil
}
