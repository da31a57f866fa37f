// geotiff/encode.go
// Copyright(c) 2024-2026 radioscape contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package geotiff

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"io"
	"math"
	"sort"
)

const (
	typeByte     = 1
	typeASCII    = 2
	typeShort    = 3
	typeLong     = 4
	typeRational = 5
	typeDouble   = 12
)

var encOrd = binary.LittleEndian

type encEntry struct {
	tag, typ uint16
	count    uint32
	data     []byte
}

// Encode writes img to w as an uncompressed RGBA TIFF with the given
// georeferencing: tiepoint is the upper-left corner (lon, lat) and
// scale the pixel size in degrees. Viewers that understand the
// ModelTiepoint/ModelPixelScale tags will place the image correctly.
func Encode(w io.Writer, img image.Image, tieLon, tieLat, scaleX, scaleY float64) error {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	if width <= 0 || height <= 0 {
		return fmt.Errorf("empty image")
	}

	pixels := make([]byte, 0, width*height*4)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := img.At(x, y).RGBA()
			pixels = append(pixels, byte(r>>8), byte(g>>8), byte(bl>>8), byte(a>>8))
		}
	}

	entries := []encEntry{
		{tagImageWidth, typeShort, 1, encShorts(uint16(width))},
		{tagImageLength, typeShort, 1, encShorts(uint16(height))},
		{tagBitsPerSample, typeShort, 4, encShorts(8, 8, 8, 8)},
		{tagCompression, typeShort, 1, encShorts(compressionNone)},
		{tagPhotometric, typeShort, 1, encShorts(2)}, // RGB
		{tagStripOffsets, typeLong, 1, nil},          // fixed up below
		{tagSamplesPerPixel, typeShort, 1, encShorts(4)},
		{tagRowsPerStrip, typeShort, 1, encShorts(uint16(height))},
		{tagStripByteCounts, typeLong, 1, encLong(uint32(len(pixels)))},
		{tagModelPixelScale, typeDouble, 3, encDoubles(scaleX, scaleY, 0)},
		{tagModelTiepoint, typeDouble, 6, encDoubles(0, 0, 0, tieLon, tieLat, 0)},
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	// Layout: 8-byte header, IFD, out-of-line tag values, pixel data.
	ifdSize := 2 + 12*len(entries) + 4
	valueOffset := 8 + ifdSize

	var valueData bytes.Buffer
	for i := range entries {
		e := &entries[i]
		if len(e.data) > 4 {
			off := uint32(valueOffset + valueData.Len())
			valueData.Write(e.data)
			e.data = encLong(off)
		}
	}

	pixelsOffset := uint32(valueOffset + valueData.Len())
	for i := range entries {
		if entries[i].tag == tagStripOffsets {
			entries[i].data = encLong(pixelsOffset)
		}
	}

	var out bytes.Buffer
	out.Write([]byte{'I', 'I', 42, 0, 8, 0, 0, 0})
	binary.Write(&out, encOrd, uint16(len(entries)))
	for _, e := range entries {
		binary.Write(&out, encOrd, e.tag)
		binary.Write(&out, encOrd, e.typ)
		binary.Write(&out, encOrd, e.count)
		var val [4]byte
		copy(val[:], e.data)
		out.Write(val[:])
	}
	binary.Write(&out, encOrd, uint32(0)) // no next IFD
	valueData.WriteTo(&out)
	out.Write(pixels)

	_, err := out.WriteTo(w)
	return err
}

func encShorts(vs ...uint16) []byte {
	b := make([]byte, 2*len(vs))
	for i, v := range vs {
		encOrd.PutUint16(b[i*2:], v)
	}
	return b
}

func encLong(v uint32) []byte {
	b := make([]byte, 4)
	encOrd.PutUint32(b, v)
	return b
}

func encDoubles(vs ...float64) []byte {
	b := make([]byte, 8*len(vs))
	for i, v := range vs {
		encOrd.PutUint64(b[i*8:], math.Float64bits(v))
	}
	return b
}
