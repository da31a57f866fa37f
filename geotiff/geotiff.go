// geotiff/geotiff.go
// Copyright(c) 2024-2026 radioscape contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package geotiff reads and writes the narrow slice of GeoTIFF that
// elevation tiles use: single-band grids in strips, uncompressed or
// deflate, with ModelTiepoint/ModelPixelScale georeferencing. It does
// not handle tiled layout, multi-band images, or BigTIFF.
package geotiff

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"io"
	"math"

	"github.com/klauspost/compress/zlib"
	xtiff "golang.org/x/image/tiff"
)

const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagPhotometric     = 262
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagSampleFormat    = 339

	tagModelPixelScale = 33550
	tagModelTiepoint   = 33922
)

const (
	compressionNone    = 1
	compressionDeflate = 8
)

// Info is the metadata extracted from a GeoTIFF header.
type Info struct {
	Width, Height int
	BitsPerSample int
	SampleFormat  int // 1=uint, 2=int, 3=float
	Compression   int
	RowsPerStrip  int

	// Upper-left corner (lon, lat) and pixel size in degrees, from the
	// ModelTiepoint and ModelPixelScale tags.
	TieX, TieY     float64
	ScaleX, ScaleY float64
	HasGeo         bool

	stripOffsets    []uint64
	stripByteCounts []uint64
}

type byteOrderReader struct {
	data []byte
	ord  binary.ByteOrder
}

func (r byteOrderReader) u16(off uint64) uint16 {
	return r.ord.Uint16(r.data[off:])
}

func (r byteOrderReader) u32(off uint64) uint32 {
	return r.ord.Uint32(r.data[off:])
}

func (r byteOrderReader) f64(off uint64) float64 {
	return math.Float64frombits(r.ord.Uint64(r.data[off:]))
}

type ifdEntry struct {
	tag, typ    uint16
	count       uint32
	valueOffset uint32 // inline value or offset to value data
	fieldOffset uint64 // offset of the entry's value field itself
}

func typeSize(typ uint16) uint64 {
	switch typ {
	case 3, 8: // SHORT, SSHORT
		return 2
	case 4, 9, 11: // LONG, SLONG, FLOAT
		return 4
	case 5, 10, 12: // RATIONAL, SRATIONAL, DOUBLE
		return 8
	default:
		return 1
	}
}

// Parse extracts Info from a GeoTIFF header; data may be truncated to
// just the header region as long as the IFD and tag values fit.
func Parse(data []byte) (Info, error) {
	var info Info
	if len(data) < 8 {
		return info, fmt.Errorf("truncated TIFF header")
	}

	var ord binary.ByteOrder
	switch {
	case data[0] == 'I' && data[1] == 'I':
		ord = binary.LittleEndian
	case data[0] == 'M' && data[1] == 'M':
		ord = binary.BigEndian
	default:
		return info, fmt.Errorf("not a TIFF file")
	}
	r := byteOrderReader{data: data, ord: ord}

	if magic := r.u16(2); magic != 42 {
		return info, fmt.Errorf("not a TIFF file (magic %d)", magic)
	}

	ifdOffset := uint64(r.u32(4))
	if ifdOffset+2 > uint64(len(data)) {
		return info, fmt.Errorf("IFD offset out of range")
	}

	n := uint64(r.u16(ifdOffset))
	for i := uint64(0); i < n; i++ {
		off := ifdOffset + 2 + i*12
		if off+12 > uint64(len(data)) {
			break
		}
		e := ifdEntry{
			tag:         r.u16(off),
			typ:         r.u16(off + 2),
			count:       r.u32(off + 4),
			valueOffset: r.u32(off + 8),
			fieldOffset: off + 8,
		}

		// Single SHORT values are stored inline in the value field.
		single := func() int {
			if e.typ == 3 && e.count == 1 {
				return int(r.u16(e.fieldOffset))
			}
			return int(e.valueOffset)
		}

		switch e.tag {
		case tagImageWidth:
			info.Width = single()
		case tagImageLength:
			info.Height = single()
		case tagBitsPerSample:
			info.BitsPerSample = single()
		case tagCompression:
			info.Compression = single()
		case tagRowsPerStrip:
			info.RowsPerStrip = single()
		case tagSampleFormat:
			info.SampleFormat = single()
		case tagStripOffsets:
			info.stripOffsets = readUintArray(r, e)
		case tagStripByteCounts:
			info.stripByteCounts = readUintArray(r, e)
		case tagModelTiepoint:
			if v := readDoubleArray(r, e); len(v) >= 6 {
				info.TieX, info.TieY = v[3], v[4]
				info.HasGeo = true
			}
		case tagModelPixelScale:
			if v := readDoubleArray(r, e); len(v) >= 2 {
				info.ScaleX, info.ScaleY = v[0], v[1]
				info.HasGeo = true
			}
		}
	}

	if info.RowsPerStrip == 0 {
		info.RowsPerStrip = info.Height
	}
	if info.Width <= 0 || info.Height <= 0 {
		return info, fmt.Errorf("missing image dimensions")
	}
	return info, nil
}

func readUintArray(r byteOrderReader, e ifdEntry) []uint64 {
	ts := typeSize(e.typ)
	total := ts * uint64(e.count)

	base := uint64(e.valueOffset)
	if total <= 4 {
		base = e.fieldOffset
	} else if base+total > uint64(len(r.data)) {
		return nil
	}

	vals := make([]uint64, 0, e.count)
	for i := uint64(0); i < uint64(e.count); i++ {
		switch e.typ {
		case 3:
			vals = append(vals, uint64(r.u16(base+i*2)))
		case 4:
			vals = append(vals, uint64(r.u32(base+i*4)))
		default:
			vals = append(vals, uint64(r.data[base+i]))
		}
	}
	return vals
}

func readDoubleArray(r byteOrderReader, e ifdEntry) []float64 {
	if e.typ != 12 {
		return nil
	}
	base := uint64(e.valueOffset)
	if base+8*uint64(e.count) > uint64(len(r.data)) {
		return nil
	}
	vals := make([]float64, e.count)
	for i := range vals {
		vals[i] = r.f64(base + uint64(i)*8)
	}
	return vals
}

// ReadElevation decodes the single-band sample grid as row-major
// float32 meters. It first tries the x/image tiff decoder, which
// covers integer-sample files; float-sample files, which that decoder
// rejects, are read strip by strip from the parsed layout.
func ReadElevation(data []byte, info Info) ([]float32, error) {
	if info.SampleFormat != 3 {
		if img, err := xtiff.Decode(bytes.NewReader(data)); err == nil {
			if elev := elevationFromImage(img, info); elev != nil {
				return elev, nil
			}
		}
	}
	return readStrips(data, info)
}

func elevationFromImage(img image.Image, info Info) []float32 {
	g, ok := img.(*image.Gray16)
	if !ok {
		return nil
	}
	b := g.Bounds()
	if b.Dx() != info.Width || b.Dy() != info.Height {
		return nil
	}

	elev := make([]float32, info.Width*info.Height)
	for y := 0; y < info.Height; y++ {
		for x := 0; x < info.Width; x++ {
			v := g.Gray16At(b.Min.X+x, b.Min.Y+y).Y
			if info.SampleFormat == 2 {
				elev[y*info.Width+x] = float32(int16(v))
			} else {
				elev[y*info.Width+x] = float32(v)
			}
		}
	}
	return elev
}

func readStrips(data []byte, info Info) ([]float32, error) {
	if len(info.stripOffsets) == 0 {
		return nil, fmt.Errorf("no strip offsets")
	}

	var ord binary.ByteOrder = binary.LittleEndian
	if data[0] == 'M' {
		ord = binary.BigEndian
	}

	bytesPerSample := info.BitsPerSample / 8
	if bytesPerSample == 0 {
		return nil, fmt.Errorf("unsupported bits per sample %d", info.BitsPerSample)
	}
	rowBytes := info.Width * bytesPerSample

	elev := make([]float32, info.Width*info.Height)
	row := 0

	for s, offset := range info.stripOffsets {
		var byteCount uint64
		if s < len(info.stripByteCounts) {
			byteCount = info.stripByteCounts[s]
		}
		if offset+byteCount > uint64(len(data)) {
			break
		}

		strip := data[offset : offset+byteCount]
		rowsThisStrip := min(info.RowsPerStrip, info.Height-row)

		switch info.Compression {
		case compressionNone:
		case compressionDeflate:
			zr, err := zlib.NewReader(bytes.NewReader(strip))
			if err != nil {
				return nil, fmt.Errorf("strip %d: %w", s, err)
			}
			strip, err = io.ReadAll(zr)
			zr.Close()
			if err != nil {
				return nil, fmt.Errorf("strip %d: %w", s, err)
			}
		default:
			return nil, fmt.Errorf("unsupported compression %d", info.Compression)
		}

		for r := 0; r < rowsThisStrip && row+r < info.Height; r++ {
			if (r+1)*rowBytes > len(strip) {
				break
			}
			rowData := strip[r*rowBytes:]
			out := elev[(row+r)*info.Width:]
			for c := 0; c < info.Width; c++ {
				p := rowData[c*bytesPerSample:]
				switch {
				case info.SampleFormat == 3 && info.BitsPerSample == 32:
					out[c] = math.Float32frombits(ord.Uint32(p))
				case info.SampleFormat == 3 && info.BitsPerSample == 64:
					out[c] = float32(math.Float64frombits(ord.Uint64(p)))
				case info.SampleFormat == 2 && info.BitsPerSample == 16:
					out[c] = float32(int16(ord.Uint16(p)))
				case info.BitsPerSample == 16:
					out[c] = float32(ord.Uint16(p))
				}
			}
		}
		row += rowsThisStrip
	}

	return elev, nil
}
