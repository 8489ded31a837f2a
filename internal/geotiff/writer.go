package geotiff

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
)

const compressionDeflate = 8

// targetStripSize bounds the uncompressed size of each strip so very wide
// canvases still compress in bounded chunks.
const targetStripSize = 1 << 20

// Write writes a single-band GeoTIFF. Samples are taken from pix (row-major,
// len Width*Height); for Uint8 output each sample must already fit in a byte,
// which the quantizer guarantees. The file is written to a temporary name in
// the destination directory and renamed into place so a failed write never
// leaves a truncated output behind.
func Write(path string, h Header, pix []uint16) (err error) {
	if len(pix) != h.Width*h.Height {
		return fmt.Errorf("pixel buffer has %d samples, want %dx%d", len(pix), h.Width, h.Height)
	}
	if h.DType != Uint8 && h.DType != Uint16 {
		return fmt.Errorf("unknown output dtype %q", h.DType)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".mosaic-*.tif")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = writeTIFF(tmp, h, pix); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func writeTIFF(f *os.File, h Header, pix []uint16) error {
	le := binary.LittleEndian
	bytesPerSample := h.DType.Bits() / 8
	rowBytes := h.Width * bytesPerSample

	rowsPerStrip := targetStripSize / rowBytes
	if rowsPerStrip < 1 {
		rowsPerStrip = 1
	}
	if rowsPerStrip > h.Height {
		rowsPerStrip = h.Height
	}
	stripCount := (h.Height + rowsPerStrip - 1) / rowsPerStrip

	// Header with a placeholder IFD offset, patched once the strips and the
	// value area are on disk.
	if _, err := f.Write([]byte{'I', 'I', 42, 0, 0, 0, 0, 0}); err != nil {
		return err
	}

	stripOffsets := make([]uint32, stripCount)
	stripSizes := make([]uint32, stripCount)
	pos := uint32(8)

	raw := make([]byte, 0, rowsPerStrip*rowBytes)
	var compressed bytes.Buffer
	for s := 0; s < stripCount; s++ {
		rowLo := s * rowsPerStrip
		rowHi := rowLo + rowsPerStrip
		if rowHi > h.Height {
			rowHi = h.Height
		}

		raw = raw[:0]
		for row := rowLo; row < rowHi; row++ {
			line := pix[row*h.Width : (row+1)*h.Width]
			if bytesPerSample == 1 {
				for _, v := range line {
					raw = append(raw, byte(v))
				}
			} else {
				for _, v := range line {
					raw = le.AppendUint16(raw, v)
				}
			}
		}

		compressed.Reset()
		zw := zlib.NewWriter(&compressed)
		if _, err := zw.Write(raw); err != nil {
			return err
		}
		if err := zw.Close(); err != nil {
			return err
		}

		if _, err := f.Write(compressed.Bytes()); err != nil {
			return err
		}
		stripOffsets[s] = pos
		stripSizes[s] = uint32(compressed.Len())
		pos += stripSizes[s]
	}

	// TIFF requires the IFD and out-of-line values at even offsets; the
	// compressed strips can end anywhere.
	if pos%2 == 1 {
		if _, err := f.Write([]byte{0}); err != nil {
			return err
		}
		pos++
	}

	b := newTagBuilder(le)
	b.addLong(tagImageWidth, uint32(h.Width))
	b.addLong(tagImageLength, uint32(h.Height))
	b.addShort(tagBitsPerSample, uint16(h.DType.Bits()))
	b.addShort(tagCompression, compressionDeflate)
	b.addShort(tagPhotometric, 1) // min-is-black
	if h.Description != "" {
		b.addASCII(tagImageDesc, h.Description)
	}
	b.addLongs(tagStripOffsets, stripOffsets)
	b.addShort(tagSamplesPerPixel, 1)
	b.addLong(tagRowsPerStrip, uint32(rowsPerStrip))
	b.addLongs(tagStripByteCounts, stripSizes)
	b.addShort(tagPlanarConfig, 1)
	b.addShort(tagSampleFormat, 1) // unsigned integer
	b.addDoubles(tagModelPixelScale, []float64{h.Transform.PixelX, h.Transform.PixelY, 0})
	b.addDoubles(tagModelTiepoint, []float64{0, 0, 0, h.Transform.OriginX, h.Transform.OriginY, 0})
	if h.EPSG != 0 {
		b.addShorts(tagGeoKeyDirectory, geoKeyDirectory(h.EPSG))
	}
	if h.NoData != nil {
		b.addASCII(tagGDALNoData, trimFloat(*h.NoData))
	}

	ifdOffset, out := b.encode(pos)
	if _, err := f.Write(out); err != nil {
		return err
	}

	var off [4]byte
	le.PutUint32(off[:], ifdOffset)
	if _, err := f.WriteAt(off[:], 4); err != nil {
		return err
	}
	return nil
}

// geoKeyDirectory builds the minimal GeoTIFF key set for an EPSG-coded CRS:
// model type, raster type (pixel-is-area), and the CRS code itself.
func geoKeyDirectory(epsg uint16) []uint16 {
	modelProjected := uint16(1)
	csKey := uint16(keyProjectedCSType)
	if epsg >= 4000 && epsg < 5000 {
		// Geographic 2D codes live in the 4xxx range.
		modelProjected = 2
		csKey = keyGeographicType
	}
	return []uint16{
		1, 1, 0, 3,
		keyGTModelType, 0, 1, modelProjected,
		keyGTRasterType, 0, 1, 1,
		csKey, 0, 1, epsg,
	}
}

func trimFloat(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%g", v)
}

// tagBuilder lays out IFD entries with their out-of-line values. TIFF wants
// entries sorted by tag and values word-aligned.
type tagBuilder struct {
	order binary.ByteOrder
	tags  []uint16
	byTag map[uint16]tagValue
}

type tagValue struct {
	typ   uint16
	count uint32
	data  []byte
}

func newTagBuilder(order binary.ByteOrder) *tagBuilder {
	return &tagBuilder{order: order, byTag: make(map[uint16]tagValue)}
}

func (b *tagBuilder) add(tag, typ uint16, count uint32, data []byte) {
	b.tags = append(b.tags, tag)
	b.byTag[tag] = tagValue{typ: typ, count: count, data: data}
}

func (b *tagBuilder) addShort(tag uint16, v uint16) {
	b.addShorts(tag, []uint16{v})
}

func (b *tagBuilder) addShorts(tag uint16, vs []uint16) {
	data := make([]byte, 2*len(vs))
	for i, v := range vs {
		b.order.PutUint16(data[2*i:], v)
	}
	b.add(tag, typeShort, uint32(len(vs)), data)
}

func (b *tagBuilder) addLong(tag uint16, v uint32) {
	b.addLongs(tag, []uint32{v})
}

func (b *tagBuilder) addLongs(tag uint16, vs []uint32) {
	data := make([]byte, 4*len(vs))
	for i, v := range vs {
		b.order.PutUint32(data[4*i:], v)
	}
	b.add(tag, typeLong, uint32(len(vs)), data)
}

func (b *tagBuilder) addDoubles(tag uint16, vs []float64) {
	data := make([]byte, 8*len(vs))
	for i, v := range vs {
		b.order.PutUint64(data[8*i:], math.Float64bits(v))
	}
	b.add(tag, typeDouble, uint32(len(vs)), data)
}

func (b *tagBuilder) addASCII(tag uint16, s string) {
	data := append([]byte(s), 0)
	b.add(tag, typeASCII, uint32(len(data)), data)
}

// encode serialises the value area followed by the IFD, assuming the stream
// position is base. It returns the IFD offset and the bytes to append.
func (b *tagBuilder) encode(base uint32) (uint32, []byte) {
	sort.Slice(b.tags, func(i, j int) bool { return b.tags[i] < b.tags[j] })

	// First pass: place out-of-line values.
	var values bytes.Buffer
	offsets := make(map[uint16]uint32)
	for _, tag := range b.tags {
		v := b.byTag[tag]
		if len(v.data) > 4 {
			if values.Len()%2 == 1 {
				values.WriteByte(0)
			}
			offsets[tag] = base + uint32(values.Len())
			values.Write(v.data)
		}
	}
	if values.Len()%2 == 1 {
		values.WriteByte(0)
	}

	ifdOffset := base + uint32(values.Len())
	var ifd bytes.Buffer
	var u16 [2]byte
	b.order.PutUint16(u16[:], uint16(len(b.tags)))
	ifd.Write(u16[:])

	for _, tag := range b.tags {
		v := b.byTag[tag]
		var entry [12]byte
		b.order.PutUint16(entry[0:2], tag)
		b.order.PutUint16(entry[2:4], v.typ)
		b.order.PutUint32(entry[4:8], v.count)
		if len(v.data) > 4 {
			b.order.PutUint32(entry[8:12], offsets[tag])
		} else {
			copy(entry[8:12], v.data)
		}
		ifd.Write(entry[:])
	}
	ifd.Write([]byte{0, 0, 0, 0}) // no next IFD

	out := append(values.Bytes(), ifd.Bytes()...)
	return ifdOffset, out
}
