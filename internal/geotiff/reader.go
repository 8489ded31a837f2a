package geotiff

import (
	"encoding/binary"
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"golang.org/x/image/tiff"

	"github.com/LandscapeGeoinformatics/slf-segmentation/internal/geo"
)

// TIFF tags used by the reader. The geo tags follow the GeoTIFF 1.1 layout
// produced by GDAL.
const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagPhotometric     = 262
	tagImageDesc       = 270
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagPlanarConfig    = 284
	tagSampleFormat    = 339
	tagModelPixelScale = 33550
	tagModelTiepoint   = 33922
	tagGeoKeyDirectory = 34735
	tagGDALNoData      = 42113
)

// GeoTIFF keys read out of the GeoKeyDirectory.
const (
	keyGTModelType     = 1024
	keyGTRasterType    = 1025
	keyGeographicType  = 2048
	keyProjectedCSType = 3072
)

const (
	typeASCII  = 2
	typeShort  = 3
	typeLong   = 4
	typeDouble = 12
)

var typeSizes = map[uint16]uint32{
	1: 1, typeASCII: 1, typeShort: 2, typeLong: 4, 5: 8, typeDouble: 8,
}

type ifdEntry struct {
	typ   uint16
	count uint32
	// raw holds the 4-byte value/offset field as stored in the entry.
	raw [4]byte
}

type ifd struct {
	order   binary.ByteOrder
	entries map[uint16]ifdEntry
	r       io.ReadSeeker
}

// ReadHeaderFile reads georeferencing and shape from a GeoTIFF without
// decoding pixels. The canvas resolver uses this to size the output from
// patch headers alone.
func ReadHeaderFile(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, err
	}
	defer f.Close()

	h, err := ReadHeader(f)
	if err != nil {
		return Header{}, fmt.Errorf("%s: %w", path, err)
	}
	return h, nil
}

// ReadHeader parses the first IFD of a TIFF stream into a Header.
func ReadHeader(r io.ReadSeeker) (Header, error) {
	d, err := parseIFD(r)
	if err != nil {
		return Header{}, err
	}

	var h Header

	width, err := d.uintVal(tagImageWidth)
	if err != nil {
		return Header{}, err
	}
	height, err := d.uintVal(tagImageLength)
	if err != nil {
		return Header{}, err
	}
	h.Width, h.Height = int(width), int(height)

	bits, err := d.uintVal(tagBitsPerSample)
	if err != nil {
		bits = 1 // bilevel default; rejected below
	}
	switch bits {
	case 8:
		h.DType = Uint8
	case 16:
		h.DType = Uint16
	default:
		return Header{}, fmt.Errorf("unsupported bits per sample %d", bits)
	}

	if samples, err := d.uintVal(tagSamplesPerPixel); err == nil && samples != 1 {
		return Header{}, fmt.Errorf("multi-band raster (%d samples per pixel) not supported", samples)
	}

	scale, err := d.doubleVals(tagModelPixelScale)
	if err != nil || len(scale) < 2 {
		return Header{}, fmt.Errorf("missing ModelPixelScale tag: not a GeoTIFF")
	}
	tie, err := d.doubleVals(tagModelTiepoint)
	if err != nil || len(tie) < 6 {
		return Header{}, fmt.Errorf("missing ModelTiepoint tag: not a GeoTIFF")
	}
	// Tiepoint maps raster point (i, j) to world point (x, y); anchor the
	// origin back at pixel (0, 0).
	i, j := tie[0], tie[1]
	x, y := tie[3], tie[4]
	h.Transform = geo.Transform{
		OriginX: x - i*scale[0],
		OriginY: y + j*scale[1],
		PixelX:  scale[0],
		PixelY:  scale[1],
	}

	if keys, err := d.shortVals(tagGeoKeyDirectory); err == nil {
		h.EPSG = epsgFromGeoKeys(keys)
	}
	if s, err := d.asciiVal(tagGDALNoData); err == nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			h.NoData = &v
		}
	}
	if s, err := d.asciiVal(tagImageDesc); err == nil {
		h.Description = s
	}

	return h, nil
}

// ReadFile decodes a full single-band raster, header and pixels.
func ReadFile(path string) (*Raster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h, err := ReadHeader(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	img, err := tiff.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: decode: %w", path, err)
	}

	data, err := grayToFloat(img)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(data) != h.Width*h.Height {
		return nil, fmt.Errorf("%s: decoded %d samples, header says %dx%d", path, len(data), h.Width, h.Height)
	}
	return &Raster{Header: h, Data: data}, nil
}

func grayToFloat(img image.Image) ([]float32, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]float32, w*h)

	switch im := img.(type) {
	case *image.Gray:
		for row := 0; row < h; row++ {
			src := im.Pix[row*im.Stride : row*im.Stride+w]
			dst := out[row*w:]
			for col, v := range src {
				dst[col] = float32(v)
			}
		}
	case *image.Gray16:
		for row := 0; row < h; row++ {
			src := im.Pix[row*im.Stride : row*im.Stride+2*w]
			dst := out[row*w:]
			for col := 0; col < w; col++ {
				dst[col] = float32(uint16(src[2*col])<<8 | uint16(src[2*col+1]))
			}
		}
	default:
		return nil, fmt.Errorf("unsupported pixel layout %T", img)
	}
	return out, nil
}

func epsgFromGeoKeys(keys []uint16) uint16 {
	// Directory header is four shorts: version, revision, minor, key count.
	if len(keys) < 4 {
		return 0
	}
	n := int(keys[3])
	var code uint16
	for k := 0; k < n; k++ {
		base := 4 + 4*k
		if base+3 >= len(keys) {
			break
		}
		id, loc, val := keys[base], keys[base+1], keys[base+3]
		if loc != 0 {
			continue // value lives in another tag; only inline codes matter here
		}
		switch id {
		case keyProjectedCSType:
			return val
		case keyGeographicType:
			code = val
		}
	}
	return code
}

func parseIFD(r io.ReadSeeker) (*ifd, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	var head [8]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, fmt.Errorf("short TIFF header: %w", err)
	}

	var order binary.ByteOrder
	switch string(head[0:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return nil, fmt.Errorf("not a TIFF file")
	}
	if order.Uint16(head[2:4]) != 42 {
		return nil, fmt.Errorf("bad TIFF magic")
	}

	offset := order.Uint32(head[4:8])
	if _, err := r.Seek(int64(offset), io.SeekStart); err != nil {
		return nil, err
	}

	var cntBuf [2]byte
	if _, err := io.ReadFull(r, cntBuf[:]); err != nil {
		return nil, err
	}
	count := order.Uint16(cntBuf[:])

	buf := make([]byte, 12*int(count))
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	d := &ifd{order: order, entries: make(map[uint16]ifdEntry, count), r: r}
	for k := 0; k < int(count); k++ {
		e := buf[12*k : 12*k+12]
		entry := ifdEntry{
			typ:   order.Uint16(e[2:4]),
			count: order.Uint32(e[4:8]),
		}
		copy(entry.raw[:], e[8:12])
		d.entries[order.Uint16(e[0:2])] = entry
	}
	return d, nil
}

// valueBytes returns the raw value bytes of an entry, following the offset
// when the value does not fit inline.
func (d *ifd) valueBytes(e ifdEntry) ([]byte, error) {
	size, ok := typeSizes[e.typ]
	if !ok {
		return nil, fmt.Errorf("unhandled TIFF type %d", e.typ)
	}
	total := size * e.count
	if total <= 4 {
		return e.raw[:total], nil
	}
	if _, err := d.r.Seek(int64(d.order.Uint32(e.raw[:])), io.SeekStart); err != nil {
		return nil, err
	}
	buf := make([]byte, total)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (d *ifd) uintVal(tag uint16) (uint32, error) {
	e, ok := d.entries[tag]
	if !ok {
		return 0, fmt.Errorf("missing tag %d", tag)
	}
	buf, err := d.valueBytes(e)
	if err != nil {
		return 0, err
	}
	switch e.typ {
	case typeShort:
		return uint32(d.order.Uint16(buf[:2])), nil
	case typeLong:
		return d.order.Uint32(buf[:4]), nil
	}
	return 0, fmt.Errorf("tag %d has non-integer type %d", tag, e.typ)
}

func (d *ifd) shortVals(tag uint16) ([]uint16, error) {
	e, ok := d.entries[tag]
	if !ok {
		return nil, fmt.Errorf("missing tag %d", tag)
	}
	buf, err := d.valueBytes(e)
	if err != nil {
		return nil, err
	}
	out := make([]uint16, e.count)
	for i := range out {
		out[i] = d.order.Uint16(buf[2*i : 2*i+2])
	}
	return out, nil
}

func (d *ifd) doubleVals(tag uint16) ([]float64, error) {
	e, ok := d.entries[tag]
	if !ok {
		return nil, fmt.Errorf("missing tag %d", tag)
	}
	if e.typ != typeDouble {
		return nil, fmt.Errorf("tag %d has type %d, want DOUBLE", tag, e.typ)
	}
	buf, err := d.valueBytes(e)
	if err != nil {
		return nil, err
	}
	out := make([]float64, e.count)
	for i := range out {
		out[i] = math.Float64frombits(d.order.Uint64(buf[8*i : 8*i+8]))
	}
	return out, nil
}

func (d *ifd) asciiVal(tag uint16) (string, error) {
	e, ok := d.entries[tag]
	if !ok {
		return "", fmt.Errorf("missing tag %d", tag)
	}
	buf, err := d.valueBytes(e)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(buf), "\x00"), nil
}
