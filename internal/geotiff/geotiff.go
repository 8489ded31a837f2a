// Package geotiff reads and writes single-band GeoTIFF rasters.
//
// Reading uses golang.org/x/image/tiff for pixel decoding plus a small IFD
// scan for the GeoTIFF tags (pixel scale, tiepoint, EPSG code, nodata) that
// the image decoder does not surface. Writing emits strip-based,
// deflate-compressed files directly, since the stock TIFF encoder cannot
// attach the geo tags.
package geotiff

import (
	"fmt"

	"github.com/paulmach/orb"

	"github.com/LandscapeGeoinformatics/slf-segmentation/internal/geo"
)

// DType identifies the sample representation of a raster band.
type DType string

const (
	Uint8  DType = "uint8"
	Uint16 DType = "uint16"
)

// ParseDType validates a user-supplied dtype string.
func ParseDType(s string) (DType, error) {
	switch DType(s) {
	case Uint8, Uint16:
		return DType(s), nil
	}
	return "", fmt.Errorf("unknown output dtype %q (want uint8 or uint16)", s)
}

// Bits returns the bits per sample for the dtype.
func (d DType) Bits() int {
	if d == Uint8 {
		return 8
	}
	return 16
}

// Max returns the largest representable sample value.
func (d DType) Max() float64 {
	if d == Uint8 {
		return 255
	}
	return 65535
}

// Header carries the georeferencing and shape of a single-band raster,
// without its pixels.
type Header struct {
	Width, Height int
	DType         DType
	Transform     geo.Transform
	EPSG          uint16 // 0 when the file carries no CRS code
	NoData        *float64
	Description   string
}

// Bound returns the world extent of the raster.
func (h Header) Bound() orb.Bound {
	return h.Transform.Bound(h.Width, h.Height)
}

// Raster is a decoded single-band raster. Samples are widened to float32 in
// row-major order regardless of the on-disk dtype.
type Raster struct {
	Header
	Data []float32
}

// At returns the sample at (col, row). Callers are expected to stay in
// bounds; the blend core validates patch geometry before reading pixels.
func (r *Raster) At(col, row int) float32 {
	return r.Data[row*r.Width+col]
}
