// Package geo provides the affine pixel/world mapping and bounding-box math
// shared by the raster pipeline stages.
package geo

import (
	"math"

	"github.com/paulmach/orb"
)

// Transform maps raster pixel coordinates to world coordinates for a
// north-up raster. Column 0, row 0 is the upper-left pixel; PixelX and
// PixelY are both positive, with world Y decreasing as rows increase.
type Transform struct {
	OriginX float64 // world X of the upper-left corner
	OriginY float64 // world Y of the upper-left corner
	PixelX  float64 // pixel width in world units
	PixelY  float64 // pixel height in world units
}

// PixelToWorld returns the world coordinates of the upper-left corner of the
// pixel at (col, row). Fractional pixel coordinates are valid; (col+0.5,
// row+0.5) is the pixel centre.
func (t Transform) PixelToWorld(col, row float64) (x, y float64) {
	return t.OriginX + col*t.PixelX, t.OriginY - row*t.PixelY
}

// WorldToPixel returns the fractional pixel coordinates of the world point
// (x, y). The inverse of PixelToWorld.
func (t Transform) WorldToPixel(x, y float64) (col, row float64) {
	return (x - t.OriginX) / t.PixelX, (t.OriginY - y) / t.PixelY
}

// Bound returns the world extent of a raster with this transform and the
// given dimensions.
func (t Transform) Bound(width, height int) orb.Bound {
	right := t.OriginX + float64(width)*t.PixelX
	bottom := t.OriginY - float64(height)*t.PixelY
	return orb.Bound{
		Min: orb.Point{t.OriginX, bottom},
		Max: orb.Point{right, t.OriginY},
	}
}

// SamePixelSize reports whether two transforms have the same pixel size
// within a small relative tolerance. Pixel sizes from file headers go
// through float parsing, so exact comparison is too strict.
func (t Transform) SamePixelSize(o Transform) bool {
	return relClose(t.PixelX, o.PixelX) && relClose(t.PixelY, o.PixelY)
}

func relClose(a, b float64) bool {
	diff := math.Abs(a - b)
	if diff == 0 {
		return true
	}
	scale := math.Max(math.Abs(a), math.Abs(b))
	return diff <= 1e-9*scale
}

// FromOrigin builds a Transform anchored at the given upper-left corner,
// matching the (west, north, xsize, ysize) convention used by raster
// libraries.
func FromOrigin(west, north, pixelX, pixelY float64) Transform {
	return Transform{OriginX: west, OriginY: north, PixelX: pixelX, PixelY: pixelY}
}

// GridSize returns the number of columns and rows needed to cover bound at
// the given pixel size, rounding partial pixels up.
func GridSize(bound orb.Bound, pixelX, pixelY float64) (width, height int) {
	width = int(math.Ceil((bound.Max[0] - bound.Min[0]) / pixelX))
	height = int(math.Ceil((bound.Max[1] - bound.Min[1]) / pixelY))
	return width, height
}
