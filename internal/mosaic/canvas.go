package mosaic

import (
	"context"
	"fmt"

	"github.com/LandscapeGeoinformatics/slf-segmentation/internal/geo"
	"github.com/LandscapeGeoinformatics/slf-segmentation/internal/geotiff"
)

// PatchSource supplies patch rasters to the blend core. The core never
// walks the filesystem itself; callers hand it a sequence of references and
// something that can resolve them. FileSource is the production
// implementation; tests use in-memory sources.
type PatchSource interface {
	// Header reads georeferencing and shape without decoding pixels.
	Header(ctx context.Context, ref string) (geotiff.Header, error)

	// Read decodes a full patch raster.
	Read(ctx context.Context, ref string) (*geotiff.Raster, error)
}

// Canvas is the output grid: the smallest grid-aligned box covering every
// patch extent, at the reference patch's pixel size and CRS.
type Canvas struct {
	Width, Height int
	Transform     geo.Transform
	EPSG          uint16
}

// ResolveCanvas derives the canvas from patch headers. The first patch is
// the reference for pixel size and CRS; bounds are the union of every
// patch's extent. Only headers are read, no pixel decode.
func ResolveCanvas(ctx context.Context, src PatchSource, refs []string) (Canvas, error) {
	if len(refs) == 0 {
		return Canvas{}, fmt.Errorf("%w: empty patch list", ErrNoInput)
	}

	ref, err := src.Header(ctx, refs[0])
	if err != nil {
		return Canvas{}, fmt.Errorf("read reference patch header: %w", err)
	}

	bound := ref.Bound()
	for _, path := range refs[1:] {
		h, err := src.Header(ctx, path)
		if err != nil {
			return Canvas{}, fmt.Errorf("read patch header %s: %w", path, err)
		}
		bound = bound.Union(h.Bound())
	}

	width, height := geo.GridSize(bound, ref.Transform.PixelX, ref.Transform.PixelY)
	return Canvas{
		Width:  width,
		Height: height,
		Transform: geo.FromOrigin(
			bound.Min[0], bound.Max[1],
			ref.Transform.PixelX, ref.Transform.PixelY,
		),
		EPSG: ref.EPSG,
	}, nil
}
