package mosaic

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"time"

	"github.com/LandscapeGeoinformatics/slf-segmentation/internal/geotiff"
)

// Options configures a blend run.
type Options struct {
	Mode        BlendMode
	DType       geotiff.DType
	MaskPath    string        // optional mask raster; 1 = keep
	Workers     int           // 0 means GOMAXPROCS
	ReadTimeout time.Duration // per-patch read timeout; 0 disables
	Description string        // recorded in the output's ImageDescription tag
}

// Result is the quantized canvas plus the metadata needed to write it.
type Result struct {
	Header geotiff.Header
	Pix    []uint16
}

// Blend merges overlapping patches into one seamless raster: size the
// canvas from the union of patch extents, accumulate weighted values and
// weights per patch, normalise, optionally mask, quantize. Order of refs
// does not affect the result beyond float rounding. Any failure aborts
// with no partial result.
func Blend(ctx context.Context, src PatchSource, refs []string, opts Options) (*Result, error) {
	if opts.DType != geotiff.Uint8 && opts.DType != geotiff.Uint16 {
		return nil, fmt.Errorf("%w: unknown output dtype %q", ErrConfig, opts.DType)
	}
	switch opts.Mode {
	case BlendUniform, BlendEdgeDistance, BlendHann:
	default:
		return nil, fmt.Errorf("%w: unknown blend mode %d", ErrConfig, opts.Mode)
	}

	canvas, err := ResolveCanvas(ctx, src, refs)
	if err != nil {
		return nil, err
	}
	log.Printf("canvas: %d x %d pixels, origin (%.2f, %.2f), blend=%s",
		canvas.Width, canvas.Height, canvas.Transform.OriginX, canvas.Transform.OriginY, opts.Mode)

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	acc, err := accumulate(ctx, src, canvas, refs, opts.Mode, workers, opts.ReadTimeout)
	if err != nil {
		return nil, err
	}

	result := normalize(acc)

	if opts.MaskPath != "" {
		mask, err := src.Read(ctx, opts.MaskPath)
		if err != nil {
			return nil, fmt.Errorf("read mask %s: %w", opts.MaskPath, err)
		}
		applyMask(result, canvas, mask)
	}

	nodata := 0.0
	return &Result{
		Header: geotiff.Header{
			Width:       canvas.Width,
			Height:      canvas.Height,
			DType:       opts.DType,
			Transform:   canvas.Transform,
			EPSG:        canvas.EPSG,
			NoData:      &nodata,
			Description: opts.Description,
		},
		Pix: quantize(result, opts.DType),
	}, nil
}

// normalize divides accumulated value by accumulated weight. Cells no patch
// covered stay exactly zero; no NaN or Inf ever reaches the output.
func normalize(acc *accumulator) []float64 {
	out := make([]float64, len(acc.value))
	for i, w := range acc.weight {
		if w > 0 {
			out[i] = acc.value[i] / w
		}
	}
	return out
}
