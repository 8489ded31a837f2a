package mosaic

import (
	"context"

	"github.com/LandscapeGeoinformatics/slf-segmentation/internal/geotiff"
)

// FileSource resolves patch references as GeoTIFF paths on the local
// filesystem. Reads run in a goroutine so the caller's context deadline or
// cancellation cuts a stuck read loose; the orphaned read finishes in the
// background and its result is dropped.
type FileSource struct{}

func (FileSource) Header(ctx context.Context, ref string) (geotiff.Header, error) {
	type result struct {
		h   geotiff.Header
		err error
	}
	ch := make(chan result, 1)
	go func() {
		h, err := geotiff.ReadHeaderFile(ref)
		ch <- result{h, err}
	}()
	select {
	case <-ctx.Done():
		return geotiff.Header{}, ctx.Err()
	case r := <-ch:
		return r.h, r.err
	}
}

func (FileSource) Read(ctx context.Context, ref string) (*geotiff.Raster, error) {
	type result struct {
		r   *geotiff.Raster
		err error
	}
	ch := make(chan result, 1)
	go func() {
		r, err := geotiff.ReadFile(ref)
		ch <- result{r, err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.r, r.err
	}
}
