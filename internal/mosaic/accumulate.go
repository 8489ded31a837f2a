package mosaic

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

// accumulator holds the two canvas-shaped running sums. The reduction over
// patches is commutative and associative, so partial accumulators can be
// filled in any order, by any worker, and merged by elementwise addition.
type accumulator struct {
	value  []float64
	weight []float64
}

func newAccumulator(n int) *accumulator {
	return &accumulator{
		value:  make([]float64, n),
		weight: make([]float64, n),
	}
}

func (a *accumulator) merge(b *accumulator) {
	floats.Add(a.value, b.value)
	floats.Add(a.weight, b.weight)
}

// accumulate reads, weights, and sums every patch into a canvas-shaped
// accumulator using a bounded worker pool. Each worker owns a private
// partial accumulator; partials are merged after the pool drains, which
// keeps the hot loop free of locks at the cost of one canvas-sized buffer
// pair per worker. The first failed read cancels all in-flight work.
func accumulate(ctx context.Context, src PatchSource, canvas Canvas, refs []string, mode BlendMode, workers int, readTimeout time.Duration) (*accumulator, error) {
	if workers > len(refs) {
		workers = len(refs)
	}
	if workers < 1 {
		workers = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	jobs := make(chan string)

	g.Go(func() error {
		defer close(jobs)
		for _, ref := range refs {
			select {
			case jobs <- ref:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	parts := make([]*accumulator, workers)
	n := canvas.Width * canvas.Height
	for i := 0; i < workers; i++ {
		part := newAccumulator(n)
		parts[i] = part
		g.Go(func() error {
			// Patches from one inference run share a shape, so the weight
			// map is computed once per shape per worker.
			weights := make(map[[2]int][]float32)
			for ref := range jobs {
				if err := addPatch(ctx, src, canvas, mode, part, ref, weights, readTimeout); err != nil {
					return err
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := parts[0]
	for _, part := range parts[1:] {
		total.merge(part)
	}
	return total, nil
}

func addPatch(ctx context.Context, src PatchSource, canvas Canvas, mode BlendMode, acc *accumulator, ref string, weights map[[2]int][]float32, readTimeout time.Duration) error {
	readCtx := ctx
	if readTimeout > 0 {
		var cancel context.CancelFunc
		readCtx, cancel = context.WithTimeout(ctx, readTimeout)
		defer cancel()
	}

	p, err := src.Read(readCtx, ref)
	if err != nil {
		return fmt.Errorf("read patch %s: %w", ref, err)
	}

	if p.EPSG != canvas.EPSG {
		return fmt.Errorf("%w: %s has CRS %d, canvas is %d", ErrGeometry, ref, p.EPSG, canvas.EPSG)
	}
	if !p.Transform.SamePixelSize(canvas.Transform) {
		return fmt.Errorf("%w: %s pixel size (%g, %g) differs from canvas (%g, %g)",
			ErrGeometry, ref, p.Transform.PixelX, p.Transform.PixelY,
			canvas.Transform.PixelX, canvas.Transform.PixelY)
	}

	colF, rowF := canvas.Transform.WorldToPixel(p.Transform.OriginX, p.Transform.OriginY)
	col := int(math.Round(colF))
	row := int(math.Round(rowF))
	if col < 0 || row < 0 || col+p.Width > canvas.Width || row+p.Height > canvas.Height {
		return fmt.Errorf("%w: %s at offset (%d, %d) with shape %dx%d exceeds canvas %dx%d",
			ErrGeometry, ref, col, row, p.Width, p.Height, canvas.Width, canvas.Height)
	}

	key := [2]int{p.Height, p.Width}
	wm, ok := weights[key]
	if !ok {
		wm = WeightMap(mode, p.Height, p.Width)
		weights[key] = wm
	}

	for r := 0; r < p.Height; r++ {
		base := (row+r)*canvas.Width + col
		src := p.Data[r*p.Width : (r+1)*p.Width]
		wrow := wm[r*p.Width : (r+1)*p.Width]
		for c, v := range src {
			w := float64(wrow[c])
			acc.value[base+c] += float64(v) * w
			acc.weight[base+c] += w
		}
	}
	return nil
}
