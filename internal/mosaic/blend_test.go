package mosaic

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/LandscapeGeoinformatics/slf-segmentation/internal/geo"
	"github.com/LandscapeGeoinformatics/slf-segmentation/internal/geotiff"
)

// memSource serves patches from memory, standing in for the filesystem
// collaborator.
type memSource map[string]*geotiff.Raster

func (m memSource) Header(_ context.Context, ref string) (geotiff.Header, error) {
	r, ok := m[ref]
	if !ok {
		return geotiff.Header{}, fmt.Errorf("no such patch %q", ref)
	}
	return r.Header, nil
}

func (m memSource) Read(_ context.Context, ref string) (*geotiff.Raster, error) {
	r, ok := m[ref]
	if !ok {
		return nil, fmt.Errorf("no such patch %q", ref)
	}
	return r, nil
}

const testEPSG = 3301

// newPatch builds a w x h patch with 1-unit pixels whose upper-left corner
// sits at (originX, originY).
func newPatch(w, h int, originX, originY float64, fill float32) *geotiff.Raster {
	data := make([]float32, w*h)
	for i := range data {
		data[i] = fill
	}
	return &geotiff.Raster{
		Header: geotiff.Header{
			Width: w, Height: h,
			DType:     geotiff.Uint16,
			Transform: geo.FromOrigin(originX, originY, 1, 1),
			EPSG:      testEPSG,
		},
		Data: data,
	}
}

func defaultOpts() Options {
	return Options{Mode: BlendUniform, DType: geotiff.Uint16}
}

func TestBlendSinglePatchIdentity(t *testing.T) {
	// One patch alone must reproduce its own values wherever its weight is
	// nonzero: normalisation cancels the weight factor.
	for _, mode := range []BlendMode{BlendUniform, BlendEdgeDistance, BlendHann} {
		t.Run(mode.String(), func(t *testing.T) {
			p := newPatch(8, 8, 100, 200, 0)
			for i := range p.Data {
				p.Data[i] = float32(i * 7 % 1000)
			}
			src := memSource{"p": p}

			opts := defaultOpts()
			opts.Mode = mode
			res, err := Blend(context.Background(), src, []string{"p"}, opts)
			if err != nil {
				t.Fatalf("blend: %v", err)
			}
			if res.Header.Width != 8 || res.Header.Height != 8 {
				t.Fatalf("canvas = %dx%d, want 8x8", res.Header.Width, res.Header.Height)
			}

			wm := WeightMap(mode, 8, 8)
			for i, v := range res.Pix {
				if wm[i] == 0 {
					if v != 0 {
						t.Fatalf("pixel %d: zero-weight cell = %d, want 0", i, v)
					}
					continue
				}
				if v != uint16(p.Data[i]) {
					t.Fatalf("pixel %d = %d, want %v", i, v, p.Data[i])
				}
			}
		})
	}
}

func TestBlendTwoPatchOverlapMean(t *testing.T) {
	// Two 4x4 patches overlapping in a 2x2 region, uniform mode: overlap is
	// the arithmetic mean, everything else the single covering value.
	a := newPatch(4, 4, 0, 4, 100)
	b := newPatch(4, 4, 2, 6, 200)
	src := memSource{"a": a, "b": b}

	res, err := Blend(context.Background(), src, []string{"a", "b"}, defaultOpts())
	if err != nil {
		t.Fatalf("blend: %v", err)
	}
	if res.Header.Width != 6 || res.Header.Height != 6 {
		t.Fatalf("canvas = %dx%d, want 6x6", res.Header.Width, res.Header.Height)
	}

	at := func(col, row int) uint16 { return res.Pix[row*6+col] }
	tests := []struct {
		name     string
		col, row int
		want     uint16
	}{
		{"a only", 0, 5, 100},
		{"a only edge", 3, 2, 100},
		{"b only", 5, 0, 200},
		{"b only edge", 4, 3, 200},
		{"overlap", 2, 2, 150},
		{"overlap corner", 3, 3, 150},
		{"uncovered top-left", 0, 0, 0},
		{"uncovered bottom-right", 5, 5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := at(tt.col, tt.row); got != tt.want {
				t.Errorf("pixel (%d,%d) = %d, want %d", tt.col, tt.row, got, tt.want)
			}
		})
	}
}

func TestBlendOrderInvariance(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	src := memSource{}
	var refs []string
	for i := 0; i < 9; i++ {
		p := newPatch(16, 16, float64(rng.Intn(30)), 40+float64(rng.Intn(30)), 0)
		for j := range p.Data {
			p.Data[j] = float32(rng.Intn(1000))
		}
		ref := fmt.Sprintf("p%d", i)
		src[ref] = p
		refs = append(refs, ref)
	}

	opts := defaultOpts()
	opts.Mode = BlendHann
	opts.Workers = 1 // deterministic intra-worker order per permutation

	base, err := Blend(context.Background(), src, refs, opts)
	if err != nil {
		t.Fatalf("blend: %v", err)
	}

	for trial := 0; trial < 4; trial++ {
		shuffled := append([]string(nil), refs...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		got, err := Blend(context.Background(), src, shuffled, opts)
		if err != nil {
			t.Fatalf("blend (shuffled): %v", err)
		}
		for i := range base.Pix {
			d := int(base.Pix[i]) - int(got.Pix[i])
			if d < -1 || d > 1 {
				t.Fatalf("trial %d pixel %d: %d vs %d", trial, i, base.Pix[i], got.Pix[i])
			}
		}
	}
}

func TestAccumulateOrderInvarianceFloat(t *testing.T) {
	// Stronger check than the quantized one: the normalised canvas agrees
	// within relative 1e-5 across permutations and worker counts.
	src := memSource{}
	var refs []string
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 6; i++ {
		p := newPatch(10, 10, float64(i*3), 20+float64(i%2*4), 0)
		for j := range p.Data {
			p.Data[j] = float32(rng.Float64() * 900)
		}
		ref := fmt.Sprintf("p%d", i)
		src[ref] = p
		refs = append(refs, ref)
	}

	ctx := context.Background()
	canvas, err := ResolveCanvas(ctx, src, refs)
	if err != nil {
		t.Fatalf("resolve canvas: %v", err)
	}

	accum := func(order []string, workers int) []float64 {
		acc, err := accumulate(ctx, src, canvas, order, BlendEdgeDistance, workers, 0)
		if err != nil {
			t.Fatalf("accumulate: %v", err)
		}
		return normalize(acc)
	}

	base := accum(refs, 1)
	reversed := append([]string(nil), refs...)
	for i, j := 0, len(reversed)-1; i < j; i, j = i+1, j-1 {
		reversed[i], reversed[j] = reversed[j], reversed[i]
	}

	for _, tc := range []struct {
		name    string
		order   []string
		workers int
	}{
		{"reversed sequential", reversed, 1},
		{"original 4 workers", refs, 4},
		{"reversed 4 workers", reversed, 4},
	} {
		got := accum(tc.order, tc.workers)
		for i := range base {
			if base[i] == 0 && got[i] == 0 {
				continue
			}
			rel := math.Abs(base[i]-got[i]) / math.Max(math.Abs(base[i]), math.Abs(got[i]))
			if rel > 1e-5 {
				t.Fatalf("%s: pixel %d relative error %g", tc.name, i, rel)
			}
		}
	}
}

func TestBlendEmptyPatchList(t *testing.T) {
	_, err := Blend(context.Background(), memSource{}, nil, defaultOpts())
	if !errors.Is(err, ErrNoInput) {
		t.Fatalf("err = %v, want ErrNoInput", err)
	}
}

func TestBlendUnknownDType(t *testing.T) {
	opts := defaultOpts()
	opts.DType = "float32"
	_, err := Blend(context.Background(), memSource{"p": newPatch(2, 2, 0, 2, 1)}, []string{"p"}, opts)
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("err = %v, want ErrConfig", err)
	}
}

func TestBlendUnknownMode(t *testing.T) {
	// A mode value outside the defined set must be rejected up front, not
	// fall back to uniform weighting.
	opts := defaultOpts()
	opts.Mode = BlendMode(42)
	_, err := Blend(context.Background(), memSource{"p": newPatch(2, 2, 0, 2, 1)}, []string{"p"}, opts)
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("err = %v, want ErrConfig", err)
	}
}

func TestBlendUnreadablePatchAborts(t *testing.T) {
	// Headers resolve but the pixel read fails; the whole blend must abort.
	p := newPatch(4, 4, 0, 4, 50)
	src := headerOnlySource{memSource{"ok": p, "broken": p}, "broken"}

	_, err := Blend(context.Background(), src, []string{"ok", "broken"}, defaultOpts())
	if err == nil {
		t.Fatal("expected read failure to abort the blend")
	}
}

type headerOnlySource struct {
	memSource
	failRef string
}

func (s headerOnlySource) Read(ctx context.Context, ref string) (*geotiff.Raster, error) {
	if ref == s.failRef {
		return nil, fmt.Errorf("%s: simulated I/O failure", ref)
	}
	return s.memSource.Read(ctx, ref)
}

func TestBlendGeometryValidation(t *testing.T) {
	t.Run("crs mismatch", func(t *testing.T) {
		a := newPatch(4, 4, 0, 4, 10)
		b := newPatch(4, 4, 2, 6, 20)
		b.EPSG = 25832
		src := memSource{"a": a, "b": b}

		_, err := Blend(context.Background(), src, []string{"a", "b"}, defaultOpts())
		if !errors.Is(err, ErrGeometry) {
			t.Fatalf("err = %v, want ErrGeometry", err)
		}
	})

	t.Run("pixel size mismatch", func(t *testing.T) {
		a := newPatch(4, 4, 0, 4, 10)
		b := newPatch(4, 4, 2, 6, 20)
		b.Transform.PixelX = 2
		src := memSource{"a": a, "b": b}

		_, err := Blend(context.Background(), src, []string{"a", "b"}, defaultOpts())
		if !errors.Is(err, ErrGeometry) {
			t.Fatalf("err = %v, want ErrGeometry", err)
		}
	})

	t.Run("patch outside canvas", func(t *testing.T) {
		p := newPatch(4, 4, 10, 20, 10)
		src := memSource{"p": p}
		canvas := Canvas{
			Width: 3, Height: 3,
			Transform: geo.FromOrigin(10, 20, 1, 1),
			EPSG:      testEPSG,
		}

		_, err := accumulate(context.Background(), src, canvas, []string{"p"}, BlendUniform, 1, 0)
		if !errors.Is(err, ErrGeometry) {
			t.Fatalf("err = %v, want ErrGeometry", err)
		}
	})

	t.Run("patch before canvas origin", func(t *testing.T) {
		p := newPatch(4, 4, 5, 20, 10)
		src := memSource{"p": p}
		canvas := Canvas{
			Width: 10, Height: 10,
			Transform: geo.FromOrigin(10, 20, 1, 1),
			EPSG:      testEPSG,
		}

		_, err := accumulate(context.Background(), src, canvas, []string{"p"}, BlendUniform, 1, 0)
		if !errors.Is(err, ErrGeometry) {
			t.Fatalf("err = %v, want ErrGeometry", err)
		}
	})
}

func TestBlendHannSuppressesSeam(t *testing.T) {
	// Two constant patches with different values: the hann blend must move
	// smoothly between them inside the overlap instead of stepping.
	a := newPatch(16, 8, 0, 8, 100)
	b := newPatch(16, 8, 8, 8, 300)
	src := memSource{"a": a, "b": b}

	opts := defaultOpts()
	opts.Mode = BlendHann
	res, err := Blend(context.Background(), src, []string{"a", "b"}, opts)
	if err != nil {
		t.Fatalf("blend: %v", err)
	}

	// Middle row, overlap columns 8..16: values ramp from a's towards b's.
	row := 4
	prev := res.Pix[row*res.Header.Width+8]
	for col := 9; col < 16; col++ {
		v := res.Pix[row*res.Header.Width+col]
		if v < prev {
			t.Fatalf("seam not monotone at col %d: %d then %d", col, prev, v)
		}
		prev = v
	}
}
