package mosaic

import (
	"fmt"

	"gonum.org/v1/gonum/dsp/window"
)

// BlendMode selects the per-pixel weighting applied to each patch before
// accumulation.
type BlendMode int

const (
	// BlendUniform weights every cell 1: an unweighted mean over overlaps.
	BlendUniform BlendMode = iota

	// BlendEdgeDistance ramps linearly from 0 at the patch border to 1 at
	// the centre, so overlaps favour whichever patch is better centred.
	BlendEdgeDistance

	// BlendHann tapers with a 2-D Hann window: zero on the outer ring,
	// smooth cosine rise to the centre. The strongest seam suppression.
	BlendHann
)

// ParseBlendMode maps the CLI vocabulary (average, smooth, hann) onto the
// mode set.
func ParseBlendMode(s string) (BlendMode, error) {
	switch s {
	case "average":
		return BlendUniform, nil
	case "smooth":
		return BlendEdgeDistance, nil
	case "hann":
		return BlendHann, nil
	}
	return 0, fmt.Errorf("%w: unknown blend mode %q (want average, smooth, or hann)", ErrConfig, s)
}

func (m BlendMode) String() string {
	switch m {
	case BlendUniform:
		return "average"
	case BlendEdgeDistance:
		return "smooth"
	case BlendHann:
		return "hann"
	}
	return fmt.Sprintf("BlendMode(%d)", int(m))
}

// WeightMap returns the h x w weight surface for a patch, row-major, every
// value in [0, 1]. Weights are float32: they are multiplicative factors
// consumed immediately by float64 accumulation, so half the memory buys no
// loss that survives normalisation.
func WeightMap(mode BlendMode, h, w int) []float32 {
	switch mode {
	case BlendEdgeDistance:
		return edgeDistanceWeights(h, w)
	case BlendHann:
		return hannWeights(h, w)
	default:
		m := make([]float32, h*w)
		for i := range m {
			m[i] = 1
		}
		return m
	}
}

// edgeDistanceWeights ramps with the distance to the nearest border,
// normalised by half the shorter dimension so the centre of the patch
// reaches weight 1.
func edgeDistanceWeights(h, w int) []float32 {
	m := make([]float32, h*w)
	short := h
	if w < short {
		short = w
	}
	if short <= 1 {
		// Degenerate strip: no interior to ramp towards.
		for i := range m {
			m[i] = 1
		}
		return m
	}
	half := float64(short-1) / 2

	for row := 0; row < h; row++ {
		dy := min(row, h-1-row)
		for col := 0; col < w; col++ {
			d := min(dy, min(col, w-1-col))
			v := float64(d) / half
			if v > 1 {
				v = 1
			}
			m[row*w+col] = float32(v)
		}
	}
	return m
}

// hannWeights is the outer product of two 1-D Hann windows.
func hannWeights(h, w int) []float32 {
	wy := hann1d(h)
	wx := hann1d(w)
	m := make([]float32, h*w)
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			m[row*w+col] = float32(wy[row] * wx[col])
		}
	}
	return m
}

func hann1d(n int) []float64 {
	if n == 1 {
		return []float64{1}
	}
	seq := make([]float64, n)
	for i := range seq {
		seq[i] = 1
	}
	return window.Hann(seq)
}
