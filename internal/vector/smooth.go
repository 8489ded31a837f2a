package vector

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"
)

// SmoothOptions configures polygon smoothing. Tolerances of zero disable
// the corresponding simplification pass.
type SmoothOptions struct {
	Algorithm    string  // "taubin" or "chaikin"
	Factor       float64 // taubin shrink step
	Mu           float64 // taubin inflate step (negative)
	Steps        int     // taubin iterations
	Iterations   int     // chaikin subdivision rounds
	SimplifyPre  float64 // Douglas-Peucker tolerance before smoothing
	SimplifyPost float64 // Douglas-Peucker tolerance after smoothing
}

// DefaultSmoothOptions mirrors the parameters used in production runs:
// Taubin with a light post-simplify to strip collinear output vertices.
func DefaultSmoothOptions() SmoothOptions {
	return SmoothOptions{
		Algorithm:    "taubin",
		Factor:       0.35,
		Mu:           -0.34,
		Steps:        3,
		Iterations:   2,
		SimplifyPost: 0.1,
	}
}

// Smooth applies the configured pipeline to one polygon: optional
// simplify, smoothing, optional simplify again.
func Smooth(p orb.Polygon, opts SmoothOptions) (orb.Polygon, error) {
	if opts.SimplifyPre > 0 {
		p = simplify.DouglasPeucker(opts.SimplifyPre).Polygon(p)
	}

	switch opts.Algorithm {
	case "taubin":
		p = Taubin(p, opts.Factor, opts.Mu, opts.Steps)
	case "chaikin":
		p = Chaikin(p, opts.Iterations)
	default:
		return nil, fmt.Errorf("unknown smoothing algorithm %q (want taubin or chaikin)", opts.Algorithm)
	}

	if opts.SimplifyPost > 0 {
		p = simplify.DouglasPeucker(opts.SimplifyPost).Polygon(p)
	}
	return p, nil
}

// Taubin runs lambda/mu smoothing on every ring: each step moves vertices
// towards their neighbour midpoint by factor, then back out by mu. The
// negative mu pass counteracts the shrinkage plain Laplacian smoothing
// causes, so ring area is approximately preserved.
func Taubin(p orb.Polygon, factor, mu float64, steps int) orb.Polygon {
	out := make(orb.Polygon, len(p))
	for i, ring := range p {
		out[i] = taubinRing(ring, factor, mu, steps)
	}
	return out
}

func taubinRing(ring orb.Ring, factor, mu float64, steps int) orb.Ring {
	if len(ring) < 5 {
		// Triangles (4 points closed) and degenerate rings keep their shape.
		return ring
	}
	pts := append(orb.Ring(nil), ring[:len(ring)-1]...) // drop closing duplicate

	for s := 0; s < steps; s++ {
		pts = laplacianStep(pts, factor)
		pts = laplacianStep(pts, mu)
	}

	pts = append(pts, pts[0])
	return pts
}

func laplacianStep(pts orb.Ring, lambda float64) orb.Ring {
	n := len(pts)
	out := make(orb.Ring, n)
	for i := range pts {
		prev := pts[(i+n-1)%n]
		next := pts[(i+1)%n]
		mx := (prev[0] + next[0]) / 2
		my := (prev[1] + next[1]) / 2
		out[i] = orb.Point{
			pts[i][0] + lambda*(mx-pts[i][0]),
			pts[i][1] + lambda*(my-pts[i][1]),
		}
	}
	return out
}

// Chaikin cuts every corner at the 1/4 and 3/4 points, doubling vertex
// count per iteration. The iterative counterpart to buffer-based
// smoothing for rings.
func Chaikin(p orb.Polygon, iterations int) orb.Polygon {
	out := make(orb.Polygon, len(p))
	for i, ring := range p {
		out[i] = chaikinRing(ring, iterations)
	}
	return out
}

func chaikinRing(ring orb.Ring, iterations int) orb.Ring {
	if len(ring) < 5 {
		return ring
	}
	pts := append(orb.Ring(nil), ring[:len(ring)-1]...)

	for it := 0; it < iterations; it++ {
		n := len(pts)
		next := make(orb.Ring, 0, 2*n)
		for i := range pts {
			a := pts[i]
			b := pts[(i+1)%n]
			next = append(next,
				orb.Point{0.75*a[0] + 0.25*b[0], 0.75*a[1] + 0.25*b[1]},
				orb.Point{0.25*a[0] + 0.75*b[0], 0.25*a[1] + 0.75*b[1]},
			)
		}
		pts = next
	}

	pts = append(pts, pts[0])
	return pts
}
