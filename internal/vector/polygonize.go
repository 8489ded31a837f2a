package vector

import (
	"github.com/paulmach/orb"

	"github.com/LandscapeGeoinformatics/slf-segmentation/internal/geo"
	"github.com/LandscapeGeoinformatics/slf-segmentation/internal/geotiff"
)

// Feature is one extracted region: a polygon (outer ring plus holes) tagged
// with the raster it came from.
type Feature struct {
	Polygon orb.Polygon
	Source  string
}

// Polygonize thresholds a raster and extracts the boundary of every
// 4-connected region of above-threshold cells as a polygon in world
// coordinates. Region interiors with excluded cells become holes. Each
// feature carries source as its attribution tag.
func Polygonize(r *geotiff.Raster, threshold float64, source string) []Feature {
	mask := Threshold(r.Data, threshold)
	labels, sizes, _ := labelComponents(mask, r.Width, r.Height, 4)

	features := make([]Feature, 0, len(sizes))
	for k := range sizes {
		rings := traceRings(labels, int32(k+1), r.Width, r.Height, r.Transform)
		if len(rings) == 0 {
			continue
		}
		features = append(features, Feature{Polygon: assemblePolygon(rings), Source: source})
	}
	return features
}

// vertex keys identify pixel-corner lattice points: (w+1) corners per row.
func vertexKey(x, y, w int) int64 {
	return int64(y)*int64(w+1) + int64(x)
}

type boundaryEdge struct {
	fromX, fromY int
	toX, toY     int
	used         bool
}

// traceRings walks the exterior and interior boundaries of one labelled
// component. Each cell side facing a foreign cell contributes a directed
// edge with the component on a fixed side; chaining edges end-to-start
// yields closed rings. At saddle vertices (two diagonal cells of the same
// component touching at a corner) the walk keeps to the sharper turn so
// rings stay simple instead of collapsing into a figure eight.
func traceRings(labels []int32, label int32, w, h int, tr geo.Transform) []orb.Ring {
	at := func(c, r int) int32 {
		if c < 0 || c >= w || r < 0 || r >= h {
			return 0
		}
		return labels[r*w+c]
	}

	var edges []boundaryEdge
	outgoing := make(map[int64][]int)
	addEdge := func(x0, y0, x1, y1 int) {
		outgoing[vertexKey(x0, y0, w)] = append(outgoing[vertexKey(x0, y0, w)], len(edges))
		edges = append(edges, boundaryEdge{fromX: x0, fromY: y0, toX: x1, toY: y1})
	}

	for r := 0; r < h; r++ {
		for c := 0; c < w; c++ {
			if at(c, r) != label {
				continue
			}
			if at(c, r-1) != label {
				addEdge(c, r, c+1, r)
			}
			if at(c+1, r) != label {
				addEdge(c+1, r, c+1, r+1)
			}
			if at(c, r+1) != label {
				addEdge(c+1, r+1, c, r+1)
			}
			if at(c-1, r) != label {
				addEdge(c, r+1, c, r)
			}
		}
	}

	var rings []orb.Ring
	for start := range edges {
		if edges[start].used {
			continue
		}

		var ring orb.Ring
		cur := start
		for {
			e := &edges[cur]
			e.used = true
			x, y := tr.PixelToWorld(float64(e.fromX), float64(e.fromY))
			ring = append(ring, orb.Point{x, y})

			nextKey := vertexKey(e.toX, e.toY, w)
			next := -1
			bestCross := int(-1 << 30)
			for _, cand := range outgoing[nextKey] {
				ce := &edges[cand]
				if ce.used {
					continue
				}
				// Cross product of incoming and candidate directions in
				// pixel space; the largest value is the tightest
				// interior-keeping turn.
				d1x, d1y := e.toX-e.fromX, e.toY-e.fromY
				d2x, d2y := ce.toX-ce.fromX, ce.toY-ce.fromY
				cross := d1x*d2y - d1y*d2x
				if next == -1 || cross > bestCross {
					next = cand
					bestCross = cross
				}
			}
			if next == -1 {
				break // ring closed back to the start edge
			}
			cur = next
		}
		ring = append(ring, ring[0]) // close
		rings = append(rings, ring)
	}
	return rings
}

// assemblePolygon picks the largest-area ring as the shell and orients it
// counter-clockwise; the remaining rings become clockwise holes.
func assemblePolygon(rings []orb.Ring) orb.Polygon {
	outer := 0
	best := 0.0
	for i, ring := range rings {
		a := signedArea(ring)
		if a < 0 {
			a = -a
		}
		if a > best {
			best = a
			outer = i
		}
	}

	shell := orientRing(rings[outer], true)
	poly := orb.Polygon{shell}
	for i, ring := range rings {
		if i == outer {
			continue
		}
		poly = append(poly, orientRing(ring, false))
	}
	return poly
}

// signedArea is the shoelace area of a closed ring in world coordinates;
// positive means counter-clockwise.
func signedArea(ring orb.Ring) float64 {
	var sum float64
	for i := 0; i < len(ring)-1; i++ {
		sum += ring[i][0]*ring[i+1][1] - ring[i+1][0]*ring[i][1]
	}
	return sum / 2
}

func orientRing(ring orb.Ring, ccw bool) orb.Ring {
	if (signedArea(ring) > 0) == ccw {
		return ring
	}
	rev := make(orb.Ring, len(ring))
	for i, p := range ring {
		rev[len(ring)-1-i] = p
	}
	return rev
}
