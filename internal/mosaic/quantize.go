package mosaic

import "github.com/LandscapeGeoinformatics/slf-segmentation/internal/geotiff"

// quantize clips the normalised canvas into the output integer range,
// saturating rather than wrapping, and truncates the fraction. Zero doubles
// as the nodata sentinel, so true zero-valued pixels and uncovered pixels
// are indistinguishable downstream; consumers of the output metadata are
// told via the nodata tag.
func quantize(vals []float64, dtype geotiff.DType) []uint16 {
	max := dtype.Max()
	out := make([]uint16, len(vals))
	for i, v := range vals {
		switch {
		case v <= 0:
			// out[i] stays 0
		case v >= max:
			out[i] = uint16(max)
		default:
			out[i] = uint16(v)
		}
	}
	return out
}
