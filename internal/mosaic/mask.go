package mosaic

import (
	"math"

	"github.com/LandscapeGeoinformatics/slf-segmentation/internal/geotiff"
)

// applyMask zeroes every canvas cell whose nearest mask sample is not 1.
// The mask may live on a different grid; each canvas cell centre is mapped
// into mask pixel space and the containing mask cell is taken as-is
// (nearest neighbour, never interpolated, so the 0/1 semantics survive).
// Canvas cells falling outside the mask extent are excluded.
func applyMask(result []float64, canvas Canvas, mask *geotiff.Raster) {
	for row := 0; row < canvas.Height; row++ {
		for col := 0; col < canvas.Width; col++ {
			cx, cy := canvas.Transform.PixelToWorld(float64(col)+0.5, float64(row)+0.5)
			mc, mr := mask.Transform.WorldToPixel(cx, cy)
			mcol := int(math.Floor(mc))
			mrow := int(math.Floor(mr))

			keep := mcol >= 0 && mcol < mask.Width &&
				mrow >= 0 && mrow < mask.Height &&
				mask.At(mcol, mrow) == 1
			if !keep {
				result[row*canvas.Width+col] = 0
			}
		}
	}
}
