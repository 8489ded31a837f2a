// Package vector turns blended probability rasters into cleaned vector
// products: thresholding, small-object removal, polygon extraction, and
// polygon smoothing.
package vector

import "fmt"

// Threshold converts a probability raster into a binary mask: 1 where the
// value is at or above thresh, 0 elsewhere.
func Threshold(data []float32, thresh float64) []uint8 {
	mask := make([]uint8, len(data))
	for i, v := range data {
		if float64(v) >= thresh {
			mask[i] = 1
		}
	}
	return mask
}

// MinPixelCount converts a minimum real-world area into a pixel count on a
// grid with the given pixel size, never less than one pixel.
func MinPixelCount(minArea, pixelX, pixelY float64) int {
	n := int(minArea / (pixelX * pixelY))
	if n < 1 {
		n = 1
	}
	return n
}

// Sieve removes connected groups of mask cells smaller than minPixels,
// in place. Connectivity is 4 or 8. Returns the number of components
// removed.
func Sieve(mask []uint8, w, h, minPixels, connectivity int) (int, error) {
	labels, sizes, err := labelComponents(mask, w, h, connectivity)
	if err != nil {
		return 0, err
	}

	small := make([]bool, len(sizes)+1)
	removed := 0
	for label, size := range sizes {
		if size < minPixels {
			small[label+1] = true
			removed++
		}
	}
	for i, l := range labels {
		if l > 0 && small[l] {
			mask[i] = 0
		}
	}
	return removed, nil
}

// MaskValues applies a binary mask to raster samples, producing the masked
// integer raster written alongside the sieved mask.
func MaskValues(data []float32, mask []uint8) []uint16 {
	out := make([]uint16, len(data))
	for i, v := range data {
		if mask[i] == 1 {
			out[i] = uint16(v)
		}
	}
	return out
}

// labelComponents labels the 1-cells of mask. Returned labels are 1-based;
// sizes[k] is the pixel count of label k+1.
func labelComponents(mask []uint8, w, h, connectivity int) ([]int32, []int, error) {
	if connectivity != 4 && connectivity != 8 {
		return nil, nil, fmt.Errorf("connectivity must be 4 or 8, got %d", connectivity)
	}

	offsets := [][2]int{{0, -1}, {0, 1}, {-1, 0}, {1, 0}}
	if connectivity == 8 {
		offsets = append(offsets, [2]int{-1, -1}, [2]int{-1, 1}, [2]int{1, -1}, [2]int{1, 1})
	}

	labels := make([]int32, len(mask))
	var sizes []int
	var queue [][2]int

	next := int32(0)
	for start := range mask {
		if mask[start] != 1 || labels[start] != 0 {
			continue
		}
		next++
		size := 0
		queue = queue[:0]
		queue = append(queue, [2]int{start % w, start / w})
		labels[start] = next

		for len(queue) > 0 {
			cell := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			size++

			for _, d := range offsets {
				nc, nr := cell[0]+d[0], cell[1]+d[1]
				if nc < 0 || nc >= w || nr < 0 || nr >= h {
					continue
				}
				ni := nr*w + nc
				if mask[ni] == 1 && labels[ni] == 0 {
					labels[ni] = next
					queue = append(queue, [2]int{nc, nr})
				}
			}
		}
		sizes = append(sizes, size)
	}
	return labels, sizes, nil
}
