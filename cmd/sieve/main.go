package main

import (
	"flag"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/LandscapeGeoinformatics/slf-segmentation/internal/fsutil"
	"github.com/LandscapeGeoinformatics/slf-segmentation/internal/geotiff"
	"github.com/LandscapeGeoinformatics/slf-segmentation/internal/vector"
)

func main() {
	var inputDir string
	var outputDir string
	var minArea float64
	var probThreshold float64
	var connectivity int
	var applyMask bool

	flag.StringVar(&inputDir, "input-dir", ".", "directory of probability rasters")
	flag.StringVar(&outputDir, "output-dir", ".", "directory for sieved outputs")
	flag.Float64Var(&minArea, "min-area", 100, "minimum component area to keep, in square map units")
	flag.Float64Var(&probThreshold, "prob-threshold", 500, "pixel values above this count as foreground")
	flag.IntVar(&connectivity, "connectivity", 4, "pixel connectivity for components: 4 or 8")
	flag.BoolVar(&applyMask, "apply-mask", false, "also write the probabilities with removed components zeroed")
	flag.Parse()

	fsys := fsutil.OSFileSystem{}
	inputs, err := fsutil.ListRasters(fsys, inputDir)
	if err != nil {
		log.Fatalf("list rasters: %v", err)
	}
	if len(inputs) == 0 {
		log.Fatalf("no rasters under %s", inputDir)
	}
	if err := fsys.MkdirAll(outputDir, 0o755); err != nil {
		log.Fatalf("create output dir: %v", err)
	}

	for _, path := range inputs {
		r, err := geotiff.ReadFile(path)
		if err != nil {
			log.Fatalf("read %s: %v", path, err)
		}

		mask := vector.Threshold(r.Data, probThreshold)
		minPixels := vector.MinPixelCount(minArea, r.Transform.PixelX, r.Transform.PixelY)
		removed, err := vector.Sieve(mask, r.Width, r.Height, minPixels, connectivity)
		if err != nil {
			log.Fatalf("sieve %s: %v", path, err)
		}

		stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		nodata := 0.0

		maskPix := make([]uint16, len(mask))
		for i, v := range mask {
			maskPix[i] = uint16(v)
		}
		maskHeader := r.Header
		maskHeader.DType = geotiff.Uint8
		maskHeader.NoData = &nodata
		maskOut := filepath.Join(outputDir, stem+"_mask.tif")
		if err := geotiff.Write(maskOut, maskHeader, maskPix); err != nil {
			log.Fatalf("write %s: %v", maskOut, err)
		}

		if applyMask {
			probHeader := r.Header
			probHeader.DType = geotiff.Uint16
			probHeader.NoData = &nodata
			probOut := filepath.Join(outputDir, stem+"_masked_prob.tif")
			if err := geotiff.Write(probOut, probHeader, vector.MaskValues(r.Data, mask)); err != nil {
				log.Fatalf("write %s: %v", probOut, err)
			}
		}

		fmt.Printf("%s: removed %d components under %d pixels\n", filepath.Base(path), removed, minPixels)
	}
}
