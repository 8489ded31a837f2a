package main

import (
	"flag"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/LandscapeGeoinformatics/slf-segmentation/internal/fsutil"
	"github.com/LandscapeGeoinformatics/slf-segmentation/internal/geotiff"
	"github.com/LandscapeGeoinformatics/slf-segmentation/internal/gpkg"
	"github.com/LandscapeGeoinformatics/slf-segmentation/internal/vector"
)

func main() {
	var inputDir string
	var suffix string
	var output string
	var layer string
	var threshold float64
	var srsID int

	flag.StringVar(&inputDir, "input-dir", ".", "directory of probability rasters")
	flag.StringVar(&suffix, "suffix", "prob.tif", "only rasters whose name ends with this suffix are polygonized")
	flag.StringVar(&output, "output", "polygons.gpkg", "output GeoPackage path")
	flag.StringVar(&layer, "layer", "polygons", "feature layer name")
	flag.Float64Var(&threshold, "threshold", 500, "pixel values above this count as foreground")
	flag.IntVar(&srsID, "srs", 0, "EPSG code for the layer (0 = take from the first raster)")
	flag.Parse()

	fsys := fsutil.OSFileSystem{}
	rasters, err := fsutil.ListRasters(fsys, inputDir)
	if err != nil {
		log.Fatalf("list rasters: %v", err)
	}
	var inputs []string
	for _, p := range rasters {
		if strings.HasSuffix(filepath.Base(p), suffix) {
			inputs = append(inputs, p)
		}
	}
	if len(inputs) == 0 {
		log.Fatalf("no rasters matching *%s under %s", suffix, inputDir)
	}

	// The first raster supplies the SRS unless one was given explicitly.
	if srsID == 0 {
		h, err := geotiff.ReadHeaderFile(inputs[0])
		if err != nil {
			log.Fatalf("read %s: %v", inputs[0], err)
		}
		srsID = int(h.EPSG)
	}

	store, err := gpkg.Create(output, layer, srsID)
	if err != nil {
		log.Fatalf("create %s: %v", output, err)
	}

	total := 0
	for _, path := range inputs {
		r, err := geotiff.ReadFile(path)
		if err != nil {
			log.Fatalf("read %s: %v", path, err)
		}
		source := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		feats := vector.Polygonize(r, threshold, source)
		for _, f := range feats {
			if err := store.AddFeature(f); err != nil {
				log.Fatalf("add feature from %s: %v", path, err)
			}
		}
		total += len(feats)
		fmt.Printf("%s: %d polygons\n", filepath.Base(path), len(feats))
	}

	if err := store.Close(); err != nil {
		log.Fatalf("close %s: %v", output, err)
	}
	fmt.Printf("wrote %d polygons from %d rasters to %s (layer %s)\n", total, len(inputs), output, layer)
}
