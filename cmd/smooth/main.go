package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/LandscapeGeoinformatics/slf-segmentation/internal/gpkg"
	"github.com/LandscapeGeoinformatics/slf-segmentation/internal/vector"
)

func main() {
	var input string
	var output string
	var inLayer string
	var outLayer string

	defaults := vector.DefaultSmoothOptions()
	opts := defaults

	flag.StringVar(&input, "input", "", "input GeoPackage")
	flag.StringVar(&output, "output", "", "output GeoPackage")
	flag.StringVar(&inLayer, "layer", "polygons", "input layer name")
	flag.StringVar(&outLayer, "output-layer", "", "output layer name (default: same as input)")
	flag.StringVar(&opts.Algorithm, "algorithm", defaults.Algorithm, "smoothing algorithm: taubin or chaikin")
	flag.Float64Var(&opts.Factor, "factor", defaults.Factor, "taubin shrink factor")
	flag.Float64Var(&opts.Mu, "mu", defaults.Mu, "taubin inflate factor")
	flag.IntVar(&opts.Steps, "steps", defaults.Steps, "taubin steps")
	flag.IntVar(&opts.Iterations, "iterations", defaults.Iterations, "chaikin iterations")
	flag.Float64Var(&opts.SimplifyPre, "simplify-pre", defaults.SimplifyPre, "simplify tolerance before smoothing (0 = off)")
	flag.Float64Var(&opts.SimplifyPost, "simplify-post", defaults.SimplifyPost, "simplify tolerance after smoothing (0 = off)")
	flag.Parse()

	if input == "" || output == "" {
		log.Fatalf("-input and -output are required")
	}
	if outLayer == "" {
		outLayer = inLayer
	}

	feats, err := gpkg.ReadFeatures(input, inLayer)
	if err != nil {
		log.Fatalf("read %s: %v", input, err)
	}
	srs, err := gpkg.LayerSRS(input, inLayer)
	if err != nil {
		log.Fatalf("srs of %s: %v", input, err)
	}

	store, err := gpkg.Create(output, outLayer, srs)
	if err != nil {
		log.Fatalf("create %s: %v", output, err)
	}

	for i, f := range feats {
		smoothed, err := vector.Smooth(f.Polygon, opts)
		if err != nil {
			log.Fatalf("smooth feature %d: %v", i, err)
		}
		f.Polygon = smoothed
		if err := store.AddFeature(f); err != nil {
			log.Fatalf("add feature %d: %v", i, err)
		}
	}

	if err := store.Close(); err != nil {
		log.Fatalf("close %s: %v", output, err)
	}
	fmt.Printf("smoothed %d polygons (%s) into %s (layer %s)\n", len(feats), opts.Algorithm, output, outLayer)
}
