package main

import (
	"flag"
	"fmt"
	"image/color"
	"log"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/LandscapeGeoinformatics/slf-segmentation/internal/mosaic"
)

// Plots the centre-row cross section of each blend weight map side by
// side, which is the quickest way to eyeball how wide the seam feathering
// of a given patch size will be.
func main() {
	var width int
	var height int
	var outputDir string

	flag.IntVar(&width, "width", 256, "patch width in pixels")
	flag.IntVar(&height, "height", 256, "patch height in pixels")
	flag.StringVar(&outputDir, "output-dir", ".", "directory for the profile PNG")
	flag.Parse()

	if width < 1 || height < 1 {
		log.Fatalf("width and height must be positive")
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		log.Fatalf("create output dir: %v", err)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Blend weight cross sections (%d x %d patch)", width, height)
	p.X.Label.Text = "Column"
	p.Y.Label.Text = "Weight"
	p.Y.Min, p.Y.Max = 0, 1.05

	modes := []mosaic.BlendMode{mosaic.BlendUniform, mosaic.BlendEdgeDistance, mosaic.BlendHann}
	colors := []color.Color{
		color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff},
		color.RGBA{R: 0xff, G: 0x7f, B: 0x0e, A: 0xff},
		color.RGBA{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff},
	}

	for i, mode := range modes {
		weights := mosaic.WeightMap(mode, height, width)
		row := height / 2

		pts := make(plotter.XYs, width)
		for col := 0; col < width; col++ {
			pts[col] = plotter.XY{X: float64(col), Y: float64(weights[row*width+col])}
		}

		line, err := plotter.NewLine(pts)
		if err != nil {
			log.Fatalf("line for %s: %v", mode, err)
		}
		line.Color = colors[i]
		line.Width = vg.Points(1.5)
		p.Add(line)
		p.Legend.Add(mode.String(), line)
	}
	p.Legend.Top = true

	out := filepath.Join(outputDir, fmt.Sprintf("weight_profile_%dx%d.png", width, height))
	if err := p.Save(10*vg.Inch, 5*vg.Inch, out); err != nil {
		log.Fatalf("save plot: %v", err)
	}
	fmt.Printf("wrote %s\n", out)
}
