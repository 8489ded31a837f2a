package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/LandscapeGeoinformatics/slf-segmentation/internal/fsutil"
	"github.com/LandscapeGeoinformatics/slf-segmentation/internal/geotiff"
	"github.com/LandscapeGeoinformatics/slf-segmentation/internal/manifest"
	"github.com/LandscapeGeoinformatics/slf-segmentation/internal/mosaic"
)

func main() {
	var manifestPath string
	var part string
	var patchDir string
	var outputDir string
	var blendName string
	var dtypeName string
	var maskPath string
	var workers int
	var readTimeout time.Duration

	flag.StringVar(&manifestPath, "manifest", "", "JSON manifest mapping part names to patch file lists")
	flag.StringVar(&part, "part", "", "part name to mosaic; empty with -manifest means all parts")
	flag.StringVar(&patchDir, "patch-dir", "", "directory of patch rasters (alternative to -manifest)")
	flag.StringVar(&outputDir, "output-dir", ".", "directory for output mosaics")
	flag.StringVar(&blendName, "blend", "average", "blend mode: average, smooth or hann")
	flag.StringVar(&dtypeName, "dtype", "uint8", "output data type: uint8 or uint16")
	flag.StringVar(&maskPath, "mask", "", "optional mask raster; cells where it is not 1 become nodata")
	flag.IntVar(&workers, "workers", 0, "patch read workers (0 = number of CPUs)")
	flag.DurationVar(&readTimeout, "read-timeout", 0, "per-patch read timeout (0 = none)")
	flag.Parse()

	mode, err := mosaic.ParseBlendMode(blendName)
	if err != nil {
		log.Fatalf("%v", err)
	}
	dtype, err := geotiff.ParseDType(dtypeName)
	if err != nil {
		log.Fatalf("%v", err)
	}

	fsys := fsutil.OSFileSystem{}
	jobs, err := resolveJobs(fsys, manifestPath, part, patchDir)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if err := fsys.MkdirAll(outputDir, 0o755); err != nil {
		log.Fatalf("create output dir: %v", err)
	}

	ctx := context.Background()
	for _, job := range jobs {
		jobID := uuid.New().String()
		log.Printf("job %s: part %s, %d patches", jobID, job.part, len(job.patches))

		opts := mosaic.Options{
			Mode:        mode,
			DType:       dtype,
			MaskPath:    maskPath,
			Workers:     workers,
			ReadTimeout: readTimeout,
			Description: fmt.Sprintf("mosaic %s job %s", job.part, jobID),
		}
		start := time.Now()
		result, err := mosaic.Blend(ctx, mosaic.FileSource{}, job.patches, opts)
		if err != nil {
			log.Fatalf("blend %s: %v", job.part, err)
		}

		out := filepath.Join(outputDir, "mosaic_"+fsutil.SanitizeFilename(job.part)+".tif")
		if err := geotiff.Write(out, result.Header, result.Pix); err != nil {
			log.Fatalf("write %s: %v", out, err)
		}
		fmt.Printf("wrote %s (%d x %d, %s) in %s\n",
			out, result.Header.Width, result.Header.Height, dtype, time.Since(start).Round(time.Millisecond))
	}
}

type blendJob struct {
	part    string
	patches []string
}

// resolveJobs turns the flag combination into a list of blend jobs: either
// one directory of patches, one manifest part, or every part in a manifest.
func resolveJobs(fsys fsutil.FileSystem, manifestPath, part, patchDir string) ([]blendJob, error) {
	switch {
	case manifestPath != "" && patchDir != "":
		return nil, fmt.Errorf("use either -manifest or -patch-dir, not both")
	case patchDir != "":
		patches, err := fsutil.ListRasters(fsys, patchDir)
		if err != nil {
			return nil, err
		}
		name := part
		if name == "" {
			name = filepath.Base(patchDir)
		}
		return []blendJob{{part: name, patches: patches}}, nil
	case manifestPath != "":
		groups, err := manifest.Load(fsys, manifestPath)
		if err != nil {
			return nil, err
		}
		if part != "" {
			patches, err := groups.Patches(part)
			if err != nil {
				return nil, err
			}
			return []blendJob{{part: part, patches: patches}}, nil
		}
		var jobs []blendJob
		for _, key := range groups.Keys() {
			patches, _ := groups.Patches(key)
			jobs = append(jobs, blendJob{part: key, patches: patches})
		}
		return jobs, nil
	default:
		return nil, fmt.Errorf("one of -manifest or -patch-dir is required")
	}
}
