package mosaic

import "errors"

// Error categories for the blend pipeline. Configuration and input problems
// are detected before any accumulation starts; geometry problems abort the
// whole blend rather than truncating a patch into the canvas.
var (
	// ErrNoInput means the patch list was empty.
	ErrNoInput = errors.New("no input patches")

	// ErrConfig means a blend mode, output dtype, or tile key was not
	// recognised.
	ErrConfig = errors.New("invalid configuration")

	// ErrGeometry means a patch disagrees with the canvas grid: its
	// footprint falls outside the canvas, or its CRS or pixel size does not
	// match the reference patch.
	ErrGeometry = errors.New("patch geometry inconsistent with canvas")
)
