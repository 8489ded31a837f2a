// Package manifest maps tile keys to the patch files that make up each
// output tile, so one blend invocation can be dispatched per tile.
package manifest

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/LandscapeGeoinformatics/slf-segmentation/internal/fsutil"
	"github.com/LandscapeGeoinformatics/slf-segmentation/internal/mosaic"
)

// Groups maps a tile key like "part_0_0" to its patch file paths.
type Groups map[string][]string

// Load reads a patch-group manifest from a JSON file.
func Load(fsys fsutil.FileSystem, path string) (Groups, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	var g Groups
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return g, nil
}

// Patches returns the patch list for a tile key. An unknown key is a
// configuration error, reported with the keys that do exist.
func (g Groups) Patches(part string) ([]string, error) {
	patches, ok := g[part]
	if !ok {
		return nil, fmt.Errorf("%w: tile key %q not in manifest (have %v)", mosaic.ErrConfig, part, g.Keys())
	}
	return patches, nil
}

// Keys returns the sorted tile keys.
func (g Groups) Keys() []string {
	keys := make([]string, 0, len(g))
	for k := range g {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
