package gpkg

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"

	"github.com/LandscapeGeoinformatics/slf-segmentation/internal/vector"
)

func square(x, y, size float64) orb.Polygon {
	return orb.Polygon{{
		{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}, {x, y},
	}}
}

func TestCreateAddRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.gpkg")

	store, err := Create(path, "polygons", 3301)
	require.NoError(t, err)

	feats := []vector.Feature{
		{Polygon: square(0, 0, 10), Source: "tile_a"},
		{Polygon: square(100, 50, 5), Source: "tile_b"},
	}
	for _, f := range feats {
		require.NoError(t, store.AddFeature(f))
	}
	require.NoError(t, store.Close())

	got, err := ReadFeatures(path, "polygons")
	require.NoError(t, err)
	require.Len(t, got, 2)

	for i, f := range got {
		require.Equal(t, feats[i].Source, f.Source)
		require.Equal(t, feats[i].Polygon, f.Polygon)
	}
}

func TestPolygonWithHoleRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hole.gpkg")

	poly := square(0, 0, 10)
	hole := orb.Ring{{4, 4}, {4, 6}, {6, 6}, {6, 4}, {4, 4}}
	poly = append(poly, hole)

	store, err := Create(path, "polygons", 3301)
	require.NoError(t, err)
	require.NoError(t, store.AddFeature(vector.Feature{Polygon: poly, Source: "t"}))
	require.NoError(t, store.Close())

	got, err := ReadFeatures(path, "polygons")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Len(t, got[0].Polygon, 2)
	require.Equal(t, poly, got[0].Polygon)
}

func TestCreateReplacesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rerun.gpkg")

	store, err := Create(path, "polygons", 3301)
	require.NoError(t, err)
	require.NoError(t, store.AddFeature(vector.Feature{Polygon: square(0, 0, 1), Source: "old"}))
	require.NoError(t, store.Close())

	// A second run over the same path starts from a clean file.
	store, err = Create(path, "polygons", 3301)
	require.NoError(t, err)
	require.NoError(t, store.AddFeature(vector.Feature{Polygon: square(5, 5, 2), Source: "new"}))
	require.NoError(t, store.Close())

	got, err := ReadFeatures(path, "polygons")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "new", got[0].Source)
}

func TestContentsMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.gpkg")

	store, err := Create(path, "predictions", 3301)
	require.NoError(t, err)
	require.NoError(t, store.AddFeature(vector.Feature{Polygon: square(10, 20, 30), Source: "t"}))
	require.NoError(t, store.Close())

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	var dataType string
	var srs int
	var minX, minY, maxX, maxY float64
	err = db.QueryRow(
		`SELECT data_type, srs_id, min_x, min_y, max_x, max_y
		 FROM gpkg_contents WHERE table_name = 'predictions'`).
		Scan(&dataType, &srs, &minX, &minY, &maxX, &maxY)
	require.NoError(t, err)
	require.Equal(t, "features", dataType)
	require.Equal(t, 3301, srs)
	require.Equal(t, []float64{10, 20, 40, 50}, []float64{minX, minY, maxX, maxY})

	var geomType string
	err = db.QueryRow(
		`SELECT geometry_type_name FROM gpkg_geometry_columns WHERE table_name = 'predictions'`).
		Scan(&geomType)
	require.NoError(t, err)
	require.Equal(t, "POLYGON", geomType)
}

func TestInvalidLayerName(t *testing.T) {
	_, err := Create(filepath.Join(t.TempDir(), "x.gpkg"), "bad name; drop", 3301)
	require.Error(t, err)

	_, err = ReadFeatures("whatever.gpkg", "bad name")
	require.Error(t, err)
}

func TestReadMissingLayer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.gpkg")
	store, err := Create(path, "polygons", 3301)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = ReadFeatures(path, "nonexistent")
	require.Error(t, err)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := decodeGeometry([]byte("not a geometry"))
	require.Error(t, err)
	_, err = decodeGeometry(nil)
	require.Error(t, err)
}
