// Package gpkg writes and reads polygon layers in GeoPackage files, the
// vector artifact format the postprocessing stages exchange. Only the
// subset of the format needed here is implemented: one features table per
// file, 2-D polygon geometries, a source attribution column.
package gpkg

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"regexp"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	_ "modernc.org/sqlite"

	"github.com/LandscapeGeoinformatics/slf-segmentation/internal/vector"
)

const (
	gpkgApplicationID = 0x47504B47 // "GPKG"
	gpkgUserVersion   = 10300      // GeoPackage 1.3
)

var layerNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Store is an open GeoPackage with a single polygon layer.
type Store struct {
	db    *sql.DB
	layer string
	srsID int
	bound orb.Bound
	empty bool
}

// Create creates a new GeoPackage at path with one polygon layer. A stale
// output from an earlier run is removed first, so re-running a stage
// replaces its result instead of failing on the existing schema.
func Create(path, layer string, srsID int) (*Store, error) {
	if !layerNameRe.MatchString(layer) {
		return nil, fmt.Errorf("invalid layer name %q", layer)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("remove stale %s: %w", path, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	s := &Store{db: db, layer: layer, srsID: srsID, empty: true}
	if err := s.init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialise %s: %w", path, err)
	}
	return s, nil
}

func (s *Store) init() error {
	stmts := []string{
		fmt.Sprintf("PRAGMA application_id = %d", gpkgApplicationID),
		fmt.Sprintf("PRAGMA user_version = %d", gpkgUserVersion),
		`CREATE TABLE gpkg_spatial_ref_sys (
			srs_name TEXT NOT NULL,
			srs_id INTEGER PRIMARY KEY,
			organization TEXT NOT NULL,
			organization_coordsys_id INTEGER NOT NULL,
			definition TEXT NOT NULL,
			description TEXT
		)`,
		`CREATE TABLE gpkg_contents (
			table_name TEXT PRIMARY KEY,
			data_type TEXT NOT NULL,
			identifier TEXT UNIQUE,
			description TEXT DEFAULT '',
			last_change DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
			min_x DOUBLE, min_y DOUBLE, max_x DOUBLE, max_y DOUBLE,
			srs_id INTEGER,
			CONSTRAINT fk_gc_r_srs_id FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
		)`,
		`CREATE TABLE gpkg_geometry_columns (
			table_name TEXT NOT NULL,
			column_name TEXT NOT NULL,
			geometry_type_name TEXT NOT NULL,
			srs_id INTEGER NOT NULL,
			z TINYINT NOT NULL,
			m TINYINT NOT NULL,
			CONSTRAINT pk_geom_cols PRIMARY KEY (table_name, column_name)
		)`,
		fmt.Sprintf(`CREATE TABLE %q (
			fid INTEGER PRIMARY KEY AUTOINCREMENT,
			geom BLOB,
			source TEXT
		)`, s.layer),
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}

	srs := []struct {
		name string
		id   int
		org  string
		code int
		def  string
	}{
		{"Undefined Cartesian SRS", -1, "NONE", -1, "undefined"},
		{"Undefined Geographic SRS", 0, "NONE", 0, "undefined"},
		{fmt.Sprintf("EPSG:%d", s.srsID), s.srsID, "EPSG", s.srsID, fmt.Sprintf("EPSG:%d", s.srsID)},
	}
	for _, r := range srs {
		if _, err := s.db.Exec(
			`INSERT INTO gpkg_spatial_ref_sys
			 (srs_name, srs_id, organization, organization_coordsys_id, definition)
			 VALUES (?, ?, ?, ?, ?)`,
			r.name, r.id, r.org, r.code, r.def); err != nil {
			return err
		}
	}

	if _, err := s.db.Exec(
		`INSERT INTO gpkg_contents (table_name, data_type, identifier, srs_id)
		 VALUES (?, 'features', ?, ?)`, s.layer, s.layer, s.srsID); err != nil {
		return err
	}
	_, err := s.db.Exec(
		`INSERT INTO gpkg_geometry_columns (table_name, column_name, geometry_type_name, srs_id, z, m)
		 VALUES (?, 'geom', 'POLYGON', ?, 0, 0)`, s.layer, s.srsID)
	return err
}

// AddFeature appends one polygon with its source tag.
func (s *Store) AddFeature(f vector.Feature) error {
	blob, err := encodeGeometry(f.Polygon, s.srsID)
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(
		fmt.Sprintf("INSERT INTO %q (geom, source) VALUES (?, ?)", s.layer),
		blob, f.Source); err != nil {
		return err
	}

	b := f.Polygon.Bound()
	if s.empty {
		s.bound = b
		s.empty = false
	} else {
		s.bound = s.bound.Union(b)
	}
	return nil
}

// Close records the layer extent in gpkg_contents and closes the file.
func (s *Store) Close() error {
	if !s.empty {
		if _, err := s.db.Exec(
			`UPDATE gpkg_contents SET min_x=?, min_y=?, max_x=?, max_y=? WHERE table_name=?`,
			s.bound.Min[0], s.bound.Min[1], s.bound.Max[0], s.bound.Max[1], s.layer); err != nil {
			s.db.Close()
			return err
		}
	}
	return s.db.Close()
}

// ReadFeatures loads every polygon feature from a layer. MultiPolygon
// geometries are flattened to their member polygons.
func ReadFeatures(path, layer string) ([]vector.Feature, error) {
	if !layerNameRe.MatchString(layer) {
		return nil, fmt.Errorf("invalid layer name %q", layer)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer db.Close()

	rows, err := db.Query(fmt.Sprintf("SELECT geom, source FROM %q ORDER BY fid", layer))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", layer, err)
	}
	defer rows.Close()

	var feats []vector.Feature
	for rows.Next() {
		var blob []byte
		var source sql.NullString
		if err := rows.Scan(&blob, &source); err != nil {
			return nil, err
		}
		geom, err := decodeGeometry(blob)
		if err != nil {
			return nil, err
		}
		switch g := geom.(type) {
		case orb.Polygon:
			feats = append(feats, vector.Feature{Polygon: g, Source: source.String})
		case orb.MultiPolygon:
			for _, p := range g {
				feats = append(feats, vector.Feature{Polygon: p, Source: source.String})
			}
		default:
			return nil, fmt.Errorf("unexpected geometry type %T in layer %s", geom, layer)
		}
	}
	return feats, rows.Err()
}

// LayerSRS reports the spatial reference system id recorded for a layer.
func LayerSRS(path, layer string) (int, error) {
	if !layerNameRe.MatchString(layer) {
		return 0, fmt.Errorf("invalid layer name %q", layer)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer db.Close()

	var srs int
	err = db.QueryRow(`SELECT srs_id FROM gpkg_contents WHERE table_name = ?`, layer).Scan(&srs)
	if err != nil {
		return 0, fmt.Errorf("layer %s: %w", layer, err)
	}
	return srs, nil
}

// encodeGeometry wraps WKB in the standard GeoPackage binary header:
// magic, version, flags (little-endian, XY envelope), srs id, envelope.
func encodeGeometry(p orb.Polygon, srsID int) ([]byte, error) {
	body, err := wkb.Marshal(p, binary.LittleEndian)
	if err != nil {
		return nil, err
	}

	b := p.Bound()
	header := make([]byte, 8, 8+32+len(body))
	header[0], header[1] = 'G', 'P'
	header[2] = 0               // version 1 is encoded as 0
	header[3] = 0x01 | (1 << 1) // little-endian header, XY envelope
	binary.LittleEndian.PutUint32(header[4:8], uint32(int32(srsID)))

	for _, v := range []float64{b.Min[0], b.Max[0], b.Min[1], b.Max[1]} {
		header = binary.LittleEndian.AppendUint64(header, math.Float64bits(v))
	}
	return append(header, body...), nil
}

func decodeGeometry(blob []byte) (orb.Geometry, error) {
	if len(blob) < 8 || blob[0] != 'G' || blob[1] != 'P' {
		return nil, fmt.Errorf("not a GeoPackage geometry blob")
	}
	flags := blob[3]
	envelope := (flags >> 1) & 0x7
	var envSize int
	switch envelope {
	case 0:
		envSize = 0
	case 1:
		envSize = 32
	case 2, 3:
		envSize = 48
	case 4:
		envSize = 64
	default:
		return nil, fmt.Errorf("invalid envelope indicator %d", envelope)
	}
	offset := 8 + envSize
	if len(blob) < offset {
		return nil, fmt.Errorf("geometry blob shorter than its envelope")
	}
	return wkb.Unmarshal(blob[offset:])
}
