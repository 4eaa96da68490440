// Package gpkg writes report layers into a GeoPackage container: a sqlite
// database carrying the gpkg_spatial_ref_sys, gpkg_contents and
// gpkg_geometry_columns metadata tables plus one feature table per layer,
// with geometries encoded as GeoPackage binary blobs.
package gpkg

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"io/fs"
	"math"
	"os"
	"regexp"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/geojson"

	"github.com/facilitymap/changedetect/pkg/errors"
	"github.com/facilitymap/changedetect/pkg/report"
)

// GeoPackage application id ("GPKG") and version 1.3 user_version, written
// into the sqlite header as the GeoPackage standard requires.
const (
	applicationID = 0x47504B47
	userVersion   = 10300
)

// nztmDefinition is the EPSG:2193 well-known text registered in
// gpkg_spatial_ref_sys so consumers resolve the layer CRS without a lookup.
const nztmDefinition = `PROJCS["NZGD2000 / New Zealand Transverse Mercator 2000",GEOGCS["NZGD2000",DATUM["New_Zealand_Geodetic_Datum_2000",SPHEROID["GRS 1980",6378137,298.257222101]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433]],PROJECTION["Transverse_Mercator"],PARAMETER["latitude_of_origin",0],PARAMETER["central_meridian",173],PARAMETER["scale_factor",0.9996],PARAMETER["false_easting",1600000],PARAMETER["false_northing",10000000],UNIT["metre",1],AUTHORITY["EPSG","2193"]]`

var identifierPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Write creates (or replaces) the GeoPackage at path and writes every layer
// of the report into it. A leftover container from an earlier run is removed
// first so the feature tables never collide.
func Write(path string, rep *report.Report) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.WrapIO("remove geopackage", path, err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return errors.WrapIO("open geopackage", path, err)
	}
	defer db.Close()

	if err := initContainer(db); err != nil {
		return errors.WrapIO("initialize geopackage", path, err)
	}
	for _, layer := range rep.Layers {
		if err := writeLayer(db, layer); err != nil {
			return errors.WrapIO("write layer", layer.Name, err)
		}
	}
	return nil
}

func initContainer(db *sql.DB) error {
	stmts := []string{
		fmt.Sprintf("PRAGMA application_id = %d", applicationID),
		fmt.Sprintf("PRAGMA user_version = %d", userVersion),
		`CREATE TABLE IF NOT EXISTS gpkg_spatial_ref_sys (
			srs_name TEXT NOT NULL,
			srs_id INTEGER NOT NULL PRIMARY KEY,
			organization TEXT NOT NULL,
			organization_coordsys_id INTEGER NOT NULL,
			definition TEXT NOT NULL,
			description TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS gpkg_contents (
			table_name TEXT NOT NULL PRIMARY KEY,
			data_type TEXT NOT NULL,
			identifier TEXT UNIQUE,
			description TEXT DEFAULT '',
			last_change DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
			min_x DOUBLE, min_y DOUBLE, max_x DOUBLE, max_y DOUBLE,
			srs_id INTEGER,
			CONSTRAINT fk_gc_r_srs_id FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
		)`,
		`CREATE TABLE IF NOT EXISTS gpkg_geometry_columns (
			table_name TEXT NOT NULL,
			column_name TEXT NOT NULL,
			geometry_type_name TEXT NOT NULL,
			srs_id INTEGER NOT NULL,
			z TINYINT NOT NULL,
			m TINYINT NOT NULL,
			CONSTRAINT pk_geom_cols PRIMARY KEY (table_name, column_name),
			CONSTRAINT fk_gc_tn FOREIGN KEY (table_name) REFERENCES gpkg_contents(table_name),
			CONSTRAINT fk_gc_srs FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	srs := []struct {
		name      string
		id, orgID int
		org, defn string
		desc      string
	}{
		{"Undefined cartesian SRS", -1, -1, "NONE", "undefined", "undefined cartesian coordinate reference system"},
		{"Undefined geographic SRS", 0, 0, "NONE", "undefined", "undefined geographic coordinate reference system"},
		{"NZGD2000 / New Zealand Transverse Mercator 2000", 2193, 2193, "EPSG", nztmDefinition, ""},
	}
	for _, s := range srs {
		_, err := db.Exec(
			`INSERT OR IGNORE INTO gpkg_spatial_ref_sys
			 (srs_name, srs_id, organization, organization_coordsys_id, definition, description)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			s.name, s.id, s.org, s.orgID, s.defn, s.desc)
		if err != nil {
			return err
		}
	}
	return nil
}

type column struct {
	name    string
	sqlType string
}

func writeLayer(db *sql.DB, layer report.Layer) error {
	table := layer.Name
	if !identifierPattern.MatchString(table) {
		return fmt.Errorf("layer name %q is not a valid table name", table)
	}

	cols := propertyColumns(layer.Collection)
	defs := []string{"fid INTEGER PRIMARY KEY AUTOINCREMENT", "geom BLOB"}
	for _, c := range cols {
		defs = append(defs, fmt.Sprintf("%q %s", c.name, c.sqlType))
	}
	if _, err := db.Exec(fmt.Sprintf("CREATE TABLE %q (%s)", table, strings.Join(defs, ", "))); err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	placeholders := make([]string, 0, len(cols)+1)
	names := make([]string, 0, len(cols)+1)
	names = append(names, "geom")
	placeholders = append(placeholders, "?")
	for _, c := range cols {
		names = append(names, fmt.Sprintf("%q", c.name))
		placeholders = append(placeholders, "?")
	}
	stmt, err := tx.Prepare(fmt.Sprintf("INSERT INTO %q (%s) VALUES (%s)",
		table, strings.Join(names, ", "), strings.Join(placeholders, ", ")))
	if err != nil {
		return err
	}
	defer stmt.Close()

	bound := emptyBound()
	for _, feature := range layer.Collection.Features {
		blob, err := gpBinary(feature.Geometry, layer.SRID)
		if err != nil {
			return err
		}
		bound = bound.Union(feature.Geometry.Bound())

		args := make([]any, 0, len(cols)+1)
		args = append(args, blob)
		for _, c := range cols {
			args = append(args, sqlValue(feature.Properties[c.name]))
		}
		if _, err := stmt.Exec(args...); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	return registerLayer(db, layer, bound)
}

func registerLayer(db *sql.DB, layer report.Layer, bound orb.Bound) error {
	var minX, minY, maxX, maxY any
	if len(layer.Collection.Features) > 0 {
		minX, minY = bound.Min[0], bound.Min[1]
		maxX, maxY = bound.Max[0], bound.Max[1]
	}
	_, err := db.Exec(
		`INSERT INTO gpkg_contents
		 (table_name, data_type, identifier, min_x, min_y, max_x, max_y, srs_id)
		 VALUES (?, 'features', ?, ?, ?, ?, ?, ?)`,
		layer.Name, layer.Name, minX, minY, maxX, maxY, layer.SRID)
	if err != nil {
		return err
	}
	_, err = db.Exec(
		`INSERT INTO gpkg_geometry_columns
		 (table_name, column_name, geometry_type_name, srs_id, z, m)
		 VALUES (?, 'geom', ?, ?, 0, 0)`,
		layer.Name, geometryTypeName(layer.Collection), layer.SRID)
	return err
}

// propertyColumns derives the feature table columns from the union of
// property keys across the layer, typed from the first non-nil value seen.
func propertyColumns(fc *geojson.FeatureCollection) []column {
	types := map[string]string{}
	for _, feature := range fc.Features {
		for key, value := range feature.Properties {
			if !identifierPattern.MatchString(key) {
				continue
			}
			if _, seen := types[key]; seen && types[key] != "" {
				continue
			}
			types[key] = sqlTypeOf(value)
		}
	}
	names := make([]string, 0, len(types))
	for name := range types {
		names = append(names, name)
	}
	sort.Strings(names)

	cols := make([]column, 0, len(names))
	for _, name := range names {
		sqlType := types[name]
		if sqlType == "" {
			sqlType = "TEXT"
		}
		cols = append(cols, column{name: name, sqlType: sqlType})
	}
	return cols
}

func sqlTypeOf(value any) string {
	switch value.(type) {
	case nil:
		return ""
	case bool:
		return "BOOLEAN"
	case int, int32, int64:
		return "INTEGER"
	case float32, float64:
		return "REAL"
	default:
		return "TEXT"
	}
}

func sqlValue(value any) any {
	switch v := value.(type) {
	case nil, bool, int, int32, int64, float32, float64, string, []byte:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func geometryTypeName(fc *geojson.FeatureCollection) string {
	name := ""
	for _, feature := range fc.Features {
		t := strings.ToUpper(string(feature.Geometry.GeoJSONType()))
		if name == "" {
			name = t
			continue
		}
		if name != t {
			return "GEOMETRY"
		}
	}
	if name == "" {
		return "GEOMETRY"
	}
	return name
}

// gpBinary wraps a WKB encoding in the GeoPackage binary header: magic
// "GP", version 0, little-endian flags with no envelope, then the srs id.
func gpBinary(geom orb.Geometry, srid int) ([]byte, error) {
	body, err := wkb.Marshal(geom)
	if err != nil {
		return nil, err
	}
	header := make([]byte, 8)
	header[0] = 'G'
	header[1] = 'P'
	header[2] = 0
	header[3] = 0x01
	binary.LittleEndian.PutUint32(header[4:], uint32(int32(srid)))
	return append(header, body...), nil
}

func emptyBound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{math.Inf(1), math.Inf(1)},
		Max: orb.Point{math.Inf(-1), math.Inf(-1)},
	}
}

