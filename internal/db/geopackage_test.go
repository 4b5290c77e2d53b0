package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"floorfilter/internal/fields"
)

func seedGeoPackage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "indoors.gpkg")
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = conn.Close() }()

	stmts := []string{
		`CREATE TABLE levels (fid INTEGER PRIMARY KEY, facility_id TEXT, facility_name TEXT, level_id TEXT, name TEXT, vertical_order INTEGER, geom BLOB)`,
		`INSERT INTO levels VALUES (1, 'F1', 'Alpha', 'L1', 'Ground', 0, x'00')`,
		`INSERT INTO levels VALUES (2, 'F1', 'Alpha', 'L2', 'First', 1, NULL)`,
		`CREATE TABLE facilities (fid INTEGER PRIMARY KEY, facility_id TEXT, name TEXT)`,
		`INSERT INTO facilities VALUES (7, 'F1', 'Alpha')`,
	}
	for _, s := range stmts {
		if _, err := conn.Exec(s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}
	return path
}

func TestGeoPackage_ReadsTables(t *testing.T) {
	ctx := context.Background()
	g, err := OpenGeoPackage(ctx, seedGeoPackage(t), "levels", "facilities")
	if err != nil {
		t.Fatalf("open geopackage: %v", err)
	}
	defer func() { _ = g.Close() }()

	rows, err := g.LevelRows(ctx)
	if err != nil {
		t.Fatalf("level rows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 level rows, got %d", len(rows))
	}
	if rows[0]["facility_id"] != "F1" || rows[1]["level_id"] != "L2" {
		t.Fatalf("unexpected rows %v", rows)
	}
	if n, ok := fields.ToNumber(rows[1]["vertical_order"]); !ok || n != 1 {
		t.Fatalf("expected vertical order 1, got %v", rows[1]["vertical_order"])
	}
	if _, ok := rows[0]["geom"]; ok {
		t.Fatalf("expected geometry column to be dropped")
	}

	facRows, schema, err := g.FacilityRows(ctx)
	if err != nil {
		t.Fatalf("facility rows: %v", err)
	}
	if len(facRows) != 1 || len(schema) != 3 {
		t.Fatalf("expected 1 facility with 3 columns, got %d / %d", len(facRows), len(schema))
	}
	if schema[0].Type != fields.TypeOID {
		t.Fatalf("expected fid to be the object id field, got %s", schema[0].Type)
	}
}

func TestGeoPackage_MissingTable(t *testing.T) {
	ctx := context.Background()
	g, err := OpenGeoPackage(ctx, seedGeoPackage(t), "nope", "")
	if err != nil {
		t.Fatalf("open geopackage: %v", err)
	}
	defer func() { _ = g.Close() }()

	if _, err := g.LevelRows(ctx); err == nil {
		t.Fatalf("expected missing table to fail")
	}
	rows, schema, err := g.FacilityRows(ctx)
	if err != nil || rows != nil || schema != nil {
		t.Fatalf("expected no facilities without a table, got %v %v %v", rows, schema, err)
	}
}

func TestSqliteFieldType(t *testing.T) {
	cases := map[string]fields.Type{
		"TEXT":        fields.TypeString,
		"varchar(36)": fields.TypeString,
		"INTEGER":     fields.TypeInteger,
		"REAL":        fields.TypeDouble,
		"POLYGON":     fields.TypeOther,
		"":            fields.TypeOther,
	}
	for declared, want := range cases {
		if got := sqliteFieldType("col", declared); got != want {
			t.Fatalf("%q: expected %s, got %s", declared, want, got)
		}
	}
}

func TestNewTableSource(t *testing.T) {
	if _, err := NewTableSource(nil, "", ""); err == nil {
		t.Fatalf("expected empty levels table to fail")
	}
	s, err := NewTableSource(nil, "indoors.levels", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rows, schema, err := s.FacilityRows(context.Background())
	if err != nil || rows != nil || schema != nil {
		t.Fatalf("expected no facilities without a table")
	}
}
