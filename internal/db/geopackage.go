package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"floorfilter/internal/fields"
	"floorfilter/internal/levels"
	"floorfilter/internal/sqlcgen"
)

// GeoPackage reads level and facility tables from a GeoPackage or any other
// SQLite file.
type GeoPackage struct {
	db         *sql.DB
	levels     string
	facilities string
}

func OpenGeoPackage(ctx context.Context, path, levelsTable, facilitiesTable string) (*GeoPackage, error) {
	if strings.TrimSpace(levelsTable) == "" {
		return nil, fmt.Errorf("levels table is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open geopackage: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open geopackage: %w", err)
	}
	return &GeoPackage{db: db, levels: levelsTable, facilities: facilitiesTable}, nil
}

func (g *GeoPackage) Close() error {
	if g == nil || g.db == nil {
		return nil
	}
	return g.db.Close()
}

func (g *GeoPackage) Ping(ctx context.Context) error {
	if g == nil || g.db == nil {
		return nil
	}
	return g.db.PingContext(ctx)
}

func (g *GeoPackage) LevelRows(ctx context.Context) ([]levels.Row, error) {
	t, err := g.selectAll(ctx, g.levels)
	if err != nil {
		return nil, fmt.Errorf("list levels from %s: %w", g.levels, err)
	}
	return t.Rows, nil
}

func (g *GeoPackage) FacilityRows(ctx context.Context) ([]map[string]any, []fields.Field, error) {
	if g.facilities == "" {
		return nil, nil, nil
	}
	t, err := g.selectAll(ctx, g.facilities)
	if err != nil {
		return nil, nil, fmt.Errorf("list facilities from %s: %w", g.facilities, err)
	}
	return t.Rows, t.Columns, nil
}

func (g *GeoPackage) selectAll(ctx context.Context, table string) (sqlcgen.TableRows, error) {
	rows, err := g.db.QueryContext(ctx, "SELECT * FROM "+quoteIdent(table)+" WHERE 1=1")
	if err != nil {
		return sqlcgen.TableRows{}, err
	}
	defer func() { _ = rows.Close() }()

	types, err := rows.ColumnTypes()
	if err != nil {
		return sqlcgen.TableRows{}, err
	}
	out := sqlcgen.TableRows{Columns: make([]fields.Field, len(types))}
	for i, ct := range types {
		out.Columns[i] = fields.Field{Name: ct.Name(), Type: sqliteFieldType(ct.Name(), ct.DatabaseTypeName())}
	}

	values := make([]any, len(types))
	dest := make([]any, len(types))
	for i := range values {
		dest[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return sqlcgen.TableRows{}, err
		}
		row := make(map[string]any, len(values))
		for i, col := range out.Columns {
			if col.Type == fields.TypeOther {
				continue
			}
			row[col.Name] = values[i]
		}
		out.Rows = append(out.Rows, row)
	}
	return out, rows.Err()
}

// sqliteFieldType maps a declared column type onto a field type. GeoPackage
// feature tables key rows by an integer "fid" column.
func sqliteFieldType(name, declared string) fields.Type {
	if strings.EqualFold(name, "fid") || strings.EqualFold(name, "objectid") {
		return fields.TypeOID
	}
	declared = strings.ToUpper(strings.TrimSpace(declared))
	if i := strings.IndexByte(declared, '('); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	switch declared {
	case "TEXT", "VARCHAR", "CHAR", "CLOB":
		return fields.TypeString
	case "INTEGER", "INT", "TINYINT", "SMALLINT", "MEDIUMINT", "BIGINT":
		return fields.TypeInteger
	case "REAL", "DOUBLE", "FLOAT", "NUMERIC", "DECIMAL":
		return fields.TypeDouble
	default:
		return fields.TypeOther
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
