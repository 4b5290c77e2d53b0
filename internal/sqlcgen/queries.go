package sqlcgen

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"floorfilter/internal/fields"
)

// DBTX matches the minimal interface needed from pgxpool.Pool or pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgx.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

// ParseTableRef splits "schema.table" into its parts. A bare name has no
// schema.
func ParseTableRef(name string) (TableRef, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return TableRef{}, fmt.Errorf("table name is required")
	}
	parts := strings.Split(name, ".")
	switch len(parts) {
	case 1:
		return TableRef{Name: parts[0]}, nil
	case 2:
		if parts[0] == "" || parts[1] == "" {
			return TableRef{}, fmt.Errorf("invalid table name %q", name)
		}
		return TableRef{Schema: parts[0], Name: parts[1]}, nil
	default:
		return TableRef{}, fmt.Errorf("invalid table name %q", name)
	}
}

func (t TableRef) identifier() pgx.Identifier {
	if t.Schema == "" {
		return pgx.Identifier{t.Name}
	}
	return pgx.Identifier{t.Schema, t.Name}
}

func (t TableRef) String() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

const selectAllRows = `-- name: SelectAllRows :many
SELECT * FROM %s WHERE 1=1`

// SelectAll reads every row of table. Geometry and other binary columns are
// dropped from the rows; they are never used for filtering.
func (q *Queries) SelectAll(ctx context.Context, table TableRef) (TableRows, error) {
	sql := fmt.Sprintf(selectAllRows, table.identifier().Sanitize())
	rows, err := q.db.Query(ctx, sql)
	if err != nil {
		return TableRows{}, err
	}
	defer rows.Close()

	descs := rows.FieldDescriptions()
	out := TableRows{Columns: make([]fields.Field, len(descs))}
	for i, fd := range descs {
		out.Columns[i] = fields.Field{Name: fd.Name, Type: FieldTypeForOID(fd.Name, fd.DataTypeOID)}
	}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return TableRows{}, err
		}
		row := make(map[string]any, len(values))
		for i, col := range out.Columns {
			if col.Type == fields.TypeOther {
				continue
			}
			row[col.Name] = normalizeValue(values[i])
		}
		out.Rows = append(out.Rows, row)
	}
	return out, rows.Err()
}

// ListLevels reads the level table.
func (q *Queries) ListLevels(ctx context.Context, table TableRef) ([]map[string]any, error) {
	t, err := q.SelectAll(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("list levels from %s: %w", table, err)
	}
	return t.Rows, nil
}

// ListFacilities reads the facilities table together with its schema.
func (q *Queries) ListFacilities(ctx context.Context, table TableRef) (TableRows, error) {
	t, err := q.SelectAll(ctx, table)
	if err != nil {
		return TableRows{}, fmt.Errorf("list facilities from %s: %w", table, err)
	}
	return t, nil
}

// FieldTypeForOID maps a Postgres column type onto a field type. Columns
// named objectid are treated as the object id field.
func FieldTypeForOID(name string, oid uint32) fields.Type {
	if strings.EqualFold(name, "objectid") {
		return fields.TypeOID
	}
	switch oid {
	case pgtype.TextOID, pgtype.VarcharOID, pgtype.BPCharOID, pgtype.NameOID, pgtype.UUIDOID:
		return fields.TypeString
	case pgtype.Int2OID, pgtype.Int4OID, pgtype.Int8OID:
		return fields.TypeInteger
	case pgtype.Float4OID, pgtype.Float8OID, pgtype.NumericOID:
		return fields.TypeDouble
	default:
		return fields.TypeOther
	}
}

func normalizeValue(v any) any {
	switch x := v.(type) {
	case [16]byte:
		return fmt.Sprintf("%x-%x-%x-%x-%x", x[0:4], x[4:6], x[6:8], x[8:10], x[10:16])
	case pgtype.Numeric:
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	default:
		return v
	}
}
