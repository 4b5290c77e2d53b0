package sqlcgen

import "floorfilter/internal/fields"

// TableRows is the full content of an indoor dataset table. Columns carries
// the schema in select order; each row is keyed by column name.
type TableRows struct {
	Columns []fields.Field
	Rows    []map[string]any
}

// TableRef names a table, optionally schema qualified ("indoors.levels").
type TableRef struct {
	Schema string
	Name   string
}
