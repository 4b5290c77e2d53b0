package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"floorfilter/internal/fields"
	"floorfilter/internal/levels"
	"floorfilter/internal/sqlcgen"
)

type Pool struct {
	pool *pgxpool.Pool
}

func Open(ctx context.Context, databaseURL string) (*Pool, error) {
	p, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	// Verify connectivity early.
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, err
	}

	return &Pool{pool: p}, nil
}

func (p *Pool) Close() {
	if p == nil || p.pool == nil {
		return
	}
	p.pool.Close()
}

func (p *Pool) Ping(ctx context.Context) error {
	if p == nil || p.pool == nil {
		return nil
	}
	return p.pool.Ping(ctx)
}

func (p *Pool) Queries() *sqlcgen.Queries {
	return sqlcgen.New(p.pool)
}

// Source reads the level table and the optional facilities table of an
// indoor dataset stored in Postgres.
func (p *Pool) Source(levelsTable, facilitiesTable string) (*TableSource, error) {
	return NewTableSource(p.Queries(), levelsTable, facilitiesTable)
}

// TableSource serves level and facility rows from a sqlcgen query set.
type TableSource struct {
	q          *sqlcgen.Queries
	levels     sqlcgen.TableRef
	facilities *sqlcgen.TableRef
}

// NewTableSource validates the table names. An empty facilitiesTable disables
// the facility feature cache.
func NewTableSource(q *sqlcgen.Queries, levelsTable, facilitiesTable string) (*TableSource, error) {
	lt, err := sqlcgen.ParseTableRef(levelsTable)
	if err != nil {
		return nil, fmt.Errorf("levels table: %w", err)
	}
	s := &TableSource{q: q, levels: lt}
	if facilitiesTable != "" {
		ft, err := sqlcgen.ParseTableRef(facilitiesTable)
		if err != nil {
			return nil, fmt.Errorf("facilities table: %w", err)
		}
		s.facilities = &ft
	}
	return s, nil
}

func (s *TableSource) LevelRows(ctx context.Context) ([]levels.Row, error) {
	return s.q.ListLevels(ctx, s.levels)
}

func (s *TableSource) FacilityRows(ctx context.Context) ([]map[string]any, []fields.Field, error) {
	if s.facilities == nil {
		return nil, nil, nil
	}
	t, err := s.q.ListFacilities(ctx, *s.facilities)
	if err != nil {
		return nil, nil, err
	}
	return t.Rows, t.Columns, nil
}
