package inspector

import (
	"context"
	"fmt"
)

// Column describes a table column as declared.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"` // declared type, may be empty
}

// Table is a user table with its columns in declaration order.
type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// Schema lists user tables in catalog order.
type Schema []Table

// Map returns columns keyed by table name.
func (s Schema) Map() map[string][]Column {
	res := make(map[string][]Column, len(s))
	for _, t := range s {
		res[t.Name] = t.Columns
	}
	return res
}

// Names returns table names in catalog order.
func (s Schema) Names() []string {
	res := make([]string, 0, len(s))
	for _, t := range s {
		res = append(res, t.Name)
	}
	return res
}

// ListSchema returns all user tables with their columns. Engine tables (sqlite_*) are skipped.
// An empty database gives an empty schema and no error.
func (s *Session) ListSchema(ctx context.Context) (Schema, error) {
	db, err := s.handle(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return nil, fmt.Errorf("can't list tables: %w", err)
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("can't scan table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("can't list tables: %w", err)
	}
	// rows are drained before the per-table queries, the pool has a single connection
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("can't list tables: %w", err)
	}

	res := make(Schema, 0, len(names))
	for _, name := range names {
		cols, err := s.columns(ctx, name)
		if err != nil {
			return nil, err
		}
		res = append(res, Table{Name: name, Columns: cols})
	}
	return res, nil
}

func (s *Session) columns(ctx context.Context, table string) ([]Column, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, type FROM pragma_table_info(?) ORDER BY cid`, table)
	if err != nil {
		return nil, fmt.Errorf("can't get columns of %s: %w", table, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	cols := []Column{}
	for rows.Next() {
		var c Column
		if err := rows.Scan(&c.Name, &c.Type); err != nil {
			return nil, fmt.Errorf("can't scan column of %s: %w", table, err)
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}
