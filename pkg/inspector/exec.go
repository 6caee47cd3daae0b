package inspector

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/go-pkgz/stringutils"

	"github.com/umputun/sqltes/pkg/sqlfmt"
)

// Kind tells how a statement was executed.
type Kind string

// supported kinds
const (
	KindRead  Kind = "read"
	KindWrite Kind = "write"
)

// Row maps column names to values as returned by the driver.
type Row map[string]any

// Result is the outcome of a successful statement.
// Read results carry columns and rows, write results carry the number of rows the whole script changed.
type Result struct {
	Kind         Kind     `json:"kind"`
	Columns      []string `json:"columns"`
	Rows         []Row    `json:"rows"`
	RowsAffected int64    `json:"rows_affected,omitempty"`
}

// Empty reports a read result without rows.
func (r Result) Empty() bool {
	return r.Kind == KindRead && len(r.Rows) == 0
}

// IsRead reports whether stmt goes to the read path. This is a textual check only:
// the trimmed, upper-cased text must start with SELECT.
func IsRead(stmt string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(stmt)), "SELECT")
}

// Execute records the reformatted statement in history and runs it. Statements starting with SELECT
// are queried and all rows are returned, such text must hold a single statement. Anything else
// runs as a script and gets committed.
// Engine failures are returned as *StatementError, effects of already applied statements stay.
func (s *Session) Execute(ctx context.Context, stmt string) (Result, error) {
	s.history.Append(sqlfmt.Format(stmt))

	db, err := s.handle(ctx)
	if err != nil {
		return Result{}, err
	}

	if IsRead(stmt) {
		log.Printf("[DEBUG] query %q", preview(stmt))
		if sqlfmt.Inspect(stmt).Statements > 1 {
			return Result{}, &StatementError{Statement: stmt, Err: ErrMultipleStatements}
		}
		return s.query(ctx, db, stmt)
	}

	log.Printf("[DEBUG] exec %q", preview(stmt))
	if stringutils.IsBlank(stmt) {
		return Result{Kind: KindWrite}, nil
	}
	before, err := totalChanges(ctx, db)
	if err != nil {
		return Result{}, err
	}
	if _, err = db.ExecContext(ctx, stmt); err != nil {
		return Result{}, &StatementError{Statement: stmt, Err: err}
	}
	after, err := totalChanges(ctx, db)
	if err != nil {
		return Result{}, err
	}
	if err := commit(ctx, db); err != nil {
		return Result{}, &StatementError{Statement: stmt, Err: err}
	}
	return Result{Kind: KindWrite, RowsAffected: after - before}, nil
}

// totalChanges returns rows inserted, updated or deleted on the connection since it was opened.
// Unlike the driver's RowsAffected it isn't left over from an earlier statement when the script
// changes nothing.
func totalChanges(ctx context.Context, db *sql.DB) (int64, error) {
	var n int64
	if err := db.QueryRowContext(ctx, "SELECT total_changes()").Scan(&n); err != nil {
		return 0, fmt.Errorf("can't count changes: %w", err)
	}
	return n, nil
}

// TableRows returns all rows of a table. Unlike Execute it is not recorded in history.
func (s *Session) TableRows(ctx context.Context, table string) (Result, error) {
	db, err := s.handle(ctx)
	if err != nil {
		return Result{}, err
	}
	return s.query(ctx, db, "SELECT * FROM "+quoteIdent(table))
}

func (s *Session) query(ctx context.Context, db *sql.DB, stmt string) (Result, error) {
	rows, err := db.QueryContext(ctx, stmt)
	if err != nil {
		return Result{}, &StatementError{Statement: stmt, Err: err}
	}
	defer func() {
		_ = rows.Close()
	}()

	cols, err := rows.Columns()
	if err != nil {
		return Result{}, &StatementError{Statement: stmt, Err: err}
	}

	res := Result{Kind: KindRead, Columns: cols, Rows: []Row{}}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Result{}, &StatementError{Statement: stmt, Err: err}
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			row[c] = vals[i]
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return Result{}, &StatementError{Statement: stmt, Err: err}
	}
	return res, nil
}

// commit finishes a transaction the script may have left open.
// Without one the changes are already durable in autocommit mode.
func commit(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, "COMMIT")
	if err != nil && !strings.Contains(err.Error(), "no transaction is active") {
		return fmt.Errorf("can't commit: %w", err)
	}
	return nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func preview(stmt string) string {
	return stringutils.Truncate(stringutils.NormalizeWhitespace(stmt), 80)
}
