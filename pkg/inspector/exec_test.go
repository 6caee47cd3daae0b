package inspector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRead(t *testing.T) {
	tests := []struct {
		stmt string
		want bool
	}{
		{"SELECT * FROM users", true},
		{"  select 1", true},
		{"\n\tSeLeCt name FROM users", true},
		{"SELECTX", true}, // prefix check, not a parse
		{"SELEKT 1", false},
		{"WITH t AS (SELECT 1) SELECT * FROM t", false},
		{"EXPLAIN SELECT 1", false},
		{"INSERT INTO users (name) VALUES ('a')", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.stmt, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRead(tt.stmt))
		})
	}
}

func TestSession_Execute(t *testing.T) {
	ctx := context.Background()

	t.Run("select on fresh database is empty", func(t *testing.T) {
		s := newSession(t)
		_, err := s.OpenOrCreate(ctx, "demo")
		require.NoError(t, err)

		res, err := s.Execute(ctx, "SELECT * FROM users")
		require.NoError(t, err)
		assert.Equal(t, KindRead, res.Kind)
		assert.True(t, res.Empty())
		assert.Equal(t, []string{"id", "name", "age", "city"}, res.Columns)
		assert.NotNil(t, res.Rows)
	})

	t.Run("insert then select", func(t *testing.T) {
		s := newSession(t)
		_, err := s.OpenOrCreate(ctx, "demo")
		require.NoError(t, err)

		res, err := s.Execute(ctx, "INSERT INTO users (name, age, city) VALUES ('Alice', 25, 'NYC')")
		require.NoError(t, err)
		assert.Equal(t, KindWrite, res.Kind)
		assert.Equal(t, int64(1), res.RowsAffected)

		res, err = s.Execute(ctx, "SELECT * FROM users")
		require.NoError(t, err)
		require.Len(t, res.Rows, 1)
		assert.Equal(t, Row{"id": int64(1), "name": "Alice", "age": int64(25), "city": "NYC"}, res.Rows[0])

		assert.Equal(t, []string{
			"INSERT INTO users (name, age, city)\nVALUES ('Alice', 25, 'NYC')",
			"SELECT *\nFROM users",
		}, s.History())
	})

	t.Run("unknown table recorded before error", func(t *testing.T) {
		s := newSession(t)
		res, err := s.Execute(ctx, "SELECT * FROM nosuchtable")
		require.Error(t, err)
		var stErr *StatementError
		require.True(t, errors.As(err, &stErr))
		assert.Contains(t, stErr.Error(), "no such table")
		assert.Equal(t, "SELECT * FROM nosuchtable", stErr.Statement)
		assert.Equal(t, Result{}, res)
		assert.Equal(t, []string{"SELECT *\nFROM nosuchtable"}, s.History())
	})

	t.Run("malformed select routed to write path", func(t *testing.T) {
		s := newSession(t)
		_, err := s.Execute(ctx, "SELEKT 1")
		var stErr *StatementError
		require.True(t, errors.As(err, &stErr))
		assert.Contains(t, stErr.Error(), "syntax error")
		assert.Equal(t, []string{"SELEKT 1"}, s.History())
	})

	t.Run("script with multiple statements", func(t *testing.T) {
		s := newSession(t)
		_, err := s.Execute(ctx, `CREATE TABLE students (id INTEGER PRIMARY KEY, name TEXT, grade INTEGER);
			INSERT INTO students (name, grade) VALUES ('Bob', 3);
			INSERT INTO students (name, grade) VALUES ('Eve', 4);`)
		require.NoError(t, err)

		res, err := s.Execute(ctx, "SELECT name FROM students ORDER BY grade")
		require.NoError(t, err)
		require.Len(t, res.Rows, 2)
		assert.Equal(t, "Bob", res.Rows[0]["name"])
		assert.Equal(t, "Eve", res.Rows[1]["name"])
		assert.Equal(t, 2, s.history.Len())
	})

	t.Run("failing script keeps applied statements", func(t *testing.T) {
		s := newSession(t)
		_, err := s.Execute(ctx, "INSERT INTO users (name) VALUES ('kept'); INSERT INTO users (age) VALUES (1);")
		var stErr *StatementError
		require.True(t, errors.As(err, &stErr))
		assert.Contains(t, stErr.Error(), "NOT NULL")

		res, err := s.Execute(ctx, "SELECT name FROM users")
		require.NoError(t, err)
		require.Len(t, res.Rows, 1)
		assert.Equal(t, "kept", res.Rows[0]["name"])
	})

	t.Run("open transaction committed", func(t *testing.T) {
		s := newSession(t)
		path, err := s.OpenOrCreate(ctx, "tx")
		require.NoError(t, err)
		_, err = s.Execute(ctx, "BEGIN; INSERT INTO users (name) VALUES ('in tx');")
		require.NoError(t, err)

		// reopen to make sure the change reached the file
		other := &Session{Dir: s.Dir}
		defer other.Close()
		_, err = other.OpenOrCreate(ctx, "tx")
		require.NoError(t, err)
		res, err := other.Execute(ctx, "SELECT name FROM users")
		require.NoError(t, err)
		require.Len(t, res.Rows, 1, path)
		assert.Equal(t, "in tx", res.Rows[0]["name"])
	})

	t.Run("ddl changes schema", func(t *testing.T) {
		s := newSession(t)
		_, err := s.Execute(ctx, "CREATE TABLE orders (order_id INTEGER PRIMARY KEY, user_id INTEGER, amount REAL, note)")
		require.NoError(t, err)
		schema, err := s.ListSchema(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"users", "orders"}, schema.Names())
		assert.Equal(t, []Column{{"order_id", "INTEGER"}, {"user_id", "INTEGER"}, {"amount", "REAL"}, {"note", ""}},
			schema.Map()["orders"])

		_, err = s.Execute(ctx, "DROP TABLE orders")
		require.NoError(t, err)
		schema, err = s.ListSchema(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"users"}, schema.Names())
	})

	t.Run("blank statement is a no-op", func(t *testing.T) {
		s := newSession(t)
		res, err := s.Execute(ctx, "   ")
		require.NoError(t, err)
		assert.Equal(t, KindWrite, res.Kind)
		assert.Equal(t, []string{""}, s.History())
	})

	t.Run("select with trailing statement rejected", func(t *testing.T) {
		s := newSession(t)
		_, err := s.Execute(ctx, "INSERT INTO users (name) VALUES ('Alice')")
		require.NoError(t, err)

		for _, stmt := range []string{"SELECT * FROM users; DELETE FROM users", "SELECT 1; DROP TABLE users;"} {
			res, err := s.Execute(ctx, stmt)
			var stErr *StatementError
			require.True(t, errors.As(err, &stErr), stmt)
			assert.ErrorIs(t, err, ErrMultipleStatements)
			assert.Equal(t, stmt, stErr.Statement)
			assert.Equal(t, Result{}, res)
		}

		res, err := s.Execute(ctx, "SELECT name FROM users")
		require.NoError(t, err)
		require.Len(t, res.Rows, 1, "trailing statements not executed")
		assert.Equal(t, "Alice", res.Rows[0]["name"])
		assert.Len(t, s.History(), 4)
	})

	t.Run("select with terminator and semicolon in literal", func(t *testing.T) {
		s := newSession(t)
		res, err := s.Execute(ctx, "SELECT 'a;b' AS v;")
		require.NoError(t, err)
		require.Len(t, res.Rows, 1)
		assert.Equal(t, "a;b", res.Rows[0]["v"])
	})

	t.Run("rows affected counts the whole script only", func(t *testing.T) {
		s := newSession(t)
		res, err := s.Execute(ctx, "INSERT INTO users (name) VALUES ('a'); INSERT INTO users (name) VALUES ('b');")
		require.NoError(t, err)
		assert.Equal(t, int64(2), res.RowsAffected)

		res, err = s.Execute(ctx, "UPDATE users SET age = 1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), res.RowsAffected)

		// comment first routes a select to the write path, nothing is changed by it
		res, err = s.Execute(ctx, "-- c\nSELECT 1")
		require.NoError(t, err)
		assert.Equal(t, KindWrite, res.Kind)
		assert.Equal(t, int64(0), res.RowsAffected)

		res, err = s.Execute(ctx, "CREATE TABLE t (x)")
		require.NoError(t, err)
		assert.Equal(t, int64(0), res.RowsAffected)
	})

	t.Run("constraint violation", func(t *testing.T) {
		s := newSession(t)
		_, err := s.Execute(ctx, "INSERT INTO users (age) VALUES (3)")
		var stErr *StatementError
		require.True(t, errors.As(err, &stErr))
		assert.NotNil(t, errors.Unwrap(err))
	})
}

func TestSession_ListSchema_Empty(t *testing.T) {
	ctx := context.Background()
	s := newSession(t)
	_, err := s.Execute(ctx, "DROP TABLE users")
	require.NoError(t, err)

	schema, err := s.ListSchema(ctx)
	require.NoError(t, err)
	assert.Empty(t, schema)
	assert.Empty(t, schema.Map())
}

func TestSession_TableRows(t *testing.T) {
	ctx := context.Background()
	s := newSession(t)
	_, err := s.Execute(ctx, `CREATE TABLE "odd ""name""" (v TEXT); INSERT INTO "odd ""name""" VALUES ('x')`)
	require.NoError(t, err)
	historyLen := len(s.History())

	res, err := s.TableRows(ctx, `odd "name"`)
	require.NoError(t, err)
	assert.Equal(t, []string{"v"}, res.Columns)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "x", res.Rows[0]["v"])

	res, err = s.TableRows(ctx, "users")
	require.NoError(t, err)
	assert.True(t, res.Empty())

	_, err = s.TableRows(ctx, "missing")
	var stErr *StatementError
	require.True(t, errors.As(err, &stErr))

	assert.Len(t, s.History(), historyLen, "table view is not recorded")
}

func TestHistory(t *testing.T) {
	var h History
	assert.Empty(t, h.List())
	h.Append("a")
	h.Append("b")
	h.Append("a")
	assert.Equal(t, []string{"a", "b", "a"}, h.List())

	l := h.List()
	l[0] = "changed"
	assert.Equal(t, "a", h.List()[0], "list returns a copy")
	assert.Equal(t, 3, h.Len())
}
