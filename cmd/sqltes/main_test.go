package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runArgs parses args the same way main does and runs the selected command with input fed to stdin
func runArgs(t *testing.T, input string, args ...string) (string, error) {
	t.Helper()
	var opts options
	p := flags.NewParser(&opts, flags.PassDoubleDash|flags.HelpFlag)
	p.SubcommandsOptional = true
	_, err := p.ParseArgs(args)
	require.NoError(t, err)
	opts.NoColor = true

	var out bytes.Buffer
	err = run(context.Background(), p, opts, streams{in: strings.NewReader(input), out: &out})
	return out.String(), err
}

func Test_runExec(t *testing.T) {
	dir := t.TempDir()

	out, err := runArgs(t, "", "--data", dir, "exec",
		"INSERT INTO users (name, age, city) VALUES ('Alice', 25, 'NYC')", "SELECT name, age FROM users")
	require.NoError(t, err)
	assert.Equal(t, "command executed successfully, 1 row affected\nname   age\nAlice  25\n(1 row)\n", out)
	assert.FileExists(t, filepath.Join(dir, "default.sqlite"))

	out, err = runArgs(t, "", "--data", dir, "exec", "--history", "SELECT count(*) AS n FROM users")
	require.NoError(t, err)
	assert.Equal(t, "n\n1\n(1 row)\n#1\nSELECT count(*) AS n\nFROM users\n", out, "data persisted between runs")
}

func Test_runExecFailed(t *testing.T) {
	dir := t.TempDir()
	out, err := runArgs(t, "", "--data", dir, "exec", "SELECT * FROM nosuchtable", "SELECT 1 AS one", "SELEKT 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 errors occurred")
	assert.Contains(t, err.Error(), "statement #1:")
	assert.Contains(t, err.Error(), "no such table: nosuchtable")
	assert.Contains(t, err.Error(), "statement #3:")

	assert.Contains(t, out, "no such table: nosuchtable")
	assert.Contains(t, out, "check SQL syntax or table names")
	assert.Contains(t, out, "one\n1\n(1 row)")
}

func Test_runExecFile(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "seed.sql")
	err := os.WriteFile(script, []byte(`CREATE TABLE products (id INTEGER PRIMARY KEY, title TEXT);
INSERT INTO products (title) VALUES ('pen');
INSERT INTO products (title) VALUES ('book');`), 0o600)
	require.NoError(t, err)

	out, err := runArgs(t, "", "--data", dir, "--db", "shop", "exec", "--file", script, "SELECT title FROM products ORDER BY id")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "command executed successfully"))
	assert.True(t, strings.HasSuffix(out, "title\npen\nbook\n(2 rows)\n"))
	assert.FileExists(t, filepath.Join(dir, "shop.sqlite"))

	_, err = runArgs(t, "", "--data", dir, "exec", "--file", filepath.Join(dir, "missing.sql"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	_, err = runArgs(t, "", "--data", dir, "exec")
	require.EqualError(t, err, "no statements to execute")
}

func Test_runSchemaAndTable(t *testing.T) {
	dir := t.TempDir()
	_, err := runArgs(t, "", "--data", dir, "exec", "CREATE TABLE notes (body)", "INSERT INTO notes VALUES ('hi')")
	require.NoError(t, err)

	out, err := runArgs(t, "", "--data", dir, "schema")
	require.NoError(t, err)
	assert.Contains(t, out, "table: users\ncolumn  type\nid      INTEGER\nname    TEXT\nage     INTEGER\ncity    TEXT\n")
	assert.Contains(t, out, "table: notes\ncolumn  type\nbody\n")

	out, err = runArgs(t, "", "--data", dir, "table", "notes")
	require.NoError(t, err)
	assert.Equal(t, "data in \"notes\" table:\nbody\nhi\n", out)

	_, err = runArgs(t, "", "--data", dir, "table", "nosuchtable")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `can't read table "nosuchtable"`)
}

func Test_runExamples(t *testing.T) {
	out, err := runArgs(t, "", "--data", t.TempDir(), "examples")
	require.NoError(t, err)
	assert.Contains(t, out, "Beginner:\n  1. INSERT INTO users")
	assert.Contains(t, out, "Advanced:\n")

	out, err = runArgs(t, "", "--data", t.TempDir(), "examples", "INTERMEDIATE")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Intermediate:\n  1. CREATE TABLE students"))

	_, err = runArgs(t, "", "--data", t.TempDir(), "examples", "expert")
	require.EqualError(t, err, `example level "expert" not found, known levels: Beginner, Intermediate, Advanced`)
}

func Test_runExamplesFromConfig(t *testing.T) {
	dir := t.TempDir()
	conf := filepath.Join(dir, "sqltes.yml")
	err := os.WriteFile(conf, []byte("examples:\n  - level: Mine\n    queries:\n      - SELECT 1\n"), 0o600)
	require.NoError(t, err)

	out, err := runArgs(t, "", "--config", conf, "--data", dir, "examples")
	require.NoError(t, err)
	assert.Equal(t, "Mine:\n  1. SELECT 1\n", out)
}

func Test_runBadConfig(t *testing.T) {
	dir := t.TempDir()
	conf := filepath.Join(dir, "sqltes.yml")
	require.NoError(t, os.WriteFile(conf, []byte("bad_field: 1\n"), 0o600))

	_, err := runArgs(t, "", "--config", conf, "schema")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "can't load config")

	_, err = runArgs(t, "", "--db", "***", "--data", dir, "schema")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no usable characters")
}

func Test_runShell(t *testing.T) {
	dir := t.TempDir()
	out, err := runArgs(t, "INSERT INTO users (name) VALUES ('Bob');\nSELECT name FROM users;\n.history\n", "--data", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "command executed successfully, 1 row affected\nname\nBob\n(1 row)\n#1\n")
	assert.NotContains(t, out, "type .help for commands", "no banner without terminal")

	out, err = runArgs(t, ".tables\n", "--data", dir, "shell")
	require.NoError(t, err)
	assert.Equal(t, "users\n", out)
}

func Test_runServe(t *testing.T) {
	var opts options
	p := flags.NewParser(&opts, flags.PassDoubleDash|flags.HelpFlag)
	p.SubcommandsOptional = true
	_, err := p.ParseArgs([]string{"--data", t.TempDir(), "serve", "--listen", "127.0.0.1:0", "--max-sessions", "5"})
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, opts.ServeCmd.SessionTTL)
	assert.Equal(t, 5, opts.ServeCmd.MaxSessions)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err = run(ctx, p, opts, streams{in: strings.NewReader(""), out: &bytes.Buffer{}})
	assert.NoError(t, err)
}

func Test_formatErrorString(t *testing.T) {
	tbl := []struct {
		name   string
		input  string
		output string
	}{
		{
			name:  "two errors",
			input: "can't execute: 2 errors occurred:\n\t* statement #1: no such table: t\n\t* statement #3: syntax error\n\n",
			output: `can't execute: 2 errors occurred:
   [0] statement #1: no such table: t
   [1] statement #3: syntax error
`,
		},
		{
			name:  "one error",
			input: "can't execute: 1 error occurred:\n\t* statement #2: no such table: t\n\n",
			output: `can't execute: 1 error occurred:
   [0] statement #2: no such table: t
`,
		},
		{
			name:   "different string without errors",
			input:  "different string without errors",
			output: "different string without errors",
		},
	}

	for _, tt := range tbl {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.output, formatErrorString(tt.input))
		})
	}
}

func Test_setupLog(t *testing.T) {
	setupLog(true, true)
	setupLog(false, false)
}
