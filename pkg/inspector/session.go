// Package inspector is a small facade over an embedded SQLite database. A Session opens or
// creates a database file, lists its schema, executes statements and keeps the history of
// submitted statements. Sessions are owned by the caller and are not safe for concurrent use.
package inspector

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/go-pkgz/fileutils"
	_ "modernc.org/sqlite" // sqlite driver loaded here
)

const (
	// DefaultName is the database opened when nothing was requested explicitly.
	DefaultName = "default"
	// Extension is the file extension of database files.
	Extension = ".sqlite"
)

const baselineSchema = `CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	age INTEGER,
	city TEXT
)`

// Session holds the active database handle and the statement history.
// The zero value is usable, it keeps files in the current directory and opens DefaultName lazily.
type Session struct {
	Dir         string // directory for database files
	DefaultName string // database used when nothing was opened explicitly, DefaultName if empty

	db      *sql.DB
	path    string
	history History
}

// OpenOrCreate sanitizes name, opens (or creates) <Dir>/<name>.sqlite and makes it the active
// database. The baseline users table is created if missing. On error the previous database stays active.
func (s *Session) OpenOrCreate(ctx context.Context, name string) (string, error) {
	clean := SanitizeName(name)
	if clean == "" {
		return "", &InvalidNameError{Name: name}
	}
	if err := s.open(ctx, clean); err != nil {
		return "", err
	}
	return s.path, nil
}

// Path returns the file path of the active database, empty if nothing is open yet.
func (s *Session) Path() string {
	return s.path
}

// History returns executed statements, oldest first.
func (s *Session) History() []string {
	return s.history.List()
}

// Close releases the active database handle.
func (s *Session) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db, s.path = nil, ""
	if err != nil {
		return fmt.Errorf("can't close database: %w", err)
	}
	return nil
}

// handle returns the active database, opening the default one on first use.
func (s *Session) handle(ctx context.Context) (*sql.DB, error) {
	if s.db != nil {
		return s.db, nil
	}
	name := SanitizeName(s.DefaultName)
	if name == "" {
		name = DefaultName
	}
	if err := s.open(ctx, name); err != nil {
		return nil, err
	}
	return s.db, nil
}

func (s *Session) open(ctx context.Context, name string) error {
	if s.Dir != "" && !fileutils.IsDir(s.Dir) {
		if err := os.MkdirAll(s.Dir, 0o750); err != nil {
			return fmt.Errorf("can't make data directory %s: %w", s.Dir, err)
		}
	}
	path := filepath.Join(s.Dir, name+Extension)
	existed := fileutils.IsFile(path)

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return fmt.Errorf("can't open database %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // single handle, keeps a transaction opened by a script on the same connection

	if _, err = db.ExecContext(ctx, baselineSchema); err != nil {
		_ = db.Close()
		return fmt.Errorf("can't prepare database %s: %w", path, err)
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			log.Printf("[WARN] can't close previous database %s: %v", s.path, err)
		}
	}
	s.db, s.path = db, path

	if existed {
		log.Printf("[INFO] opened database %s", path)
	} else {
		log.Printf("[INFO] created database %s", path)
	}
	return nil
}
