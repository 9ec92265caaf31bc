// Package store persists sessions, unit templates and tracking runs in
// sqlite. Provider serves stored sessions to the tracker.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/banshee-data/unitmatch/internal/timeutil"
	_ "modernc.org/sqlite"
)

var (
	// ErrSessionNotFound is returned for sessions absent from the store.
	ErrSessionNotFound = errors.New("session not found")
	// ErrRunNotFound is returned for unknown tracking run ids.
	ErrRunNotFound = errors.New("tracking run not found")
)

// pragmas are applied to every pooled connection through the DSN.
var pragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
	"temp_store(MEMORY)",
	"foreign_keys(1)",
}

type DB struct {
	*sql.DB
	path  string
	clock timeutil.Clock
}

// Open opens (creating if needed) the sqlite database at path. The schema is
// managed by migrations; call MigrateUp before use.
func Open(path string) (*DB, error) {
	params := make([]string, len(pragmas))
	for i, p := range pragmas {
		params[i] = "_pragma=" + p
	}
	dsn := "file:" + path + "?" + strings.Join(params, "&")

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database %s: %w", path, err)
	}
	return &DB{DB: db, path: path, clock: timeutil.RealClock{}}, nil
}

// OpenAndMigrate opens path and applies every pending migration.
func OpenAndMigrate(path string) (*DB, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// SetClock replaces the clock used for import and run timestamps.
func (db *DB) SetClock(c timeutil.Clock) {
	db.clock = c
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}
