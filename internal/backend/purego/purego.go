// Package purego provides a cgo-free backend: SQLite through modernc.org/sqlite
// with the vector functions implemented in Go.
package purego

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	_ "modernc.org/sqlite" // register pure-Go SQLite driver

	"github.com/nickcecere/memvec/internal/backend"
	"github.com/nickcecere/memvec/internal/backend/sqlconn"
)

// Name is the registry name of this backend.
const Name = "purego"

func init() {
	if err := registerFunctions(); err != nil {
		panic(err)
	}

	backend.Register(Name, func(ctx context.Context, s backend.Settings) (backend.Conn, error) {
		return Open(ctx, s.Path)
	})
}

// Open opens the database at dbPath. ":memory:" gives a private in-memory
// database pinned to a single connection.
func Open(ctx context.Context, dbPath string) (*sqlconn.Conn, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path is required")
	}

	dsn := dbPath
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Debug("Opened pure-Go SQLite database", "path", dbPath)

	return sqlconn.New(db), nil
}
