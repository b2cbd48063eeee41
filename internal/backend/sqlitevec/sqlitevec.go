// Package sqlitevec provides the cgo backend: SQLite through mattn/go-sqlite3
// with the sqlite-vec extension supplying the vector functions.
package sqlitevec

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/charmbracelet/log"
	_ "github.com/mattn/go-sqlite3"

	"github.com/nickcecere/memvec/internal/backend"
	"github.com/nickcecere/memvec/internal/backend/sqlconn"
)

// Name is the registry name of this backend.
const Name = "sqlitevec"

func init() {
	// Register sqlite-vec extension
	sqlite_vec.Auto()

	backend.Register(Name, func(ctx context.Context, s backend.Settings) (backend.Conn, error) {
		return Open(ctx, s.Path)
	})
}

// Open opens the database at dbPath, creating its directory if needed.
func Open(ctx context.Context, dbPath string) (*sqlconn.Conn, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
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

	var version string
	if err := db.QueryRowContext(ctx, "SELECT vec_version()").Scan(&version); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite-vec extension not available: %w", err)
	}

	log.Debug("Opened sqlite-vec database", "path", dbPath, "vec_version", version)

	return sqlconn.New(db), nil
}
