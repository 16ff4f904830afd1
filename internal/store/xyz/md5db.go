package xyz

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/MeKo-Tech/tilebank/internal/store"
	"github.com/MeKo-Tech/tilebank/internal/tile"
)

// md5DB is the companion SQLite database holding persisted tile hashes.
type md5DB struct {
	db *sql.DB
}

func openMD5DB(path string, writable bool) (*md5DB, error) {
	dsn := path
	if !writable {
		dsn = path + "?mode=ro"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open md5 database: %w", err)
	}

	pragmas := []string{
		"PRAGMA busy_timeout = 300000",
	}
	if writable {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL", "PRAGMA synchronous = NORMAL")
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}

	if writable {
		schema := `
			CREATE TABLE IF NOT EXISTS md5s (
				z INTEGER NOT NULL,
				x INTEGER NOT NULL,
				y INTEGER NOT NULL,
				hash TEXT NOT NULL,
				PRIMARY KEY (z, x, y)
			);
		`
		if _, err := db.Exec(schema); err != nil {
			db.Close()
			return nil, fmt.Errorf("create md5 schema: %w", err)
		}
	}

	return &md5DB{db: db}, nil
}

func (m *md5DB) put(ctx context.Context, c tile.Coords, hash string) error {
	_, err := m.db.ExecContext(ctx,
		`INSERT INTO md5s (z, x, y, hash) VALUES (?, ?, ?, ?)
		 ON CONFLICT (z, x, y) DO UPDATE SET hash = excluded.hash`,
		c.Z, c.X, c.Y, hash)
	if err != nil {
		return fmt.Errorf("upsert md5 %s: %w", c, err)
	}
	return nil
}

func (m *md5DB) get(ctx context.Context, c tile.Coords) (string, error) {
	var hash string
	err := m.db.QueryRowContext(ctx,
		"SELECT hash FROM md5s WHERE z = ? AND x = ? AND y = ?",
		c.Z, c.X, c.Y).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.ErrMD5NotFound
	}
	if err != nil {
		return "", fmt.Errorf("query md5 %s: %w", c, err)
	}
	return hash, nil
}

func (m *md5DB) delete(ctx context.Context, c tile.Coords) error {
	if _, err := m.db.ExecContext(ctx,
		"DELETE FROM md5s WHERE z = ? AND x = ? AND y = ?",
		c.Z, c.X, c.Y); err != nil {
		return fmt.Errorf("delete md5 %s: %w", c, err)
	}
	return nil
}

func (m *md5DB) close() error {
	// Checkpoint so a read-only open after close sees a bare database.
	_, _ = m.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return m.db.Close()
}
