// Package mbtiles implements the tile store contract over an MBTiles
// SQLite file. Rows are stored in TMS orientation; the XYZ flip happens at
// this boundary and nowhere else.
package mbtiles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/MeKo-Tech/tilebank/internal/metadata"
	"github.com/MeKo-Tech/tilebank/internal/store"
	"github.com/MeKo-Tech/tilebank/internal/tile"
)

// Store wraps a single MBTiles database connection.
type Store struct {
	desc store.Descriptor
	db   *sql.DB
}

// Open opens an MBTiles file, creating it with the extended schema when
// writable. Read-only stores must already exist and carry a tiles table.
func Open(desc store.Descriptor) (*Store, error) {
	path := desc.Location

	if desc.Writable {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open mbtiles: %w", err)
	}

	dsn := path
	if !desc.Writable {
		dsn = path + "?mode=ro"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mbtiles: %w", err)
	}

	// A busy sibling holds the write lock for at most the operation
	// timeout; SQLite retries internally until then.
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", desc.OperationTimeout().Milliseconds()),
	}
	if desc.Writable {
		pragmas = append(pragmas,
			"PRAGMA journal_mode = WAL",
			"PRAGMA synchronous = NORMAL",
		)
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}

	s := &Store{desc: desc, db: db}
	if desc.Writable {
		if err := s.createSchema(); err != nil {
			db.Close()
			return nil, err
		}
		if err := s.ensureOptionalColumns(); err != nil {
			db.Close()
			return nil, err
		}
	} else if err := s.verifySchema(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS metadata (
			name TEXT NOT NULL PRIMARY KEY,
			value TEXT
		);

		CREATE TABLE IF NOT EXISTS tiles (
			zoom_level INTEGER NOT NULL,
			tile_column INTEGER NOT NULL,
			tile_row INTEGER NOT NULL,
			tile_data BLOB NOT NULL,
			hash TEXT,
			created INTEGER,
			PRIMARY KEY (zoom_level, tile_column, tile_row)
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// ensureOptionalColumns upgrades a legacy tiles table that predates the
// hash and created columns; CREATE TABLE IF NOT EXISTS leaves an existing
// table untouched, so PutTile would otherwise fail on every write.
func (s *Store) ensureOptionalColumns() error {
	ctx := context.Background()
	for _, col := range []struct{ name, typ string }{
		{"hash", "TEXT"},
		{"created", "INTEGER"},
	} {
		if s.hasColumn(ctx, col.name) {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE tiles ADD COLUMN %s %s", col.name, col.typ)
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("add column %s: %w", col.name, err)
		}
	}
	return nil
}

func (s *Store) verifySchema() error {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type IN ('table','view') AND name='tiles'").Scan(&count)
	if err != nil {
		return fmt.Errorf("verify schema: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("%w: no tiles table in %s", store.ErrCorrupt, s.desc.Location)
	}
	return nil
}

// hasColumn reports whether the tiles table carries an optional column.
// Imported files written by other tools often lack hash and created.
func (s *Store) hasColumn(ctx context.Context, column string) bool {
	rows, err := s.db.QueryContext(ctx, "PRAGMA table_info(tiles)")
	if err != nil {
		return false
	}
	defer rows.Close()
	for rows.Next() {
		var (
			cid       int
			name, typ string
			notnull   int
			dflt      sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dflt, &pk); err != nil {
			return false
		}
		if name == column {
			return true
		}
	}
	return false
}

func (s *Store) Descriptor() store.Descriptor { return s.desc }

// GetTile reads a tile, translating to the TMS row stored on disk.
func (s *Store) GetTile(ctx context.Context, c tile.Coords) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT tile_data FROM tiles WHERE zoom_level = ? AND tile_column = ? AND tile_row = ?",
		c.Z, c.X, tile.FlipY(c.Z, c.Y)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrTileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query tile %s: %w", c, err)
	}
	return data, nil
}

// PutTile upserts a tile row with hash and creation timestamp.
func (s *Store) PutTile(ctx context.Context, c tile.Coords, data []byte) error {
	if !s.desc.Writable {
		return store.ErrNotWritable
	}
	if !s.desc.StoreTransparent && store.IsFullyTransparentPNG(data) {
		return nil
	}

	var hash any
	if s.desc.StoreMD5 {
		hash = store.MD5Hex(data)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tiles (zoom_level, tile_column, tile_row, tile_data, hash, created)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (zoom_level, tile_column, tile_row)
		 DO UPDATE SET tile_data = excluded.tile_data, hash = excluded.hash, created = excluded.created`,
		c.Z, c.X, tile.FlipY(c.Z, c.Y), data, hash, store.NowMillis())
	if err != nil {
		return fmt.Errorf("upsert tile %s: %w", c, err)
	}
	return nil
}

// DeleteTile removes a tile row; absent rows are not an error.
func (s *Store) DeleteTile(ctx context.Context, c tile.Coords) error {
	if !s.desc.Writable {
		return store.ErrNotWritable
	}
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM tiles WHERE zoom_level = ? AND tile_column = ? AND tile_row = ?",
		c.Z, c.X, tile.FlipY(c.Z, c.Y))
	if err != nil {
		return fmt.Errorf("delete tile %s: %w", c, err)
	}
	return nil
}

// TileMD5 prefers the hash column; on NULL or a legacy schema it reads the
// payload and computes the digest.
func (s *Store) TileMD5(ctx context.Context, c tile.Coords) (string, error) {
	if s.hasColumn(ctx, "hash") {
		var hash sql.NullString
		err := s.db.QueryRowContext(ctx,
			"SELECT hash FROM tiles WHERE zoom_level = ? AND tile_column = ? AND tile_row = ?",
			c.Z, c.X, tile.FlipY(c.Z, c.Y)).Scan(&hash)
		if err == nil && hash.Valid && hash.String != "" {
			return hash.String, nil
		}
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("query hash %s: %w", c, err)
		}
	}

	data, err := s.GetTile(ctx, c)
	if err != nil {
		return "", store.ErrMD5NotFound
	}
	return store.MD5Hex(data), nil
}

// TileCreated reads the created column; legacy rows without it report
// ErrCreatedNotFound.
func (s *Store) TileCreated(ctx context.Context, c tile.Coords) (int64, error) {
	if !s.hasColumn(ctx, "created") {
		return 0, store.ErrCreatedNotFound
	}
	var created sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		"SELECT created FROM tiles WHERE zoom_level = ? AND tile_column = ? AND tile_row = ?",
		c.Z, c.X, tile.FlipY(c.Z, c.Y)).Scan(&created)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !created.Valid) {
		return 0, store.ErrCreatedNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("query created %s: %w", c, err)
	}
	return created.Int64, nil
}

// PutMetadata merges rows into the metadata table.
func (s *Store) PutMetadata(ctx context.Context, merge metadata.Metadata) error {
	if !s.desc.Writable {
		return store.ErrNotWritable
	}

	doc := merge.Clone()
	doc.CanonicalizeScheme(tile.SchemeTMS)
	rows, err := metadata.ToRows(doc)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin metadata transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO metadata (name, value) VALUES (?, ?)
		 ON CONFLICT (name) DO UPDATE SET value = excluded.value`)
	if err != nil {
		return fmt.Errorf("prepare metadata upsert: %w", err)
	}
	defer stmt.Close()

	for name, value := range rows {
		if _, err := stmt.ExecContext(ctx, name, value); err != nil {
			return fmt.Errorf("upsert metadata %q: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit metadata: %w", err)
	}
	return nil
}

// Close checkpoints the WAL and closes the connection.
func (s *Store) Close() error {
	if s.desc.Writable {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close mbtiles: %w", err)
	}
	return nil
}
