// Package postgres implements the tile store contract on a PostgreSQL
// table. Rows are stored in XYZ orientation, mirroring the MBTiles backend
// semantics without the TMS flip.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MeKo-Tech/tilebank/internal/metadata"
	"github.com/MeKo-Tech/tilebank/internal/store"
	"github.com/MeKo-Tech/tilebank/internal/tile"
)

var identPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Store wraps a connection pool and a pair of tables named after the
// store id: <table> for tiles and <table>_metadata for metadata.
type Store struct {
	desc  store.Descriptor
	pool  *pgxpool.Pool
	table string
}

// Open connects to baseURI and, for writable stores, creates the schema.
// The descriptor location is the tile table name.
func Open(ctx context.Context, desc store.Descriptor, baseURI string) (*Store, error) {
	table := desc.Location
	if !identPattern.MatchString(table) {
		return nil, fmt.Errorf("%w: invalid table name %q", store.ErrCorrupt, table)
	}

	pool, err := pgxpool.New(ctx, baseURI)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	s := &Store{desc: desc, pool: pool, table: table}
	if desc.Writable {
		if err := s.createSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	} else if err := s.verifySchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) createSchema(ctx context.Context) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			zoom_level INTEGER NOT NULL,
			tile_column INTEGER NOT NULL,
			tile_row INTEGER NOT NULL,
			tile_data BYTEA NOT NULL,
			hash TEXT,
			created BIGINT,
			PRIMARY KEY (zoom_level, tile_column, tile_row)
		);
		CREATE TABLE IF NOT EXISTS %s_metadata (
			name TEXT NOT NULL PRIMARY KEY,
			value TEXT
		);
	`, s.table, s.table)
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *Store) verifySchema(ctx context.Context) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var exists bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)",
		s.table).Scan(&exists)
	if err != nil {
		return fmt.Errorf("verify schema: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: table %s does not exist", store.ErrCorrupt, s.table)
	}
	return nil
}

// opContext bounds a single backend operation by the descriptor timeout,
// which maps onto a server-side cancellation through pgx.
func (s *Store) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.desc.OperationTimeout())
}

func (s *Store) Descriptor() store.Descriptor { return s.desc }

func (s *Store) GetTile(ctx context.Context, c tile.Coords) ([]byte, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var data []byte
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT tile_data FROM %s WHERE zoom_level = $1 AND tile_column = $2 AND tile_row = $3", s.table),
		c.Z, c.X, c.Y).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrTileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query tile %s: %w", c, err)
	}
	return data, nil
}

func (s *Store) PutTile(ctx context.Context, c tile.Coords, data []byte) error {
	if !s.desc.Writable {
		return store.ErrNotWritable
	}
	if !s.desc.StoreTransparent && store.IsFullyTransparentPNG(data) {
		return nil
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var hash any
	if s.desc.StoreMD5 {
		hash = store.MD5Hex(data)
	}

	_, err := s.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (zoom_level, tile_column, tile_row, tile_data, hash, created)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (zoom_level, tile_column, tile_row)
			DO UPDATE SET tile_data = EXCLUDED.tile_data, hash = EXCLUDED.hash, created = EXCLUDED.created`, s.table),
		c.Z, c.X, c.Y, data, hash, store.NowMillis())
	if err != nil {
		return fmt.Errorf("upsert tile %s: %w", c, err)
	}
	return nil
}

func (s *Store) DeleteTile(ctx context.Context, c tile.Coords) error {
	if !s.desc.Writable {
		return store.ErrNotWritable
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE zoom_level = $1 AND tile_column = $2 AND tile_row = $3", s.table),
		c.Z, c.X, c.Y)
	if err != nil {
		return fmt.Errorf("delete tile %s: %w", c, err)
	}
	return nil
}

func (s *Store) TileMD5(ctx context.Context, c tile.Coords) (string, error) {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	var hash *string
	err := s.pool.QueryRow(opCtx,
		fmt.Sprintf("SELECT hash FROM %s WHERE zoom_level = $1 AND tile_column = $2 AND tile_row = $3", s.table),
		c.Z, c.X, c.Y).Scan(&hash)
	if err == nil && hash != nil && *hash != "" {
		return *hash, nil
	}
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("query hash %s: %w", c, err)
	}

	data, err := s.GetTile(ctx, c)
	if err != nil {
		return "", store.ErrMD5NotFound
	}
	return store.MD5Hex(data), nil
}

func (s *Store) TileCreated(ctx context.Context, c tile.Coords) (int64, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var created *int64
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT created FROM %s WHERE zoom_level = $1 AND tile_column = $2 AND tile_row = $3", s.table),
		c.Z, c.X, c.Y).Scan(&created)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && created == nil) {
		return 0, store.ErrCreatedNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("query created %s: %w", c, err)
	}
	return *created, nil
}

func (s *Store) PutMetadata(ctx context.Context, merge metadata.Metadata) error {
	if !s.desc.Writable {
		return store.ErrNotWritable
	}

	doc := merge.Clone()
	doc.CanonicalizeScheme(tile.SchemeXYZ)
	rows, err := metadata.ToRows(doc)
	if err != nil {
		return err
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin metadata transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for name, value := range rows {
		if _, err := tx.Exec(ctx,
			fmt.Sprintf(`INSERT INTO %s_metadata (name, value) VALUES ($1, $2)
				ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value`, s.table),
			name, value); err != nil {
			return fmt.Errorf("upsert metadata %q: %w", name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit metadata: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
