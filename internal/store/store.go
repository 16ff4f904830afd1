// Package store defines the tile store contract shared by the XYZ
// directory, MBTiles and PostgreSQL backends.
package store

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"time"

	"github.com/MeKo-Tech/tilebank/internal/metadata"
	"github.com/MeKo-Tech/tilebank/internal/tile"
)

// Kind names a backend implementation.
type Kind string

const (
	KindXYZ      Kind = "xyz"
	KindMBTiles  Kind = "mbtiles"
	KindPostgres Kind = "postgres"
)

var (
	// ErrTileNotFound reports an absent tile. Handlers map it to 204.
	ErrTileNotFound = errors.New("tile not found")

	// ErrMD5NotFound reports that no hash is persisted and no bytes exist
	// to compute one from.
	ErrMD5NotFound = errors.New("tile md5 not found")

	// ErrCreatedNotFound reports an unknown creation timestamp.
	ErrCreatedNotFound = errors.New("tile created timestamp not found")

	// ErrNotWritable reports a mutating call on a read-only store.
	ErrNotWritable = errors.New("store is not writable")

	// ErrCorrupt reports schema mismatch or undecodable store content.
	// The affected store is excluded from the repository.
	ErrCorrupt = errors.New("store is corrupt")
)

// DefaultTimeout bounds lock waits and busy retries on backend operations.
const DefaultTimeout = 5 * time.Minute

// Descriptor configures a single store.
type Descriptor struct {
	ID               string
	Kind             Kind
	Location         string // directory, .mbtiles path or postgres table name
	Format           string // declared tile format (fixed per store)
	Writable         bool
	StoreMD5         bool
	StoreTransparent bool
	SourceURL        string // upstream template with {z}/{x}/{y}, optional
	StoreCache       bool   // persist tiles fetched from SourceURL
	Timeout          time.Duration
}

// OperationTimeout returns the configured per-operation timeout.
func (d Descriptor) OperationTimeout() time.Duration {
	if d.Timeout <= 0 {
		return DefaultTimeout
	}
	return d.Timeout
}

// Store is the uniform contract over the three backends. Tile coordinates
// are always XYZ at this boundary; backends translate internally.
type Store interface {
	Descriptor() Descriptor

	// GetTile returns the raw stored bytes, or ErrTileNotFound.
	GetTile(ctx context.Context, c tile.Coords) ([]byte, error)

	// PutTile upserts a tile and stamps its creation time. Fully
	// transparent PNGs are silently suppressed when the descriptor says
	// so. Idempotent.
	PutTile(ctx context.Context, c tile.Coords, data []byte) error

	// DeleteTile removes a tile. Absent tiles are not an error.
	DeleteTile(ctx context.Context, c tile.Coords) error

	// TileMD5 returns the lowercase hex MD5 of the stored bytes,
	// preferring a persisted hash over recomputation.
	TileMD5(ctx context.Context, c tile.Coords) (string, error)

	// TileCreated returns the creation time in millisecond Unix epoch,
	// or ErrCreatedNotFound.
	TileCreated(ctx context.Context, c tile.Coords) (int64, error)

	// PutMetadata merges the given keys into the store metadata. Keys not
	// in merge are preserved.
	PutMetadata(ctx context.Context, merge metadata.Metadata) error

	// Info returns the synthesized TileJSON document.
	Info(ctx context.Context) (metadata.Metadata, error)

	// Close flushes and releases the backing resource.
	Close() error
}

// MD5Hex returns the lowercase hex MD5 digest of data.
func MD5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// NowMillis is the creation timestamp source, swappable in tests.
var NowMillis = func() int64 {
	return time.Now().UnixMilli()
}
