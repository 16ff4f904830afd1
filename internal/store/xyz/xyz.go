// Package xyz implements the tile store contract over a z/x/y directory
// tree, with a metadata.json document and an optional md5.sqlite sidecar
// database for persisted tile hashes.
package xyz

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/MeKo-Tech/tilebank/internal/format"
	"github.com/MeKo-Tech/tilebank/internal/fslock"
	"github.com/MeKo-Tech/tilebank/internal/metadata"
	"github.com/MeKo-Tech/tilebank/internal/store"
	"github.com/MeKo-Tech/tilebank/internal/tile"
)

// Store serves tiles from root/{z}/{x}/{y}.{ext}. Readers never lock:
// writes go through a sidecar lock and a temp-file rename, so a reader
// observes either a complete file or none.
type Store struct {
	desc  store.Descriptor
	root  string
	ext   string
	md5db *md5DB
}

// Open opens (and for writable stores, creates) an XYZ directory store.
// An undeclared format is resolved from metadata.json or a leaf file so
// imported trees stay servable.
func Open(desc store.Descriptor) (*Store, error) {
	s := &Store{
		desc: desc,
		root: desc.Location,
	}

	if desc.Writable {
		if err := os.MkdirAll(s.root, 0o755); err != nil {
			return nil, fmt.Errorf("create store root: %w", err)
		}
	} else if _, err := os.Stat(s.root); err != nil {
		return nil, fmt.Errorf("open store root: %w", err)
	}

	if s.desc.Format == "" {
		s.desc.Format = s.detectFormat()
	}
	s.ext = format.Extension(metadataFormat(s.desc.Format))

	if desc.StoreMD5 {
		db, err := openMD5DB(filepath.Join(s.root, "md5.sqlite"), desc.Writable)
		if err != nil {
			return nil, err
		}
		s.md5db = db
	} else if _, err := os.Stat(filepath.Join(s.root, "md5.sqlite")); err == nil {
		// An existing sidecar is still consulted for reads, and a
		// writable store must be able to drop rows on delete.
		db, err := openMD5DB(filepath.Join(s.root, "md5.sqlite"), desc.Writable)
		if err == nil {
			s.md5db = db
		}
	}

	return s, nil
}

// detectFormat resolves an undeclared tile format, preferring the
// metadata.json format key over a scan for the first leaf file.
func (s *Store) detectFormat() string {
	if m, err := s.readMetadata(); err == nil {
		if f := m.String(metadata.KeyFormat); format.Known(f) {
			return f
		}
	}
	zooms, err := s.zoomLevels()
	if err != nil {
		return "png"
	}
	for _, z := range zooms {
		_, ext, ok, err := s.zoomRange(z)
		if err == nil && ok && format.Known(ext) {
			return ext
		}
	}
	return "png"
}

func (s *Store) Descriptor() store.Descriptor { return s.desc }

func (s *Store) tilePath(c tile.Coords) string {
	return filepath.Join(s.root, fmt.Sprintf("%d", c.Z), fmt.Sprintf("%d", c.X), fmt.Sprintf("%d.%s", c.Y, s.ext))
}

// GetTile reads the tile file without locking.
func (s *Store) GetTile(_ context.Context, c tile.Coords) ([]byte, error) {
	data, err := os.ReadFile(s.tilePath(c))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, store.ErrTileNotFound
		}
		return nil, fmt.Errorf("read tile %s: %w", c, err)
	}
	return data, nil
}

// PutTile writes the tile under a sidecar lock using the temp-rename
// idiom, and records its MD5 in the sidecar database when configured.
func (s *Store) PutTile(ctx context.Context, c tile.Coords, data []byte) error {
	if !s.desc.Writable {
		return store.ErrNotWritable
	}
	if !s.desc.StoreTransparent && store.IsFullyTransparentPNG(data) {
		return nil
	}

	path := s.tilePath(c)
	return fslock.WithLock(path, s.desc.OperationTimeout(), func() error {
		if err := fslock.WriteFileAtomic(path, data); err != nil {
			return err
		}
		if s.desc.StoreMD5 && s.md5db != nil {
			return s.md5db.put(ctx, c, store.MD5Hex(data))
		}
		return nil
	})
}

// DeleteTile unlinks the tile and drops its hash row. Absent files are
// not an error.
func (s *Store) DeleteTile(ctx context.Context, c tile.Coords) error {
	if !s.desc.Writable {
		return store.ErrNotWritable
	}

	path := s.tilePath(c)
	return fslock.WithLock(path, s.desc.OperationTimeout(), func() error {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("delete tile %s: %w", c, err)
		}
		if s.md5db != nil {
			return s.md5db.delete(ctx, c)
		}
		return nil
	})
}

// TileMD5 prefers the sidecar hash; otherwise it reads the file and
// computes the digest. A sidecar row without a tile file is stale and
// ignored.
func (s *Store) TileMD5(ctx context.Context, c tile.Coords) (string, error) {
	if s.md5db != nil {
		if hash, err := s.md5db.get(ctx, c); err == nil {
			if _, statErr := os.Stat(s.tilePath(c)); statErr == nil {
				return hash, nil
			}
		}
	}
	data, err := s.GetTile(ctx, c)
	if err != nil {
		return "", store.ErrMD5NotFound
	}
	return store.MD5Hex(data), nil
}

// TileCreated reports the tile file's modification time.
func (s *Store) TileCreated(_ context.Context, c tile.Coords) (int64, error) {
	info, err := os.Stat(s.tilePath(c))
	if err != nil {
		return 0, store.ErrCreatedNotFound
	}
	return info.ModTime().UnixMilli(), nil
}

// Close releases the sidecar database.
func (s *Store) Close() error {
	if s.md5db != nil {
		return s.md5db.close()
	}
	return nil
}

func metadataFormat(f string) string {
	if format.Known(f) {
		return f
	}
	return "png"
}
