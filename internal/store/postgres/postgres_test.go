package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/tilebank/internal/metadata"
	"github.com/MeKo-Tech/tilebank/internal/store"
	"github.com/MeKo-Tech/tilebank/internal/tile"
)

// Integration tests run only against a real server.
func testURI(t *testing.T) string {
	t.Helper()
	uri := os.Getenv("POSTGRESQL_BASE_URI")
	if uri == "" {
		t.Skip("POSTGRESQL_BASE_URI not set")
	}
	return uri
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s, err := Open(ctx, store.Descriptor{
		ID:               "tilebank_test",
		Kind:             store.KindPostgres,
		Location:         "tilebank_test",
		Format:           "png",
		Writable:         true,
		StoreMD5:         true,
		StoreTransparent: true,
		Timeout:          30 * time.Second,
	}, testURI(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = s.pool.Exec(ctx, "DROP TABLE IF EXISTS tilebank_test")
		_, _ = s.pool.Exec(ctx, "DROP TABLE IF EXISTS tilebank_test_metadata")
		s.Close()
	})
	return s
}

func TestOpenRejectsBadTableName(t *testing.T) {
	_, err := Open(context.Background(), store.Descriptor{
		ID:       "bad",
		Kind:     store.KindPostgres,
		Location: "tiles; DROP TABLE users",
	}, "postgres://localhost/ignored")
	assert.ErrorIs(t, err, store.ErrCorrupt)
}

func TestPutGetDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	c := tile.Coords{Z: 6, X: 32, Y: 21}
	payload := []byte("tile-bytes")

	require.NoError(t, s.PutTile(ctx, c, payload))

	got, err := s.GetTile(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	hash, err := s.TileMD5(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, store.MD5Hex(payload), hash)

	created, err := s.TileCreated(ctx, c)
	require.NoError(t, err)
	assert.Greater(t, created, int64(0))

	require.NoError(t, s.DeleteTile(ctx, c))
	_, err = s.GetTile(ctx, c)
	assert.ErrorIs(t, err, store.ErrTileNotFound)
	assert.NoError(t, s.DeleteTile(ctx, c))
}

func TestMetadataAndInfo(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.PutTile(ctx, tile.Coords{Z: 5, X: 10, Y: 10}, []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0}))
	require.NoError(t, s.PutMetadata(ctx, metadata.Metadata{
		metadata.KeyName:        "tilebank_test",
		metadata.KeyAttribution: "© Test",
	}))

	m, err := s.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tilebank_test", m.String(metadata.KeyName))
	assert.Equal(t, "xyz", m.String(metadata.KeyScheme))
	minZoom, _ := m.Int(metadata.KeyMinZoom)
	assert.Equal(t, 5, minZoom)
}
