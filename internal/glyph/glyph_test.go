package glyph

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

// buildGlyphPBF encodes a single-stack glyph buffer the way font
// pipelines emit them.
func buildGlyphPBF(name, rng string, ids ...uint64) []byte {
	return buildGlyphPBFWidth(name, rng, 24, ids...)
}

func buildGlyphPBFWidth(name, rng string, width uint64, ids ...uint64) []byte {
	var body []byte
	body = protowire.AppendTag(body, fieldStackName, protowire.BytesType)
	body = protowire.AppendString(body, name)
	body = protowire.AppendTag(body, fieldStackRange, protowire.BytesType)
	body = protowire.AppendString(body, rng)
	for _, id := range ids {
		var g []byte
		g = protowire.AppendTag(g, fieldGlyphID, protowire.VarintType)
		g = protowire.AppendVarint(g, id)
		// width field, stands in for the rest of the glyph record
		g = protowire.AppendTag(g, 3, protowire.VarintType)
		g = protowire.AppendVarint(g, width)
		body = protowire.AppendTag(body, fieldStackGlyph, protowire.BytesType)
		body = protowire.AppendBytes(body, g)
	}

	var out []byte
	out = protowire.AppendTag(out, fieldStacks, protowire.BytesType)
	out = protowire.AppendBytes(out, body)
	return out
}

func TestCombineMergesEarlierWins(t *testing.T) {
	a := buildGlyphPBF("Open Sans Regular", "0-255", 65, 66)
	b := buildGlyphPBF("Noto Sans Regular", "0-255", 66, 67, 64)

	out, err := Combine([][]byte{a, b})
	require.NoError(t, err)

	st, err := parseStack(out)
	require.NoError(t, err)
	assert.Equal(t, "Open Sans Regular,Noto Sans Regular", st.name)
	assert.Equal(t, "0-255", st.rng)

	ids := make([]uint64, 0, len(st.glyphs))
	for _, g := range st.glyphs {
		ids = append(ids, g.id)
	}
	assert.Equal(t, []uint64{64, 65, 66, 67}, ids)
}

func TestCombineEarlierWinsKeepsFirstRecord(t *testing.T) {
	// Same id in both inputs with different payloads; the record from
	// the first buffer must survive.
	a := buildGlyphPBFWidth("A", "0-255", 111, 65)
	b := buildGlyphPBFWidth("B", "0-255", 222, 65)

	out, err := Combine([][]byte{a, b})
	require.NoError(t, err)

	st, err := parseStack(out)
	require.NoError(t, err)
	require.Len(t, st.glyphs, 1)

	first, err := parseStack(a)
	require.NoError(t, err)
	assert.Equal(t, first.glyphs[0].raw, st.glyphs[0].raw)
}

func TestCombineSingleInputPassesThrough(t *testing.T) {
	a := buildGlyphPBF("Solo", "256-511", 300)
	out, err := Combine([][]byte{a})
	require.NoError(t, err)
	assert.Equal(t, a, out)
}

func TestCombineRejectsGarbage(t *testing.T) {
	_, err := Combine([][]byte{{0xff, 0xff, 0xff}, {0x01}})
	assert.ErrorIs(t, err, ErrDecode)

	_, err = Combine(nil)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestStoreRange(t *testing.T) {
	fontsDir := t.TempDir()
	writeFont := func(font, rng string, data []byte) {
		require.NoError(t, os.MkdirAll(filepath.Join(fontsDir, font), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(fontsDir, font, rng+".pbf"), data, 0o644))
	}
	writeFont("Open Sans Regular", "0-255", buildGlyphPBF("Open Sans Regular", "0-255", 65))
	writeFont("Noto Sans Regular", "0-255", buildGlyphPBF("Noto Sans Regular", "0-255", 66))

	s := NewStore(fontsDir, "Noto Sans Regular", slog.New(slog.DiscardHandler))

	out, err := s.Range("Open Sans Regular,Noto Sans Regular", "0-255")
	require.NoError(t, err)
	st, err := parseStack(out)
	require.NoError(t, err)
	assert.Equal(t, "Open Sans Regular,Noto Sans Regular", st.name)
	assert.Len(t, st.glyphs, 2)
}

func TestStoreRangeFallback(t *testing.T) {
	fontsDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(fontsDir, "Fallback"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(fontsDir, "Fallback", "0-255.pbf"),
		buildGlyphPBF("Fallback", "0-255", 65), 0o644))

	s := NewStore(fontsDir, "Fallback", slog.New(slog.DiscardHandler))

	out, err := s.Range("No Such Font", "0-255")
	require.NoError(t, err)
	st, err := parseStack(out)
	require.NoError(t, err)
	assert.Equal(t, "Fallback", st.name)
}

func TestStoreRangeMissingEverything(t *testing.T) {
	s := NewStore(t.TempDir(), "", slog.New(slog.DiscardHandler))
	_, err := s.Range("Nope", "0-255")
	assert.ErrorIs(t, err, ErrFontNotFound)
}

func TestStoreRangeRejectsTraversal(t *testing.T) {
	s := NewStore(t.TempDir(), "", slog.New(slog.DiscardHandler))
	_, err := s.Range("../etc", "0-255")
	assert.ErrorIs(t, err, ErrFontNotFound)
}
