package metadata

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeTestTile(t *testing.T, gzipped bool) []byte {
	t.Helper()

	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(orb.Point{9.73, 52.37}))

	layers := mvt.NewLayers(map[string]*geojson.FeatureCollection{
		"poi":   fc,
		"roads": fc,
	})
	layers.ProjectToTile(maptile.New(34, 21, 6))

	var (
		data []byte
		err  error
	)
	if gzipped {
		data, err = mvt.MarshalGzipped(layers)
	} else {
		data, err = mvt.Marshal(layers)
	}
	require.NoError(t, err)
	return data
}

func TestLayerNames(t *testing.T) {
	names, err := LayerNames(encodeTestTile(t, false))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"poi", "roads"}, names)
}

func TestLayerNamesGzipped(t *testing.T) {
	names, err := LayerNames(encodeTestTile(t, true))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"poi", "roads"}, names)
}

func TestVectorLayers(t *testing.T) {
	vl := VectorLayers([]string{"roads", "water"})
	require.Len(t, vl, 2)
	first, ok := vl[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "roads", first["id"])
}
