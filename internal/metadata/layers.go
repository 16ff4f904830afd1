package metadata

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"sort"

	"github.com/paulmach/orb/encoding/mvt"

	"github.com/MeKo-Tech/tilebank/internal/format"
)

// LayerNames decodes a vector tile payload and returns its layer names.
// Gzip and deflate framed payloads are decompressed first.
func LayerNames(data []byte) ([]string, error) {
	var (
		layers mvt.Layers
		err    error
	)
	switch format.Sniff(data).ContentEncoding {
	case "gzip":
		layers, err = mvt.UnmarshalGzipped(data)
	case "deflate":
		var raw []byte
		raw, err = inflate(data)
		if err == nil {
			layers, err = mvt.Unmarshal(raw)
		}
	default:
		layers, err = mvt.Unmarshal(data)
	}
	if err != nil {
		return nil, fmt.Errorf("decode vector tile: %w", err)
	}

	names := make([]string, 0, len(layers))
	for _, layer := range layers {
		names = append(names, layer.Name)
	}
	return names, nil
}

// MergeLayerNames unions layer name lists, deduplicated and sorted.
func MergeLayerNames(lists ...[]string) []string {
	seen := make(map[string]struct{})
	for _, list := range lists {
		for _, name := range list {
			seen[name] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// VectorLayers converts layer names into the TileJSON vector_layers value.
func VectorLayers(names []string) []any {
	out := make([]any, 0, len(names))
	for _, name := range names {
		out = append(out, map[string]any{"id": name})
	}
	return out
}

func inflate(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
