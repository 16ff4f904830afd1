package server

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/MeKo-Tech/tilebank/internal/geojson"
	"github.com/MeKo-Tech/tilebank/internal/glyph"
	"github.com/MeKo-Tech/tilebank/internal/store"
)

// handleFonts serves /fonts/{fontstack}/{range}.pbf with the combined
// glyph buffer for composite stacks.
func (s *Server) handleFonts(w http.ResponseWriter, r *http.Request) {
	fontstack := r.PathValue("fontstack")
	file := r.PathValue("file")
	rangeName, ok := strings.CutSuffix(file, ".pbf")
	if !ok {
		http.NotFound(w, r)
		return
	}

	data, err := s.glyphs.Range(fontstack, rangeName)
	if errors.Is(err, glyph.ErrFontNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.logger.Error("glyph range failed", "fontstack", fontstack, "range", rangeName, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/x-protobuf")
	_, _ = w.Write(data)
}

// handleSprite passes sprite sheet and index files through from the
// sprites directory.
func (s *Server) handleSprite(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	file := r.PathValue("file")
	if strings.ContainsAny(id, "/\\") || strings.ContainsAny(file, "/\\") ||
		id == ".." || file == ".." {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, filepath.Join(s.cfg.Layout.SpriteDir(id), file))
}

// handleGeoJSON serves /geojsons/{id}/{layer}.geojson, filling the cache
// from the configured upstream on a miss.
func (s *Server) handleGeoJSON(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	file := r.PathValue("file")
	layer, ok := strings.CutSuffix(file, ".geojson")
	if !ok || strings.ContainsAny(id, "/\\") || strings.ContainsAny(layer, "/\\") {
		http.NotFound(w, r)
		return
	}

	gs, found := s.geojsons[id]
	if !found || layer != id {
		http.NotFound(w, r)
		return
	}

	data, err := gs.Get(r.Context())
	if errors.Is(err, geojson.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.logger.Error("geojson request failed", "id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/geo+json")
	w.Header().Set("ETag", `"`+store.MD5Hex(data)+`"`)
	_, _ = w.Write(data)
}
