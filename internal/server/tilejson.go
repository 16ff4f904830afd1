package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/MeKo-Tech/tilebank/internal/format"
	"github.com/MeKo-Tech/tilebank/internal/metadata"
	"github.com/MeKo-Tech/tilebank/internal/store"
	"github.com/MeKo-Tech/tilebank/internal/tile"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// tileJSONFor injects the absolute tiles URL into a store's metadata.
// Served tile URLs are always XYZ regardless of the backend's on-disk
// orientation.
func (s *Server) tileJSONFor(st store.Store, base string, r *http.Request) (metadata.Metadata, error) {
	info, err := st.Info(r.Context())
	if err != nil {
		return nil, err
	}

	doc := info.Clone()
	id := st.Descriptor().ID
	ext := format.Extension(format.Normalize(doc.String(metadata.KeyFormat)))
	if ext == "" {
		ext = "png"
	}
	doc["tiles"] = []string{base + "/" + id + "/{z}/{x}/{y}." + ext}
	doc[metadata.KeyScheme] = string(tile.SchemeXYZ)
	return doc, nil
}

// handleDatas returns the repository index: id plus TileJSON URL per
// store.
func (s *Server) handleDatas(w http.ResponseWriter, r *http.Request) {
	base := s.baseURL(r)
	type entry struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	out := make([]entry, 0)
	for _, id := range s.repo.IDs() {
		out = append(out, entry{ID: id, URL: base + "/" + id + ".json"})
	}
	writeJSON(w, out)
}

// handleTileJSONs returns every store's TileJSON in one document.
func (s *Server) handleTileJSONs(w http.ResponseWriter, r *http.Request) {
	base := s.baseURL(r)
	out := make([]metadata.Metadata, 0)
	for _, id := range s.repo.IDs() {
		st, ok := s.repo.Get(id)
		if !ok {
			continue
		}
		doc, err := s.tileJSONFor(st, base, r)
		if err != nil {
			s.logger.Warn("skipping tilejson", "id", id, "error", err)
			continue
		}
		out = append(out, doc)
	}
	writeJSON(w, out)
}

// handleTileJSON serves /{id}.json.
func (s *Server) handleTileJSON(w http.ResponseWriter, r *http.Request) {
	file := r.PathValue("file")
	id, ok := strings.CutSuffix(file, ".json")
	if !ok {
		http.NotFound(w, r)
		return
	}

	st, found := s.repo.Get(id)
	if !found {
		http.NotFound(w, r)
		return
	}

	doc, err := s.tileJSONFor(st, s.baseURL(r), r)
	if err != nil {
		s.logger.Error("tilejson failed", "id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, doc)
}
