package server

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"
)

// schemePrefixes map style URL schemes onto served route prefixes. Data
// schemes resolve to the TileJSON route; sprites and fonts resolve to
// their file routes.
var dataSchemes = []string{"mbtiles://", "pmtiles://", "xyz://"}

// rewriteStyleURL resolves one style URL against the base URL. Unknown
// schemes pass through untouched.
func rewriteStyleURL(value, base string) string {
	for _, scheme := range dataSchemes {
		if rest, ok := strings.CutPrefix(value, scheme); ok {
			return base + "/" + rest + ".json"
		}
	}
	if rest, ok := strings.CutPrefix(value, "sprites://"); ok {
		return base + "/sprites/" + rest
	}
	if rest, ok := strings.CutPrefix(value, "fonts://"); ok {
		return base + "/fonts/" + rest
	}
	return value
}

// rewriteStyleValue walks a decoded style document and rewrites every
// string in place.
func rewriteStyleValue(v any, base string) any {
	switch val := v.(type) {
	case string:
		return rewriteStyleURL(val, base)
	case []any:
		for i, item := range val {
			val[i] = rewriteStyleValue(item, base)
		}
		return val
	case map[string]any:
		for k, item := range val {
			val[k] = rewriteStyleValue(item, base)
		}
		return val
	}
	return v
}

// handleStyle serves /styles/{id}/style.json with scheme-prefixed URLs
// resolved to absolute ones.
func (s *Server) handleStyle(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if strings.ContainsAny(id, "/\\") {
		http.NotFound(w, r)
		return
	}

	data, err := os.ReadFile(s.cfg.Layout.StylePath(id))
	if os.IsNotExist(err) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.logger.Error("reading style", "id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Error("decoding style", "id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, rewriteStyleValue(doc, s.baseURL(r)))
}
