package server

import (
	"compress/gzip"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/tilebank/internal/format"
	"github.com/MeKo-Tech/tilebank/internal/store"
	"github.com/MeKo-Tech/tilebank/internal/tile"
)

// parseTilePath resolves {z}/{x}/{file} into XYZ coordinates and the
// requested extension. The ?scheme=tms query interprets the incoming y
// as TMS; storage coordinates are always XYZ.
func parseTilePath(r *http.Request) (tile.Coords, string, bool) {
	z, err := strconv.Atoi(r.PathValue("z"))
	if err != nil {
		return tile.Coords{}, "", false
	}
	x, err := strconv.Atoi(r.PathValue("x"))
	if err != nil {
		return tile.Coords{}, "", false
	}

	file := r.PathValue("file")
	yStr, ext, ok := strings.Cut(file, ".")
	if !ok {
		return tile.Coords{}, "", false
	}
	y, err := strconv.Atoi(yStr)
	if err != nil {
		return tile.Coords{}, "", false
	}

	switch r.URL.Query().Get("scheme") {
	case "", string(tile.SchemeXYZ):
	case string(tile.SchemeTMS):
		y = tile.FlipY(z, y)
	default:
		return tile.Coords{}, "", false
	}

	c := tile.Coords{Z: z, X: x, Y: y}
	if !c.Valid() || !format.Known(ext) {
		return tile.Coords{}, "", false
	}
	return c, ext, true
}

// checkFormat enforces the store's declared format on the request
// extension.
func checkFormat(desc store.Descriptor, ext string) bool {
	if desc.Format == "" {
		return true
	}
	return format.Normalize(desc.Format) == format.Normalize(ext)
}

func (s *Server) handleTile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	st, ok := s.repo.Get(id)
	if !ok {
		http.NotFound(w, r)
		return
	}

	c, ext, ok := parseTilePath(r)
	if !ok {
		http.Error(w, "bad tile path", http.StatusBadRequest)
		return
	}
	if !checkFormat(st.Descriptor(), ext) {
		http.Error(w, "format mismatch", http.StatusBadRequest)
		return
	}

	data, err := s.fetcher.GetOrFetch(r.Context(), st, c)
	if errors.Is(err, store.ErrTileNotFound) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		s.logger.Error("tile request failed", "id", id, "tile", c.String(), "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeTile(w, data)
}

// writeTile writes the payload with sniffed headers. Protobuf tiles are
// stored raw and gzip-wrapped here; already-framed payloads keep their
// encoding.
func writeTile(w http.ResponseWriter, data []byte) {
	info := format.Sniff(data)
	w.Header().Set("Content-Type", info.ContentType)

	if info.Format == format.PBF {
		if info.ContentEncoding == "" {
			w.Header().Set("Content-Encoding", "gzip")
			gz := gzip.NewWriter(w)
			_, _ = gz.Write(data)
			_ = gz.Close()
			return
		}
		w.Header().Set("Content-Encoding", info.ContentEncoding)
	}
	_, _ = w.Write(data)
}

// handleTileMD5 answers the hash probe: 200 with a quoted ETag and empty
// body, or 204 when the tile or its hash is absent.
func (s *Server) handleTileMD5(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	st, ok := s.repo.Get(id)
	if !ok {
		http.NotFound(w, r)
		return
	}

	c, ext, ok := parseTilePath(r)
	if !ok {
		http.Error(w, "bad tile path", http.StatusBadRequest)
		return
	}
	if !checkFormat(st.Descriptor(), ext) {
		http.Error(w, "format mismatch", http.StatusBadRequest)
		return
	}

	hash, err := st.TileMD5(r.Context(), c)
	if errors.Is(err, store.ErrMD5NotFound) || errors.Is(err, store.ErrTileNotFound) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		s.logger.Error("md5 request failed", "id", id, "tile", c.String(), "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("ETag", `"`+hash+`"`)
	w.WriteHeader(http.StatusOK)
}
