// Package server exposes the tile repository over HTTP: TileJSON
// documents, tiles with read-through fill-in, MD5 probes, styles, glyph
// ranges, sprites and GeoJSON documents.
package server

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/rs/cors"

	"github.com/MeKo-Tech/tilebank/internal/cache"
	"github.com/MeKo-Tech/tilebank/internal/config"
	"github.com/MeKo-Tech/tilebank/internal/geojson"
	"github.com/MeKo-Tech/tilebank/internal/glyph"
)

// Config configures the HTTP surface.
type Config struct {
	Layout config.Layout
	// PublicURL overrides the base URL injected into TileJSON and
	// styles. Empty derives it from each request.
	PublicURL string
	// FallbackFont substitutes missing glyph stacks.
	FallbackFont string
	// FetchTimeout bounds one upstream tile fetch.
	FetchTimeout time.Duration
	// MaxTry is the upstream retry budget.
	MaxTry int
	// GeoJSONs declares upstream URLs for cached GeoJSON documents.
	GeoJSONs []config.GeoJSONEntry
}

// Server routes requests onto the repository of open stores. The
// repository is read-only after startup; request handling never mutates
// it.
type Server struct {
	repo     *config.Repository
	cfg      Config
	fetcher  *cache.Fetcher
	glyphs   *glyph.Store
	geojsons map[string]*geojson.Store
	logger   *slog.Logger
}

// New creates a Server over an open repository.
func New(repo *config.Repository, cfg Config, logger *slog.Logger) *Server {
	s := &Server{
		repo: repo,
		cfg:  cfg,
		fetcher: cache.New(cache.Config{
			Timeout: cfg.FetchTimeout,
			MaxTry:  cfg.MaxTry,
			Logger:  logger,
		}),
		glyphs:   glyph.NewStore(cfg.Layout.FontsDir(), cfg.FallbackFont, logger),
		geojsons: make(map[string]*geojson.Store),
		logger:   logger,
	}
	for _, entry := range cfg.GeoJSONs {
		s.geojsons[entry.ID] = geojson.NewStore(
			cfg.Layout.CacheGeoJSONPath(entry.ID),
			entry.URL,
			time.Duration(entry.TimeoutMS)*time.Millisecond,
			logger,
		)
	}
	return s
}

// Handler builds the route table with CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /datas.json", s.handleDatas)
	mux.HandleFunc("GET /tilejsons.json", s.handleTileJSONs)
	mux.HandleFunc("GET /{file}", s.handleTileJSON)
	mux.HandleFunc("GET /{id}/{z}/{x}/{file}", s.handleTile)
	mux.HandleFunc("GET /{id}/md5/{z}/{x}/{file}", s.handleTileMD5)
	mux.HandleFunc("GET /styles/{id}/style.json", s.handleStyle)
	mux.HandleFunc("GET /fonts/{fontstack}/{file}", s.handleFonts)
	mux.HandleFunc("GET /sprites/{id}/{file}", s.handleSprite)
	mux.HandleFunc("GET /geojsons/{id}/{file}", s.handleGeoJSON)

	return cors.Default().Handler(mux)
}

// handleHealth reports readiness. STARTING_UP gates a 503 while an
// external warm-up is still running.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if os.Getenv("STARTING_UP") != "" {
		http.Error(w, "starting up", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// baseURL derives the absolute URL prefix for injected links.
func (s *Server) baseURL(r *http.Request) string {
	if s.cfg.PublicURL != "" {
		return s.cfg.PublicURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}
