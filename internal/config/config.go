package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/MeKo-Tech/tilebank/internal/store"
)

var (
	// ErrConfig reports an unreadable or invalid data-dir document.
	ErrConfig = errors.New("invalid configuration")

	// ErrDuplicateID reports two cache entries sharing an id.
	ErrDuplicateID = errors.New("duplicate cache id")
)

// CacheEntry declares one writable cache store in config.json.
type CacheEntry struct {
	ID               string         `json:"id"`
	Backend          string         `json:"backend"` // xyz, mbtiles or postgres
	Format           string         `json:"format,omitempty"`
	URL              string         `json:"url,omitempty"` // upstream template with {z}/{x}/{y}
	StoreCache       bool           `json:"storeCache,omitempty"`
	StoreMD5         bool           `json:"storeMD5,omitempty"`
	StoreTransparent bool           `json:"storeTransparent,omitempty"`
	TimeoutMS        int64          `json:"timeoutMs,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// GeoJSONEntry declares one cached GeoJSON document in config.json.
type GeoJSONEntry struct {
	ID        string `json:"id"`
	URL       string `json:"url,omitempty"` // upstream document URL
	TimeoutMS int64  `json:"timeoutMs,omitempty"`
}

// Config is the decoded config.json document.
type Config struct {
	Caches   []CacheEntry   `json:"caches"`
	GeoJSONs []GeoJSONEntry `json:"geojsons,omitempty"`
}

// LoadConfig reads and validates config.json. A missing file yields an
// empty config: read-only imports are discovered from the directory
// layout alone.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Config{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConfig, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every cache entry for required fields and unique ids.
func (c *Config) Validate() error {
	seen := make(map[string]struct{})
	for i, entry := range c.Caches {
		if entry.ID == "" {
			return fmt.Errorf("%w: cache %d has no id", ErrConfig, i)
		}
		if _, dup := seen[entry.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateID, entry.ID)
		}
		seen[entry.ID] = struct{}{}

		switch store.Kind(entry.Backend) {
		case store.KindXYZ, store.KindMBTiles, store.KindPostgres:
		default:
			return fmt.Errorf("%w: cache %s has unknown backend %q", ErrConfig, entry.ID, entry.Backend)
		}
	}

	seen = make(map[string]struct{})
	for i, entry := range c.GeoJSONs {
		if entry.ID == "" {
			return fmt.Errorf("%w: geojson %d has no id", ErrConfig, i)
		}
		if _, dup := seen[entry.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateID, entry.ID)
		}
		seen[entry.ID] = struct{}{}
	}
	return nil
}
