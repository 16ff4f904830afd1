package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/MeKo-Tech/tilebank/internal/tile"
)

// RefreshBefore selects the seed refresh policy. At most one field is set;
// an all-zero value means unconditional download.
type RefreshBefore struct {
	// Timestamp refreshes tiles created before this ms Unix epoch.
	Timestamp int64 `json:"timestamp,omitempty"`
	// Day refreshes tiles older than this many days.
	Day int `json:"day,omitempty"`
	// MD5 refreshes tiles whose hash differs from the upstream probe.
	MD5 bool `json:"md5,omitempty"`
}

// Cutoff resolves the policy to an absolute ms Unix epoch for the
// timestamp and age variants. ok is false for the md5 and unconditional
// variants.
func (r RefreshBefore) Cutoff(now time.Time) (int64, bool) {
	switch {
	case r.Timestamp > 0:
		return r.Timestamp, true
	case r.Day > 0:
		return now.AddDate(0, 0, -r.Day).UnixMilli(), true
	}
	return 0, false
}

// SeedEntry is one id's descriptor in seed.json.
type SeedEntry struct {
	Backend          string         `json:"backend"`
	URL              string         `json:"url"`
	BBoxs            []tile.BBox    `json:"bboxs"`
	Zooms            []int          `json:"zooms"`
	Concurrency      int            `json:"concurrency,omitempty"`
	MaxTry           int            `json:"maxTry,omitempty"`
	TimeoutMS        int64          `json:"timeoutMs,omitempty"`
	StoreMD5         bool           `json:"storeMD5,omitempty"`
	StoreTransparent bool           `json:"storeTransparent,omitempty"`
	RefreshBefore    *RefreshBefore `json:"refreshBefore,omitempty"`
	MetadataAdds     map[string]any `json:"metadataAdds,omitempty"`
}

// CleanupEntry is one id's descriptor in cleanup.json. The zero cutoff
// deletes nothing.
type CleanupEntry struct {
	Backend       string         `json:"backend"`
	BBoxs         []tile.BBox    `json:"bboxs"`
	Zooms         []int          `json:"zooms"`
	Concurrency   int            `json:"concurrency,omitempty"`
	TimeoutMS     int64          `json:"timeoutMs,omitempty"`
	CleanupBefore *RefreshBefore `json:"cleanupBefore,omitempty"`
}

// SeedFile maps store ids to seed descriptors.
type SeedFile map[string]SeedEntry

// CleanupFile maps store ids to cleanup descriptors.
type CleanupFile map[string]CleanupEntry

// LoadSeed reads seed.json. Missing file yields an empty map.
func LoadSeed(path string) (SeedFile, error) {
	var out SeedFile
	if err := loadJSON(path, &out); err != nil {
		return nil, err
	}
	for id, entry := range out {
		if err := validateRun(id, entry.URL, entry.BBoxs, entry.Zooms); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// LoadCleanup reads cleanup.json. Missing file yields an empty map.
func LoadCleanup(path string) (CleanupFile, error) {
	var out CleanupFile
	if err := loadJSON(path, &out); err != nil {
		return nil, err
	}
	for id, entry := range out {
		if err := validateRun(id, "-", entry.BBoxs, entry.Zooms); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func loadJSON(path string, out any) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrConfig, path, err)
	}
	return nil
}

func validateRun(id, url string, bboxs []tile.BBox, zooms []int) error {
	if url == "" {
		return fmt.Errorf("%w: %s has no url", ErrConfig, id)
	}
	if len(bboxs) == 0 {
		return fmt.Errorf("%w: %s has no bboxs", ErrConfig, id)
	}
	for _, b := range bboxs {
		if !b.Valid() {
			return fmt.Errorf("%w: %s has invalid bbox %v", ErrConfig, id, b)
		}
	}
	if len(zooms) == 0 {
		return fmt.Errorf("%w: %s has no zooms", ErrConfig, id)
	}
	for _, z := range zooms {
		if z < 0 || z > tile.MaxZoom {
			return fmt.Errorf("%w: %s has zoom %d out of range", ErrConfig, id, z)
		}
	}
	return nil
}
