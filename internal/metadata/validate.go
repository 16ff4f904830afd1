package metadata

import (
	"errors"
	"fmt"

	"github.com/MeKo-Tech/tilebank/internal/format"
	"github.com/MeKo-Tech/tilebank/internal/tile"
)

// ErrValidation marks metadata rejected before being written to the
// repository. The store that carries it is excluded.
var ErrValidation = errors.New("metadata validation failed")

// Validate checks the document against the TileJSON constraints. It is run
// before a store is admitted into the repository.
func (m Metadata) Validate() error {
	if m.String(KeyName) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}

	if t := m.String(KeyType); t != "" && t != "baselayer" && t != "overlay" {
		return fmt.Errorf("%w: type %q must be baselayer or overlay", ErrValidation, t)
	}

	if f := m.String(KeyFormat); f != "" && !format.Known(f) {
		return fmt.Errorf("%w: unrecognized format %q", ErrValidation, f)
	}

	minZoom, hasMin := m.Int(KeyMinZoom)
	maxZoom, hasMax := m.Int(KeyMaxZoom)
	if hasMin && (minZoom < 0 || minZoom > tile.MaxZoom) {
		return fmt.Errorf("%w: minzoom %d out of range", ErrValidation, minZoom)
	}
	if hasMax && (maxZoom < 0 || maxZoom > tile.MaxZoom) {
		return fmt.Errorf("%w: maxzoom %d out of range", ErrValidation, maxZoom)
	}
	if hasMin && hasMax && minZoom > maxZoom {
		return fmt.Errorf("%w: minzoom %d > maxzoom %d", ErrValidation, minZoom, maxZoom)
	}

	if _, present := m[KeyBounds]; present {
		bounds, ok := m.Bounds()
		if !ok {
			return fmt.Errorf("%w: malformed bounds", ErrValidation)
		}
		if !bounds.Valid() {
			return fmt.Errorf("%w: bounds %v out of range", ErrValidation, bounds)
		}
	}

	if _, present := m[KeyCenter]; present {
		center, ok := m.Center()
		if !ok {
			return fmt.Errorf("%w: malformed center", ErrValidation)
		}
		if center[0] < -180 || center[0] > 180 || center[1] < -90 || center[1] > 90 {
			return fmt.Errorf("%w: center %v out of range", ErrValidation, center)
		}
		if center[2] < 0 || center[2] > tile.MaxZoom {
			return fmt.Errorf("%w: center zoom %v out of range", ErrValidation, center[2])
		}
	}

	return nil
}
