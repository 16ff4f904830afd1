package mbtiles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/MeKo-Tech/tilebank/internal/format"
	"github.com/MeKo-Tech/tilebank/internal/metadata"
	"github.com/MeKo-Tech/tilebank/internal/tile"
)

// layerScanPageSize pages the tile body scan during vector layer
// derivation so huge files are never loaded wholesale.
const layerScanPageSize = 200

// layerScanMaxPages caps how much of the file the derivation is willing to
// read before settling for what it found.
const layerScanMaxPages = 50

func (s *Store) readMetadataRows(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, value FROM metadata")
	if err != nil {
		// Imported files may lack the metadata table entirely.
		return map[string]string{}, nil
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name string
		var value sql.NullString
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scan metadata row: %w", err)
		}
		out[name] = value.String
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metadata: %w", err)
	}
	return out, nil
}

// Info layers defaults, the metadata table and values derived from the
// tiles table, then computes the center when missing.
func (s *Store) Info(ctx context.Context) (metadata.Metadata, error) {
	rows, err := s.readMetadataRows(ctx)
	if err != nil {
		return nil, err
	}

	m := metadata.FromRows(rows)
	if m.String(metadata.KeyName) == "" {
		m[metadata.KeyName] = s.desc.ID
	}

	if err := s.deriveFromTiles(ctx, m); err != nil {
		return nil, err
	}

	m.ApplyDefaults()
	m.FinalizeCenter()
	m.CanonicalizeScheme(tile.SchemeTMS)
	return m, nil
}

func (s *Store) deriveFromTiles(ctx context.Context, m metadata.Metadata) error {
	_, hasMin := m.Int(metadata.KeyMinZoom)
	_, hasMax := m.Int(metadata.KeyMaxZoom)
	_, hasBounds := m.Bounds()
	hasFormat := m.String(metadata.KeyFormat) != ""
	needLayers := m[metadata.KeyVectorLayers] == nil

	if hasMin && hasMax && hasBounds && hasFormat && !needLayers {
		return nil
	}

	var minZoom, maxZoom sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		"SELECT MIN(zoom_level), MAX(zoom_level) FROM tiles").Scan(&minZoom, &maxZoom)
	if err != nil {
		return fmt.Errorf("derive zoom range: %w", err)
	}
	if !minZoom.Valid {
		// Empty tiles table; nothing further to derive.
		return nil
	}

	if !hasMin {
		m[metadata.KeyMinZoom] = int(minZoom.Int64)
	}
	if !hasMax {
		m[metadata.KeyMaxZoom] = int(maxZoom.Int64)
	}

	if !hasFormat {
		var body []byte
		err := s.db.QueryRowContext(ctx, "SELECT tile_data FROM tiles LIMIT 1").Scan(&body)
		if err == nil {
			m[metadata.KeyFormat] = string(format.Sniff(body).Format)
		} else if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("derive format: %w", err)
		}
	}

	if !hasBounds {
		bounds, ok, err := s.deriveBounds(ctx)
		if err != nil {
			return err
		}
		if ok {
			m[metadata.KeyBounds] = bounds[:]
		}
	}

	if needLayers && m.String(metadata.KeyFormat) == "pbf" {
		names, err := s.scanVectorLayers(ctx)
		if err != nil {
			return err
		}
		if len(names) > 0 {
			m[metadata.KeyVectorLayers] = metadata.VectorLayers(names)
		}
	}

	return nil
}

// deriveBounds unions the per-zoom tile rectangles. Rows are TMS on disk,
// so the range is flipped back to XYZ before the bbox conversion.
func (s *Store) deriveBounds(ctx context.Context) (tile.BBox, bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT zoom_level, MIN(tile_column), MAX(tile_column), MIN(tile_row), MAX(tile_row)
		 FROM tiles GROUP BY zoom_level`)
	if err != nil {
		return tile.BBox{}, false, fmt.Errorf("derive bounds: %w", err)
	}
	defer rows.Close()

	var union *tile.BBox
	for rows.Next() {
		var z, minX, maxX, minRow, maxRow int
		if err := rows.Scan(&z, &minX, &maxX, &minRow, &maxRow); err != nil {
			return tile.BBox{}, false, fmt.Errorf("scan bounds row: %w", err)
		}
		r := tile.Range{
			Z:    z,
			MinX: minX,
			MaxX: maxX,
			MinY: tile.FlipY(z, maxRow),
			MaxY: tile.FlipY(z, minRow),
		}
		bbox := tile.BBoxFromRange(r, tile.SchemeXYZ)
		if union == nil {
			union = &bbox
			continue
		}
		union[0] = min(union[0], bbox[0])
		union[1] = min(union[1], bbox[1])
		union[2] = max(union[2], bbox[2])
		union[3] = max(union[3], bbox[3])
	}
	if err := rows.Err(); err != nil {
		return tile.BBox{}, false, fmt.Errorf("iterate bounds: %w", err)
	}
	if union == nil {
		return tile.BBox{}, false, nil
	}
	return *union, true, nil
}

// scanVectorLayers pages through tile bodies and unions decoded layer
// names. Undecodable bodies are skipped.
func (s *Store) scanVectorLayers(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})

	for page := 0; page < layerScanMaxPages; page++ {
		rows, err := s.db.QueryContext(ctx,
			"SELECT tile_data FROM tiles LIMIT ? OFFSET ?",
			layerScanPageSize, page*layerScanPageSize)
		if err != nil {
			return nil, fmt.Errorf("scan tile bodies: %w", err)
		}

		count := 0
		for rows.Next() {
			var body []byte
			if err := rows.Scan(&body); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan tile body: %w", err)
			}
			count++
			names, err := metadata.LayerNames(body)
			if err != nil {
				continue
			}
			for _, n := range names {
				seen[n] = struct{}{}
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("iterate tile bodies: %w", err)
		}
		rows.Close()

		if count < layerScanPageSize {
			break
		}
	}

	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	return metadata.MergeLayerNames(names), nil
}
