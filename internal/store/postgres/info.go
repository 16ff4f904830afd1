package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/MeKo-Tech/tilebank/internal/format"
	"github.com/MeKo-Tech/tilebank/internal/metadata"
	"github.com/MeKo-Tech/tilebank/internal/tile"
)

const layerScanPageSize = 200

const layerScanMaxPages = 50

func (s *Store) readMetadataRows(ctx context.Context) (map[string]string, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf("SELECT name, value FROM %s_metadata", s.table))
	if err != nil {
		return nil, fmt.Errorf("query metadata: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name string
		var value *string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scan metadata row: %w", err)
		}
		if value != nil {
			out[name] = *value
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metadata: %w", err)
	}
	return out, nil
}

// Info mirrors the MBTiles synthesis with rows already in XYZ orientation.
func (s *Store) Info(ctx context.Context) (metadata.Metadata, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	persisted, err := s.readMetadataRows(ctx)
	if err != nil {
		return nil, err
	}

	m := metadata.FromRows(persisted)
	if m.String(metadata.KeyName) == "" {
		m[metadata.KeyName] = s.desc.ID
	}

	if err := s.deriveFromTiles(ctx, m); err != nil {
		return nil, err
	}

	m.ApplyDefaults()
	m.FinalizeCenter()
	m.CanonicalizeScheme(tile.SchemeXYZ)
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

	var minZoom, maxZoom *int
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT MIN(zoom_level), MAX(zoom_level) FROM %s", s.table)).Scan(&minZoom, &maxZoom)
	if err != nil {
		return fmt.Errorf("derive zoom range: %w", err)
	}
	if minZoom == nil {
		return nil
	}

	if !hasMin {
		m[metadata.KeyMinZoom] = *minZoom
	}
	if !hasMax {
		m[metadata.KeyMaxZoom] = *maxZoom
	}

	if !hasFormat {
		var body []byte
		err := s.pool.QueryRow(ctx,
			fmt.Sprintf("SELECT tile_data FROM %s LIMIT 1", s.table)).Scan(&body)
		if err == nil {
			m[metadata.KeyFormat] = string(format.Sniff(body).Format)
		} else if !errors.Is(err, pgx.ErrNoRows) {
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

func (s *Store) deriveBounds(ctx context.Context) (tile.BBox, bool, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT zoom_level, MIN(tile_column), MAX(tile_column), MIN(tile_row), MAX(tile_row)
			FROM %s GROUP BY zoom_level`, s.table))
	if err != nil {
		return tile.BBox{}, false, fmt.Errorf("derive bounds: %w", err)
	}
	defer rows.Close()

	var union *tile.BBox
	for rows.Next() {
		var z, minX, maxX, minY, maxY int
		if err := rows.Scan(&z, &minX, &maxX, &minY, &maxY); err != nil {
			return tile.BBox{}, false, fmt.Errorf("scan bounds row: %w", err)
		}
		bbox := tile.BBoxFromRange(tile.Range{Z: z, MinX: minX, MaxX: maxX, MinY: minY, MaxY: maxY}, tile.SchemeXYZ)
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

func (s *Store) scanVectorLayers(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})

	for page := 0; page < layerScanMaxPages; page++ {
		rows, err := s.pool.Query(ctx,
			fmt.Sprintf("SELECT tile_data FROM %s LIMIT $1 OFFSET $2", s.table),
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
