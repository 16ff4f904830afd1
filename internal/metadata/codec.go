package metadata

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// The MBTiles metadata table stores every value as text: bounds and center
// are comma joined, zooms are decimal and structured values live under the
// "json" key. These codecs translate between that representation and the
// in-memory document.

// ParseBounds decodes "minLon,minLat,maxLon,maxLat".
func ParseBounds(s string) ([]float64, error) {
	fs, err := parseFloats(s, 4)
	if err != nil {
		return nil, fmt.Errorf("invalid bounds %q: %w", s, err)
	}
	return fs, nil
}

// ParseCenter decodes "lon,lat,zoom".
func ParseCenter(s string) ([]float64, error) {
	fs, err := parseFloats(s, 3)
	if err != nil {
		return nil, fmt.Errorf("invalid center %q: %w", s, err)
	}
	return fs, nil
}

// FormatBounds encodes bounds for the metadata table.
func FormatBounds(b []float64) string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", b[0], b[1], b[2], b[3])
}

// FormatCenter encodes a center for the metadata table.
func FormatCenter(c []float64) string {
	return fmt.Sprintf("%.6f,%.6f,%d", c[0], c[1], int(c[2]))
}

func parseFloats(s string, n int) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("expected %d fields, got %d", n, len(parts))
	}
	out := make([]float64, n)
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

// FromRows builds a document from metadata table rows. The "json" value is
// JSON-merged into the document; bounds and center are comma decoded; zoom
// keys become numbers. Malformed values are skipped rather than failing the
// whole read, matching how permissive existing MBTiles files are in the
// wild.
func FromRows(rows map[string]string) Metadata {
	m := New()
	for name, value := range rows {
		switch name {
		case KeyBounds:
			if b, err := ParseBounds(value); err == nil {
				m[KeyBounds] = b
			}
		case KeyCenter:
			if c, err := ParseCenter(value); err == nil {
				m[KeyCenter] = c
			}
		case KeyMinZoom, KeyMaxZoom:
			if i, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
				m[name] = i
			}
		case KeyJSON:
			var extra map[string]any
			if err := json.Unmarshal([]byte(value), &extra); err == nil {
				for k, v := range extra {
					if _, exists := m[k]; !exists {
						m[k] = v
					}
				}
			}
		default:
			m[name] = value
		}
	}
	return m
}

// ToRows flattens a document into metadata table rows. Structured values
// other than bounds, center and zooms are gathered under the "json" key.
func ToRows(m Metadata) (map[string]string, error) {
	rows := make(map[string]string, len(m))
	extra := make(map[string]any)

	for name, value := range m {
		switch name {
		case KeyBounds:
			if b, ok := floatSlice(value); ok && len(b) == 4 {
				rows[KeyBounds] = FormatBounds(b)
			}
		case KeyCenter:
			if c, ok := floatSlice(value); ok && len(c) == 3 {
				rows[KeyCenter] = FormatCenter(c)
			}
		case KeyMinZoom, KeyMaxZoom:
			if i, ok := m.Int(name); ok {
				rows[name] = strconv.Itoa(i)
			}
		case KeyJSON:
			// Re-flattened below with the other structured values.
			if sub, ok := value.(map[string]any); ok {
				for k, v := range sub {
					extra[k] = v
				}
			}
		default:
			if s, ok := value.(string); ok {
				rows[name] = s
				continue
			}
			extra[name] = value
		}
	}

	if len(extra) > 0 {
		encoded, err := json.Marshal(extra)
		if err != nil {
			return nil, fmt.Errorf("encode json metadata: %w", err)
		}
		rows[KeyJSON] = string(encoded)
	}
	return rows, nil
}
