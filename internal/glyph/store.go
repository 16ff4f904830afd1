package glyph

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ErrFontNotFound reports that neither the requested font nor the
// fallback has the range file on disk.
var ErrFontNotFound = errors.New("font not found")

// Store serves combined glyph ranges from a fonts directory laid out as
// fonts/<stack>/<range>.pbf.
type Store struct {
	fontsDir string
	fallback string
	logger   *slog.Logger
}

// NewStore creates a glyph store. fallback names the stack substituted
// for missing fonts; empty disables substitution.
func NewStore(fontsDir, fallback string, logger *slog.Logger) *Store {
	return &Store{fontsDir: fontsDir, fallback: fallback, logger: logger}
}

// Range returns the combined glyph PBF for a comma-separated fontstack
// and a range name like "0-255". A missing font falls back to the
// configured default; the combine order follows the request order.
func (s *Store) Range(fontstack, rangeName string) ([]byte, error) {
	fonts := strings.Split(fontstack, ",")
	buffers := make([][]byte, 0, len(fonts))

	for _, font := range fonts {
		font = strings.TrimSpace(font)
		if font == "" {
			continue
		}

		data, err := s.readRange(font, rangeName)
		if err != nil && s.fallback != "" && font != s.fallback {
			s.logger.Warn("font missing, using fallback",
				"font", font, "fallback", s.fallback, "range", rangeName)
			data, err = s.readRange(s.fallback, rangeName)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s/%s", ErrFontNotFound, font, rangeName)
		}
		buffers = append(buffers, data)
	}

	if len(buffers) == 0 {
		return nil, fmt.Errorf("%w: empty fontstack", ErrFontNotFound)
	}
	return Combine(buffers)
}

func (s *Store) readRange(font, rangeName string) ([]byte, error) {
	// The stack name comes from the URL path; keep it inside fontsDir.
	if strings.ContainsAny(font, "/\\") || strings.Contains(rangeName, "/") {
		return nil, os.ErrNotExist
	}
	return os.ReadFile(filepath.Join(s.fontsDir, font, rangeName+".pbf"))
}
