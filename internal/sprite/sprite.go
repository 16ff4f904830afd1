// Package sprite validates sprite sets: paired sprite sheet images and
// their JSON index files under sprites/<id>/.
package sprite

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"regexp"
	"sort"
)

// ErrValidation reports an inconsistent or malformed sprite set.
var ErrValidation = errors.New("invalid sprite set")

var spriteFilePattern = regexp.MustCompile(`^sprite(@\d+x)?\.(json|png)$`)

// requiredEntryKeys are the fields every sprite index entry must carry.
var requiredEntryKeys = []string{"height", "pixelRatio", "width", "x", "y"}

// Validate checks one sprite set directory: the JSON and PNG base names
// must match pairwise, every JSON entry must carry the positional fields,
// and every PNG must decode.
func Validate(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read sprite dir: %w", err)
	}

	jsons := make(map[string]struct{})
	pngs := make(map[string]struct{})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := spriteFilePattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		base := "sprite" + m[1]
		switch m[2] {
		case "json":
			jsons[base] = struct{}{}
		case "png":
			pngs[base] = struct{}{}
		}
	}

	if len(jsons) == 0 {
		return fmt.Errorf("%w: %s has no sprite files", ErrValidation, dir)
	}
	for base := range jsons {
		if _, ok := pngs[base]; !ok {
			return fmt.Errorf("%w: %s.json has no matching png", ErrValidation, base)
		}
	}
	for base := range pngs {
		if _, ok := jsons[base]; !ok {
			return fmt.Errorf("%w: %s.png has no matching json", ErrValidation, base)
		}
	}

	for base := range jsons {
		if err := validateIndex(filepath.Join(dir, base+".json")); err != nil {
			return err
		}
		if err := validatePNG(filepath.Join(dir, base+".png")); err != nil {
			return err
		}
	}
	return nil
}

// Sets lists the valid sprite set ids under root, sorted.
func Sets(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sprites root: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if Validate(filepath.Join(root, entry.Name())) == nil {
			ids = append(ids, entry.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func validateIndex(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read sprite index: %w", err)
	}

	var index map[string]map[string]any
	if err := json.Unmarshal(data, &index); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrValidation, path, err)
	}

	for name, entry := range index {
		for _, key := range requiredEntryKeys {
			if _, ok := entry[key]; !ok {
				return fmt.Errorf("%w: %s entry %q lacks %q", ErrValidation, path, name, key)
			}
		}
	}
	return nil
}

func validatePNG(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read sprite sheet: %w", err)
	}
	if _, err := png.DecodeConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrValidation, path, err)
	}
	return nil
}
