package xyz

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// RemoveEmptyFolders deletes, bottom-up, every directory under root that no
// longer contains a file matching leafPattern anywhere below it. It runs
// after a cleanup pass so emptied z/x directories do not linger.
func RemoveEmptyFolders(root string, leafPattern *regexp.Regexp) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("read directory: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := pruneDir(filepath.Join(root, e.Name()), leafPattern); err != nil {
			return err
		}
	}
	return nil
}

// pruneDir removes dir when no matching leaf survives below it and reports
// whether any did.
func pruneDir(dir string, leafPattern *regexp.Regexp) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, fmt.Errorf("read directory: %w", err)
	}

	hasLeaf := false
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if e.IsDir() {
			kept, err := pruneDir(path, leafPattern)
			if err != nil {
				return false, err
			}
			hasLeaf = hasLeaf || kept
			continue
		}
		if leafPattern.MatchString(e.Name()) {
			hasLeaf = true
		}
	}

	if !hasLeaf {
		if err := os.RemoveAll(dir); err != nil {
			return false, fmt.Errorf("remove empty directory: %w", err)
		}
	}
	return hasLeaf, nil
}
