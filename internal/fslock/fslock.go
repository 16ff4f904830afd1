// Package fslock provides a sidecar-file lock for coordinating writes to
// tiles and metadata files across processes, plus an atomic file writer.
package fslock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrLockTimeout is returned when the sidecar lock could not be acquired
// inside the configured timeout.
var ErrLockTimeout = errors.New("lock timeout")

const pollInterval = 50 * time.Millisecond

// WithLock runs critical while holding an exclusive lock on target. The
// lock is a sidecar file at target+".lock" created with O_EXCL; a holder
// elsewhere makes acquisition poll until timeout. The sidecar is removed on
// every exit path.
func WithLock(target string, timeout time.Duration, critical func() error) error {
	lockPath := target + ".lock"
	deadline := time.Now().Add(timeout)

	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			f.Close()
			break
		}
		if os.IsNotExist(err) {
			// Parent directory is missing; create it and retry at once.
			if mkErr := os.MkdirAll(filepath.Dir(lockPath), 0o755); mkErr != nil {
				return fmt.Errorf("create lock directory: %w", mkErr)
			}
			continue
		}
		if !os.IsExist(err) {
			return fmt.Errorf("create lock file: %w", err)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s", ErrLockTimeout, lockPath)
		}
		time.Sleep(pollInterval)
	}

	defer os.Remove(lockPath)
	return critical()
}

// WriteFileAtomic writes data to target via a sibling ".tmp" file and
// rename, so concurrent readers observe either the old content or the new,
// never a partial file.
func WriteFileAtomic(target string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
