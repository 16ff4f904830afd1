package fslock

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithLockRunsCritical(t *testing.T) {
	target := filepath.Join(t.TempDir(), "tile.png")

	ran := false
	err := WithLock(target, time.Second, func() error {
		ran = true
		// The sidecar must exist while the critical section runs.
		_, statErr := os.Stat(target + ".lock")
		assert.NoError(t, statErr)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)

	_, err = os.Stat(target + ".lock")
	assert.True(t, os.IsNotExist(err))
}

func TestWithLockCreatesMissingParent(t *testing.T) {
	target := filepath.Join(t.TempDir(), "8", "202", "120.png")

	err := WithLock(target, time.Second, func() error {
		return WriteFileAtomic(target, []byte("x"))
	})
	require.NoError(t, err)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), data)
}

func TestWithLockTimesOut(t *testing.T) {
	target := filepath.Join(t.TempDir(), "tile.png")

	// Hold the lock from outside.
	require.NoError(t, os.WriteFile(target+".lock", nil, 0o644))

	err := WithLock(target, 120*time.Millisecond, func() error {
		t.Fatal("critical section must not run")
		return nil
	})
	assert.ErrorIs(t, err, ErrLockTimeout)
}

func TestWithLockReleasesOnError(t *testing.T) {
	target := filepath.Join(t.TempDir(), "tile.png")

	err := WithLock(target, time.Second, func() error {
		return os.ErrPermission
	})
	assert.ErrorIs(t, err, os.ErrPermission)

	_, statErr := os.Stat(target + ".lock")
	assert.True(t, os.IsNotExist(statErr))
}

func TestConcurrentWriters(t *testing.T) {
	target := filepath.Join(t.TempDir(), "tile.png")
	payload := []byte("tile-bytes")

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = WithLock(target, 5*time.Second, func() error {
				return WriteFileAtomic(target, payload)
			})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	_, err = os.Stat(target + ".tmp")
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(target + ".lock")
	assert.True(t, os.IsNotExist(err))
}

func TestWriteFileAtomicReplaces(t *testing.T) {
	target := filepath.Join(t.TempDir(), "metadata.json")
	require.NoError(t, WriteFileAtomic(target, []byte("v1")))
	require.NoError(t, WriteFileAtomic(target, []byte("v2")))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), data)
}
