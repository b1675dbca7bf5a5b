package watcher

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotationWatcher_FiresOnRename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "connector.log")
	require.NoError(t, os.WriteFile(path, []byte("line\n"), 0644))

	var fired atomic.Int32
	rw, err := NewRotationWatcher(path, func() { fired.Add(1) })
	require.NoError(t, err)
	require.NoError(t, rw.Start())
	defer rw.Stop()

	require.NoError(t, os.Rename(path, path+".1"))

	assert.Eventually(t, func() bool { return fired.Load() == 1 }, 2*time.Second, 20*time.Millisecond)
}

func TestRotationWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "connector.log")
	other := filepath.Join(dir, "other.log")
	require.NoError(t, os.WriteFile(path, nil, 0644))
	require.NoError(t, os.WriteFile(other, nil, 0644))

	var fired atomic.Int32
	rw, err := NewRotationWatcher(path, func() { fired.Add(1) })
	require.NoError(t, err)
	require.NoError(t, rw.Start())

	require.NoError(t, os.Remove(other))
	time.Sleep(300 * time.Millisecond)
	rw.Stop()
	rw.Stop()

	assert.Equal(t, int32(0), fired.Load())
}
