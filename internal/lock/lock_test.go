package lock

import (
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_TryLock(t *testing.T) {
	l := NewLocal()

	ok, err := l.TryLock()
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.TryLock()
	require.NoError(t, err)
	assert.False(t, ok, "second acquisition must fail without blocking")

	require.NoError(t, l.Unlock())
	ok, _ = l.TryLock()
	assert.True(t, ok)
}

func TestFile_TryLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "nfosync.lock")
	l, err := NewFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, l.Path())

	ok, err := l.TryLock()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.FileExists(t, path)

	ok, err = l.TryLock()
	require.NoError(t, err)
	assert.False(t, ok, "same process, same lock")

	require.NoError(t, l.Unlock())
	ok, err = l.TryLock()
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, l.Unlock())
}

func TestFile_ExcludesSecondHandle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nfosync.lock")
	a, err := NewFile(path)
	require.NoError(t, err)
	b, err := NewFile(path)
	require.NoError(t, err)

	ok, err := a.TryLock()
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = b.TryLock()
	require.NoError(t, err)
	assert.False(t, ok, "another handle on the same file is excluded")

	require.NoError(t, a.Unlock())
	ok, err = b.TryLock()
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, b.Unlock())
}

func TestLocal_ConcurrentTryLock(t *testing.T) {
	l := NewLocal()
	var winners atomic.Int32
	start := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if ok, _ := l.TryLock(); ok {
				winners.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}
