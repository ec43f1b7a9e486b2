package sensor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lockTarget(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "port")
	require.NoError(t, os.WriteFile(path, nil, 0666))
	return path
}

func TestPortLockIsExclusive(t *testing.T) {
	path := lockTarget(t)

	lock, err := AcquirePortLock(path, 0, 0)
	require.NoError(t, err)
	defer lock.Release()

	_, err = AcquirePortLock(path, 0, 0)
	require.Error(t, err)
	var busy *PortBusyError
	assert.ErrorAs(t, err, &busy)
	assert.Equal(t, path, busy.Device)
}

func TestPortLockReleaseAllowsReacquire(t *testing.T) {
	path := lockTarget(t)

	lock, err := AcquirePortLock(path, 0, 0)
	require.NoError(t, err)
	require.NoError(t, lock.Release())

	again, err := AcquirePortLock(path, 0, 0)
	require.NoError(t, err)
	assert.NoError(t, again.Release())
}

func TestPortLockRetries(t *testing.T) {
	path := lockTarget(t)

	lock, err := AcquirePortLock(path, 0, 0)
	require.NoError(t, err)

	released := make(chan struct{})
	go func() {
		time.Sleep(20 * time.Millisecond)
		lock.Release()
		close(released)
	}()

	again, err := AcquirePortLock(path, 10, 10*time.Millisecond)
	require.NoError(t, err)
	<-released
	assert.NoError(t, again.Release())
}

func TestPortLockMissingDevice(t *testing.T) {
	_, err := AcquirePortLock(filepath.Join(t.TempDir(), "absent"), 0, 0)
	assert.Error(t, err)
}
