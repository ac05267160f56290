package pid_test

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"codeberg.org/mutker/fand/internal/errors"
	"codeberg.org/mutker/fand/internal/pid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAndRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "fand.pid")

	require.NoError(t, pid.Write(path))

	bytes, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), strings.TrimSpace(string(bytes)))

	// rewriting our own pid is allowed
	require.NoError(t, pid.Write(path))

	require.NoError(t, pid.Remove(path))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// removing twice is not an error
	require.NoError(t, pid.Remove(path))
}

func TestWriteLiveProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fand.pid")
	// the parent of the test binary is alive for the duration of the test
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(os.Getppid())), 0o600))

	err := pid.Write(path)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrAlreadyRunning))
}

func TestWriteStaleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fand.pid")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o600))

	require.NoError(t, pid.Write(path))
	bytes, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), strings.TrimSpace(string(bytes)))
}
