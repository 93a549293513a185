package lockfile

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locks", "echo.lock")
	l := New(path, "echo.go")

	require.NoError(t, l.TryAcquire())
	assert.True(t, l.Locked())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%d\necho.go\n", os.Getpid()), string(data))

	require.NoError(t, l.Release())
	assert.False(t, l.Locked())
	assert.NoFileExists(t, path)
	assert.NoError(t, l.Release())

	require.NoError(t, l.TryAcquire())
	assert.NoError(t, l.Close())
}

func TestSecondHolderIsRefused(t *testing.T) {
	path := filepath.Join(t.TempDir(), "macro.lock")
	first := New(path, "a")
	require.NoError(t, first.TryAcquire())
	defer first.Release()

	second := New(path, "b")
	err := second.TryAcquire()
	assert.ErrorIs(t, err, ErrLocked)
	assert.False(t, second.Locked())
}

func TestStaleLockIsTakenOver(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"garbage", "not a pid\n"},
		{"empty", ""},
		// PIDs this large are never assigned.
		{"dead process", "2147483000\nold.go\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "macro.lock")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))

			l := New(path, "new.go")
			require.NoError(t, l.TryAcquire())
			defer l.Release()
			assert.True(t, l.Locked())
		})
	}
}
