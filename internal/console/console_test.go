package console

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipe(t *testing.T) (*os.File, *os.File) {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() {
		r.Close()
		w.Close()
	})
	return r, w
}

func TestPipesAreNotTerminals(t *testing.T) {
	r, w := pipe(t)
	c := NewWithFiles(nil, r, w)

	assert.False(t, c.IsTerminal())
	_, _, err := c.Size()
	assert.ErrorIs(t, err, ErrNotTerminal)
	assert.ErrorIs(t, c.SaveState(), ErrNotTerminal)
}

func TestRestoreWithoutSavedState(t *testing.T) {
	c := NewWithFiles()
	assert.NoError(t, c.Restore())
}
