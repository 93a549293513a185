package pprof

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPServerAndStats(t *testing.T) {
	h := NewHandler(Config{HTTPAddr: "127.0.0.1:0"}, func() any {
		return map[string]int{"cycles": 3}
	}, nil)
	require.NoError(t, h.Start())
	defer h.Stop()

	base := "http://" + h.Addr().String()

	resp, err := http.Get(base + "/debug/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	var got map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, 3, got["cycles"])

	resp2, err := http.Get(base + "/debug/pprof/goroutine?debug=1")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)
}

func TestProfileFiles(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		CPUProfile:  filepath.Join(dir, "cpu", "cpu.prof"),
		HeapProfile: filepath.Join(dir, "heap.prof"),
	}
	assert.True(t, cfg.Enabled())
	assert.False(t, Config{}.Enabled())

	h := NewHandler(cfg, nil, nil)
	require.NoError(t, h.Start())
	require.NoError(t, h.Stop())
	require.NoError(t, h.Stop())

	assert.FileExists(t, cfg.CPUProfile)
	assert.FileExists(t, cfg.HeapProfile)
}
