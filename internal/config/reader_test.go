package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "p1stream.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestReaderReadsYAMLValues(t *testing.T) {
	path := writeTempConfig(t, "video-width: 1280\nvideo-height: 720\nvolume: 0.75\nmaster: true\nname: desktop\n")
	r, err := NewReader(path)
	require.NoError(t, err)

	width, ok := r.GetInt("video-width")
	require.True(t, ok)
	assert.Equal(t, 1280, width)

	vol, ok := r.GetFloat("volume")
	require.True(t, ok)
	assert.InDelta(t, 0.75, vol, 1e-6)

	master, ok := r.GetBool("master")
	require.True(t, ok)
	assert.True(t, master)

	_, ok = r.GetString("missing-key")
	assert.False(t, ok, "missing keys must read as undefined")
}

func TestReaderEnvOverridesFile(t *testing.T) {
	path := writeTempConfig(t, "video-width: 1280\n")
	t.Setenv("P1STREAM_VIDEO_WIDTH", "1920")

	r, err := NewReader(path)
	require.NoError(t, err)

	width, ok := r.GetInt("video-width")
	require.True(t, ok)
	assert.Equal(t, 1920, width)
}

func TestEachStringRespectsPrefix(t *testing.T) {
	path := writeTempConfig(t, "source:\n  a: foo\n  b: bar\nother: baz\n")
	r, err := NewReader(path)
	require.NoError(t, err)

	seen := map[string]string{}
	r.EachString("source.", func(key, val string) bool {
		seen[key] = val
		return true
	})
	assert.Equal(t, map[string]string{"source.a": "foo", "source.b": "bar"}, seen)
}
