package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "devarchive.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.NoError(t, cfg.Validate())

	level, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)

	_, enabled, err := cfg.Compression()
	require.NoError(t, err)
	assert.False(t, enabled)
	assert.Equal(t, os.FileMode(0o644), cfg.Output.Mode)
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
log:
  level: debug
  format: json
output:
  compression: best
  mode: 0o600
http:
  headers:
    Authorization: Bearer abc
  conditional: true
registry:
  plain_http: true
  user_agent: devarchive-test
cache:
  dir: /var/cache/devarchive
  max_bytes: 1048576
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, os.FileMode(0o600), cfg.Output.Mode)
	assert.Equal(t, "Bearer abc", cfg.HTTP.Headers["Authorization"])
	assert.True(t, cfg.HTTP.Conditional)
	assert.True(t, cfg.Registry.PlainHTTP)
	assert.False(t, cfg.Registry.DockerConfig)
	assert.Equal(t, "devarchive-test", cfg.Registry.UserAgent)
	assert.Equal(t, CacheConfig{Dir: "/var/cache/devarchive", MaxBytes: 1 << 20, BlockSize: 64 << 10}, cfg.Cache)

	level, enabled, err := cfg.Compression()
	require.NoError(t, err)
	assert.True(t, enabled)
	assert.Equal(t, zstd.SpeedBestCompression, level)

	var buf bytes.Buffer
	logger, err := cfg.NewLogger(&buf)
	require.NoError(t, err)
	logger.Debug("hello", "k", "v")
	assert.True(t, strings.HasPrefix(buf.String(), "{"))
	assert.Contains(t, buf.String(), `"k":"v"`)
}

func TestLoadFile_PartialKeepsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFile(writeConfig(t, "output:\n  compression: fastest\n"))
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, os.FileMode(0o644), cfg.Output.Mode)
}

func TestLoadFile_Empty(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFile(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantMsg string
	}{
		{name: "unknown key", content: "log:\n  colour: red\n", wantMsg: "colour"},
		{name: "bad level", content: "log:\n  level: loud\n", wantMsg: "log.level"},
		{name: "bad format", content: "log:\n  format: xml\n", wantMsg: "log.format"},
		{name: "bad compression", content: "output:\n  compression: gzip\n", wantMsg: "output.compression"},
		{name: "bad mode", content: "output:\n  mode: 0o4777\n", wantMsg: "output.mode"},
		{name: "negative cache size", content: "cache:\n  max_bytes: -1\n", wantMsg: "cache.max_bytes"},
		{name: "zero block size", content: "cache:\n  block_size: 0\n", wantMsg: "cache.block_size"},
		{name: "not yaml", content: "log: [", wantMsg: "parse config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := LoadFile(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestLoad_Env(t *testing.T) {
	path := writeConfig(t, "log:\n  level: error\n")
	t.Setenv(EnvVar, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log.Level)

	t.Setenv(EnvVar, "")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
