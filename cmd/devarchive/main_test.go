package main

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/devarchive"
)

// The commands share package-level option structs, so tests in this file
// run sequentially.

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	globalOptions = GlobalOptions{}
	inspectOptions = InspectOptions{}
	stripOptions = StripOptions{}
	mergeOptions = MergeOptions{}
	shadersOptions = ShadersOptions{}
	extractOptions = ExtractOptions{}
	pushOptions = PushOptions{}
	pullOptions = PullOptions{}
	t.Setenv("DEVARCHIVE_CONFIG", "")

	var out bytes.Buffer
	cmdRoot.SetOut(&out)
	cmdRoot.SetErr(&bytes.Buffer{})
	cmdRoot.SetArgs(args)
	err := cmdRoot.Execute()
	return out.String(), err
}

func buildArchive(t *testing.T) []byte {
	t.Helper()

	b := devarchive.NewBuilder()
	require.NoError(t, b.AddSignature("Sig", []byte("sig"), map[devarchive.DeviceType][]byte{
		devarchive.DeviceVulkan:     bytes.Repeat([]byte{0x11}, 24),
		devarchive.DeviceDirect3D12: bytes.Repeat([]byte{0x12}, 16),
	}))
	require.NoError(t, b.AddPipeline(devarchive.ChunkGraphicsPipelineStates, "Opaque/Lit", []byte("pso"), map[devarchive.DeviceType][]byte{
		devarchive.DeviceVulkan:     bytes.Repeat([]byte{0x21}, 128),
		devarchive.DeviceDirect3D12: bytes.Repeat([]byte{0x22}, 64),
	}))
	require.NoError(t, b.AddRenderPass("Main", []byte("main")))
	for _, code := range [][]byte{bytes.Repeat([]byte{0x31}, 300), bytes.Repeat([]byte{0x32}, 17)} {
		_, err := b.AddShader(devarchive.DeviceVulkan, code)
		require.NoError(t, err)
	}
	_, err := b.AddShader(devarchive.DeviceDirect3D12, bytes.Repeat([]byte{0x41}, 90))
	require.NoError(t, err)
	b.SetDebugInfo(devarchive.DebugInfo{APIVersion: 255007, GitHash: "4c1e3a9"})

	data, err := b.Build()
	require.NoError(t, err)
	return data
}

func writeArchiveFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "archive.bin")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestInspect(t *testing.T) {
	path := writeArchiveFile(t, buildArchive(t))

	out, err := execute(t, "inspect", path)
	require.NoError(t, err)
	assert.Contains(t, out, "devices:")
	assert.Contains(t, out, "Vulkan")
	assert.Contains(t, out, "Direct3D12")
	assert.Contains(t, out, "2 shaders")
	assert.Contains(t, out, "api version 255007, commit 4c1e3a9")

	out, err = execute(t, "inspect", "--verbose", path)
	require.NoError(t, err)
	assert.Contains(t, out, `"Opaque/Lit"`)

	out, err = execute(t, "inspect", "--json", path)
	require.NoError(t, err)
	var desc devarchive.Description
	require.NoError(t, json.Unmarshal([]byte(out), &desc))
	require.Len(t, desc.Devices, 2)
	assert.Equal(t, "Direct3D12", desc.Devices[0].Device)
	assert.Equal(t, "Vulkan", desc.Devices[1].Device)
	assert.Equal(t, 2, desc.Devices[1].Shaders)
	require.NotNil(t, desc.DebugInfo)
	assert.Equal(t, "4c1e3a9", desc.DebugInfo.GitHash)
}

func TestInspect_HTTP(t *testing.T) {
	data := buildArchive(t)
	var authorized atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorized.Store(r.Header.Get("Authorization") == "Bearer secret")
		http.ServeContent(w, r, "archive.bin", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(server.Close)

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("http:\n  headers:\n    Authorization: Bearer secret\n"), 0o600))

	out, err := execute(t, "--config", cfgPath, "inspect", server.URL+"/archive.bin")
	require.NoError(t, err)
	assert.Contains(t, out, "Vulkan")
	assert.True(t, authorized.Load())
}

func TestInspect_HTTPCached(t *testing.T) {
	data := buildArchive(t)
	var ranged atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.Header.Get("Range") != "bytes=0-0" {
			ranged.Add(1)
		}
		w.Header().Set("ETag", `"v1"`)
		http.ServeContent(w, r, "archive.bin", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(server.Close)

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	cacheDir := t.TempDir()
	require.NoError(t, os.WriteFile(cfgPath, []byte("cache:\n  dir: "+cacheDir+"\n  block_size: 4096\n"), 0o600))

	_, err := execute(t, "--config", cfgPath, "inspect", server.URL)
	require.NoError(t, err)
	first := ranged.Load()
	require.Positive(t, first)

	out, err := execute(t, "--config", cfgPath, "inspect", server.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "Vulkan")
	assert.Equal(t, first, ranged.Load())
}

func TestValidate(t *testing.T) {
	data := buildArchive(t)

	out, err := execute(t, "validate", writeArchiveFile(t, data))
	require.NoError(t, err)
	assert.Contains(t, out, ": ok")

	a, err := devarchive.Open(devarchive.NewMemorySource(data))
	require.NoError(t, err)
	region, ok := a.Resources().Lookup(devarchive.ChunkResourceSignature, "Sig")
	require.True(t, ok)
	corrupt := bytes.Clone(data)
	binary.LittleEndian.PutUint32(corrupt[region.Offset:], uint32(devarchive.ChunkRenderPass))

	out, err = execute(t, "validate", writeArchiveFile(t, corrupt))
	require.ErrorIs(t, err, errInvalidArchive)
	assert.Contains(t, out, "Sig")
}

func TestStripMerge(t *testing.T) {
	data := buildArchive(t)
	dir := t.TempDir()
	original := writeArchiveFile(t, data)
	stripped := filepath.Join(dir, "stripped.bin")
	merged := filepath.Join(dir, "merged.bin")

	_, err := execute(t, "strip", original, "--device", "vk", "-o", stripped)
	require.NoError(t, err)

	af, err := devarchive.OpenFile(stripped, devarchive.WithValidateOnOpen(true))
	require.NoError(t, err)
	assert.False(t, af.HasDevice(devarchive.DeviceVulkan))
	assert.True(t, af.HasDevice(devarchive.DeviceDirect3D12))
	require.NoError(t, af.Close())

	_, err = execute(t, "merge", stripped, original, "--device", "vulkan", "-o", merged)
	require.NoError(t, err)

	got, err := os.ReadFile(merged)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	_, err = execute(t, "merge", original, original, "--device", "vulkan", "-o", merged)
	require.ErrorIs(t, err, devarchive.ErrBackendAlreadyPresent)
}

func TestStrip_Compressed(t *testing.T) {
	path := writeArchiveFile(t, buildArchive(t))
	out := filepath.Join(t.TempDir(), "stripped.bin.zst")

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("output:\n  compression: best\n  mode: 0600\n"), 0o600))

	_, err := execute(t, "--config", cfgPath, "strip", path, "--device", "d3d12", "-o", out)
	require.NoError(t, err)

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x28, 0xB5, 0x2F, 0xFD}, raw[:4])

	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	af, err := devarchive.OpenFile(out)
	require.NoError(t, err)
	defer af.Close()
	assert.Equal(t, []devarchive.DeviceType{devarchive.DeviceVulkan}, af.Devices())
}

func TestShaders(t *testing.T) {
	path := writeArchiveFile(t, buildArchive(t))

	out, err := execute(t, "shaders", path, "--device", "vulkan")
	require.NoError(t, err)
	assert.Contains(t, out, "2 shaders, 317 B")

	out, err = execute(t, "shaders", path, "--device", "gl")
	require.NoError(t, err)
	assert.Contains(t, out, "0 shaders")
}

func TestExtract(t *testing.T) {
	path := writeArchiveFile(t, buildArchive(t))
	dir := t.TempDir()

	out, err := execute(t, "extract", path, "--device", "d3d12", "-o", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote 3 Direct3D12 payloads")

	got, err := os.ReadFile(filepath.Join(dir, "graphics-pipelines", "Opaque%2FLit.bin"))
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{0x22}, 64), got)

	got, err = os.ReadFile(filepath.Join(dir, "resource-signatures", "Sig.bin"))
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{0x12}, 16), got)

	got, err = os.ReadFile(filepath.Join(dir, "shaders", "0.bin"))
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{0x41}, 90), got)
}

func TestFlagErrors(t *testing.T) {
	path := writeArchiveFile(t, buildArchive(t))

	tests := []struct {
		name    string
		args    []string
		wantErr error
	}{
		{name: "strip without device", args: []string{"strip", path, "-o", "x"}, wantErr: errMissingDevice},
		{name: "strip without output", args: []string{"strip", path, "--device", "vk"}, wantErr: errMissingOutput},
		{name: "extract without output", args: []string{"extract", path, "--device", "vk"}, wantErr: errMissingOutput},
		{name: "pull without output", args: []string{"pull", "localhost:5000/a:b"}, wantErr: errMissingOutput},
		{name: "strip absent device", args: []string{"strip", path, "--device", "mtl-ios", "-o", filepath.Join(t.TempDir(), "x")}, wantErr: devarchive.ErrNoDeviceData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err := execute(t, "shaders", path, "--device", "glide")
	require.Error(t, err)

	_, err = execute(t, "--log-level", "loud", "inspect", path)
	require.Error(t, err)
}
