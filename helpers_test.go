package devarchive

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// fixture describes the resources written by buildFixture.
type fixture struct {
	data       []byte
	signatures map[string]map[DeviceType][]byte
	pipelines  map[string]map[DeviceType][]byte
	shaders    map[DeviceType][][]byte
}

func payload(b byte, n int) []byte {
	return bytes.Repeat([]byte{b}, n)
}

// commonPayload encodes name as the resource's backend-independent payload.
func commonPayload(name string) []byte {
	var w PayloadWriter
	w.PutString(name)
	w.PutUint32(uint32(len(name)))
	return w.Bytes()
}

// decodeCommon consumes a payload written by commonPayload.
func decodeCommon[H any](name string, _ *H, r *PayloadReader) error {
	got, err := r.ReadString()
	if err != nil {
		return err
	}
	n, err := r.Uint32()
	if err != nil {
		return err
	}
	if got != name || int(n) != len(name) {
		return errTestPayload
	}
	return nil
}

var errTestPayload = errors.New("payload does not match resource name")

// buildFixture returns an archive with signatures, graphics and compute
// pipelines, a render pass, Vulkan and Direct3D12 shaders, and debug info.
func buildFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		signatures: map[string]map[DeviceType][]byte{
			"SigA": {DeviceVulkan: payload(0x11, 24), DeviceDirect3D12: payload(0x12, 40)},
			"SigB": {DeviceVulkan: payload(0x21, 7)},
		},
		pipelines: map[string]map[DeviceType][]byte{
			"PSO_A": {DeviceVulkan: payload(0x31, 128)},
			"PSO_B": {DeviceVulkan: payload(0x41, 33), DeviceDirect3D12: payload(0x42, 64), DeviceMetalIOS: payload(0x43, 5)},
		},
		shaders: map[DeviceType][][]byte{
			DeviceVulkan:     {payload(0x51, 300), payload(0x52, 17)},
			DeviceDirect3D12: {payload(0x61, 90)},
		},
	}

	b := NewBuilder()
	for name, devs := range f.signatures {
		require.NoError(t, b.AddSignature(name, commonPayload(name), devs))
	}
	for name, devs := range f.pipelines {
		require.NoError(t, b.AddPipeline(ChunkGraphicsPipelineStates, name, commonPayload(name), devs))
	}
	require.NoError(t, b.AddPipeline(ChunkComputePipelineStates, "CS", commonPayload("CS"),
		map[DeviceType][]byte{DeviceDirect3D12: payload(0x71, 16)}))
	require.NoError(t, b.AddRenderPass("RP", commonPayload("RP")))
	for _, dev := range AllDevices() {
		for i, code := range f.shaders[dev] {
			idx, err := b.AddShader(dev, code)
			require.NoError(t, err)
			require.Equal(t, uint32(i), idx)
		}
	}
	b.SetDebugInfo(DebugInfo{APIVersion: 255007, GitHash: "4c1e3a9"})

	data, err := b.Build()
	require.NoError(t, err)
	f.data = data
	return f
}

// buildPSOArchive returns an archive holding one graphics pipeline "PSO_A"
// with a 128 byte Vulkan payload and no other device data.
func buildPSOArchive(t *testing.T) []byte {
	t.Helper()
	b := NewBuilder()
	require.NoError(t, b.AddPipeline(ChunkGraphicsPipelineStates, "PSO_A", commonPayload("PSO_A"),
		map[DeviceType][]byte{DeviceVulkan: payload(0xAB, 128)}))
	data, err := b.Build()
	require.NoError(t, err)
	return data
}

func openBytes(t *testing.T, data []byte, opts ...Option) *Archive {
	t.Helper()
	a, err := Open(NewMemorySource(data), opts...)
	require.NoError(t, err)
	return a
}

func putUint32(data []byte, off int, v uint32) {
	data[off] = byte(v)
	data[off+1] = byte(v >> 8)
	data[off+2] = byte(v >> 16)
	data[off+3] = byte(v >> 24)
}

// deviceData loads every device payload of a named data-header resource.
func deviceData(t *testing.T, a *Archive, category ChunkType, name string) map[DeviceType][]byte {
	t.Helper()
	res, err := LoadResource(a, category, name, decodeCommon[DataHeader])
	require.NoError(t, err)

	out := make(map[DeviceType][]byte)
	for _, dev := range AllDevices() {
		data, ok, err := a.GetDeviceSpecificData(dev, &res.Header, category)
		require.NoError(t, err)
		if ok {
			out[dev] = data
		}
	}
	return out
}
