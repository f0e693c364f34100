package devarchive

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hookCounter struct {
	counts [DeviceCount]atomic.Int32
}

func (h *hookCounter) hook(dev DeviceType) {
	h.counts[dev].Add(1)
}

func (h *hookCounter) get(dev DeviceType) int32 {
	return h.counts[dev].Load()
}

func TestShaderRegions_ComputedOnce(t *testing.T) {
	t.Parallel()

	f := buildFixture(t)
	var hc hookCounter
	a := openBytes(t, f.data, WithShaderRegionHook(hc.hook))

	first, err := a.ShaderRegions(DeviceVulkan)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, int32(1), hc.get(DeviceVulkan))

	second, err := a.ShaderRegions(DeviceVulkan)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), hc.get(DeviceVulkan))
	assert.Zero(t, hc.get(DeviceDirect3D12))

	for i, want := range f.shaders[DeviceVulkan] {
		got, err := a.LoadShader(DeviceVulkan, i)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, int32(1), hc.get(DeviceVulkan))
}

func TestShaderRegions_Concurrent(t *testing.T) {
	t.Parallel()

	var hc hookCounter
	a := openBytes(t, buildFixture(t).data, WithShaderRegionHook(hc.hook))

	const workers = 32
	results := make([][]Region, workers)
	errs := make([]error, workers)
	start := make(chan struct{})

	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			dev := DeviceVulkan
			if i%2 == 1 {
				dev = DeviceDirect3D12
			}
			results[i], errs[i] = a.ShaderRegions(dev)
		}()
	}
	close(start)
	wg.Wait()

	for i := range workers {
		require.NoError(t, errs[i])
		assert.Equal(t, results[i%2], results[i])
	}
	assert.Len(t, results[0], 2)
	assert.Len(t, results[1], 1)
	assert.Equal(t, int32(1), hc.get(DeviceVulkan))
	assert.Equal(t, int32(1), hc.get(DeviceDirect3D12))
}

func TestShaderRegions_ReturnsCopy(t *testing.T) {
	t.Parallel()

	a := openBytes(t, buildFixture(t).data)
	regions, err := a.ShaderRegions(DeviceVulkan)
	require.NoError(t, err)
	regions[0] = Region{}

	again, err := a.ShaderRegions(DeviceVulkan)
	require.NoError(t, err)
	assert.NotEqual(t, Region{}, again[0])
}

func TestShaderRegions_NoShaders(t *testing.T) {
	t.Parallel()

	var hc hookCounter
	a := openBytes(t, buildPSOArchive(t), WithShaderRegionHook(hc.hook))

	regions, err := a.ShaderRegions(DeviceVulkan)
	require.NoError(t, err)
	assert.Empty(t, regions)

	regions, err = a.ShaderRegions(DeviceOpenGL)
	require.NoError(t, err)
	assert.Empty(t, regions)

	_, err = a.ShaderRegions(DeviceType(42))
	require.ErrorIs(t, err, ErrNoDeviceData)

	_, err = a.LoadShader(DeviceVulkan, 0)
	require.ErrorIs(t, err, ErrResourceNotFound)
}

func TestShaderRegions_OutOfBlockNotCached(t *testing.T) {
	t.Parallel()

	f := buildFixture(t)
	probe := openBytes(t, f.data)
	hdr, ok := probe.ShadersHeader()
	require.True(t, ok)

	// Point the first Vulkan shader past the end of the Vulkan block.
	data := f.data
	entry := int(probe.BaseOffset(BlockOffsetTypeOf(DeviceVulkan)) + hdr.Offset(DeviceVulkan))
	putUint32(data, entry+4, 1<<30)

	var hc hookCounter
	a := openBytes(t, data, WithShaderRegionHook(hc.hook))
	for range 2 {
		_, err := a.ShaderRegions(DeviceVulkan)
		require.ErrorIs(t, err, ErrOutOfBoundsRegion)
	}
	assert.Equal(t, int32(2), hc.get(DeviceVulkan))
}

func TestPreload(t *testing.T) {
	t.Parallel()

	var hc hookCounter
	a := openBytes(t, buildFixture(t).data, WithShaderRegionHook(hc.hook))

	require.NoError(t, a.Preload(context.Background()))
	for _, dev := range a.Devices() {
		assert.Equal(t, int32(1), hc.get(dev), dev.String())
	}
	assert.Zero(t, hc.get(DeviceOpenGL))

	require.NoError(t, a.Preload(context.Background(), DeviceVulkan))
	assert.Equal(t, int32(1), hc.get(DeviceVulkan))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, a.Preload(ctx, DeviceOpenGL), context.Canceled)
}
