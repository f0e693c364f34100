package devarchive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_Errors(t *testing.T) {
	t.Parallel()

	b := NewBuilder()
	require.NoError(t, b.AddSignature("Sig", nil, nil))
	require.ErrorIs(t, b.AddSignature("Sig", nil, nil), ErrDuplicateResourceName)

	// The same name may appear in different categories.
	require.NoError(t, b.AddPipeline(ChunkComputePipelineStates, "Sig", nil, nil))

	require.ErrorIs(t, b.AddPipeline(ChunkRenderPass, "RP", nil, nil), ErrUnknownCategory)
	require.ErrorIs(t, b.AddPipeline(ChunkShaders, "S", nil, nil), ErrUnknownCategory)
	require.ErrorIs(t, b.AddSignature("", nil, nil), ErrMalformedHeader)
	require.ErrorIs(t, b.AddSignature("Bad", nil, map[DeviceType][]byte{DeviceType(9): {1}}), ErrNoDeviceData)

	_, err := b.AddShader(DeviceVulkan, nil)
	require.ErrorIs(t, err, ErrTruncatedPayload)
	_, err = b.AddShader(DeviceType(6), []byte{1})
	require.ErrorIs(t, err, ErrNoDeviceData)
}

func TestBuilder_Empty(t *testing.T) {
	t.Parallel()

	data, err := NewBuilder().Build()
	require.NoError(t, err)
	assert.Len(t, data, 40)

	a := openBytes(t, data)
	assert.Empty(t, a.Chunks())
	assert.Empty(t, a.Devices())
	require.NoError(t, a.Validate())
}

func TestBuilder_EmptyPayloadIsAbsent(t *testing.T) {
	t.Parallel()

	b := NewBuilder()
	require.NoError(t, b.AddPipeline(ChunkTilePipelineStates, "Tile", []byte("tile"),
		map[DeviceType][]byte{DeviceMetalIOS: payload(9, 12), DeviceMetalMacOS: {}}))
	data, err := b.Build()
	require.NoError(t, err)

	a := openBytes(t, data)
	assert.Equal(t, []DeviceType{DeviceMetalIOS}, a.Devices())

	pso, err := a.LoadPipeline(ChunkTilePipelineStates, "Tile", nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("tile"), pso.Payload)
	assert.False(t, pso.Header.Has(DeviceMetalMacOS))
	assert.Zero(t, pso.Header.Size(DeviceMetalMacOS))
}

func TestBuilder_PayloadsAreAligned(t *testing.T) {
	t.Parallel()

	a := openBytes(t, buildFixture(t).data)
	for _, category := range []ChunkType{ChunkResourceSignature, ChunkGraphicsPipelineStates} {
		for name, region := range a.Resources().All(category) {
			assert.Zero(t, region.Offset%8, name)
			hdr, err := a.readDataHeader(region)
			require.NoError(t, err)
			for _, dev := range AllDevices() {
				if hdr.Has(dev) {
					assert.Zero(t, hdr.Offset(dev)%8, "%s %s", name, dev)
				}
			}
		}
	}
	regions, err := a.ShaderRegions(DeviceVulkan)
	require.NoError(t, err)
	for _, r := range regions {
		assert.Zero(t, r.Offset%8)
	}
}
