package devarchive

import (
	"strings"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Byte offsets of the fields of an encoded data header.
func dataHeaderSizeOff(dev DeviceType) int   { return 8 + 4*int(dev) }
func dataHeaderOffsetOff(dev DeviceType) int { return 8 + 4*DeviceCount + 4*int(dev) }

func TestValidate_Fixture(t *testing.T) {
	t.Parallel()
	require.NoError(t, openBytes(t, buildFixture(t).data).Validate())
	require.NoError(t, openBytes(t, buildPSOArchive(t)).Validate())
}

func TestValidate_SentinelConsistency(t *testing.T) {
	t.Parallel()

	a := openBytes(t, buildFixture(t).data)
	for _, category := range a.Resources().Categories() {
		if !category.HasDeviceData() {
			continue
		}
		for name, region := range a.Resources().All(category) {
			hdr, err := a.readDataHeader(region)
			require.NoError(t, err)
			for _, dev := range AllDevices() {
				assert.Equal(t, hdr.Size(dev) == 0, hdr.Offset(dev) == InvalidOffset, "%s %s", name, dev)
			}
		}
	}
}

func TestValidate_ReportsEveryViolation(t *testing.T) {
	t.Parallel()

	data := buildFixture(t).data
	probe := openBytes(t, data)
	psoA, _ := probe.Resources().Lookup(ChunkGraphicsPipelineStates, "PSO_A")
	psoB, _ := probe.Resources().Lookup(ChunkGraphicsPipelineStates, "PSO_B")
	sigA, _ := probe.Resources().Lookup(ChunkResourceSignature, "SigA")

	putUint32(data, int(psoA.Offset), uint32(ChunkTilePipelineStates))
	putUint32(data, int(psoB.Offset)+dataHeaderSizeOff(DeviceOpenGL), 12)
	putUint32(data, int(sigA.Offset)+dataHeaderOffsetOff(DeviceMetalMacOS), 0)
	putUint32(data, int(sigA.Offset)+dataHeaderSizeOff(DeviceMetalMacOS), 8)
	putUint32(data, int(psoB.Offset)+dataHeaderSizeOff(DeviceVulkan), 1<<20)

	err := openBytes(t, data).Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCategoryMismatch)
	assert.ErrorIs(t, err, ErrMalformedHeader)
	assert.ErrorIs(t, err, ErrNoDeviceData)
	assert.ErrorIs(t, err, ErrOutOfBoundsRegion)

	msg := err.Error()
	assert.Contains(t, msg, `"PSO_A"`)
	assert.Contains(t, msg, `"PSO_B"`)
	assert.Contains(t, msg, `"SigA"`)
}

func TestDescribe(t *testing.T) {
	t.Parallel()

	f := buildFixture(t)
	a := openBytes(t, f.data)

	d, err := a.Describe()
	require.NoError(t, err)
	assert.Equal(t, int64(len(f.data)), d.Size)
	assert.Len(t, d.Chunks, 6)
	require.Len(t, d.Devices, 3)
	require.NotNil(t, d.DebugInfo)

	for _, dd := range d.Devices {
		dev, err := ParseDeviceType(dd.Device)
		require.NoError(t, err)
		block, err := a.devices[BlockOffsetTypeOf(dev)].contents()
		require.NoError(t, err)
		assert.Equal(t, digest.FromBytes(block), dd.Digest)
		assert.Equal(t, len(f.shaders[dev]), dd.Shaders)
		assert.False(t, dd.Materialized)
	}

	require.NoError(t, a.RemoveDeviceData(DeviceMetalIOS))
	require.NoError(t, a.AppendDeviceData(openBytes(t, f.data), DeviceMetalIOS))
	d, err = a.Describe()
	require.NoError(t, err)
	last := d.Devices[len(d.Devices)-1]
	assert.Equal(t, "Metal_iOS", last.Device)
	assert.True(t, last.Materialized)
	assert.Equal(t, InvalidOffset, last.BaseOffset)
}

func TestString(t *testing.T) {
	t.Parallel()

	a := openBytes(t, buildFixture(t).data)
	s := a.String()
	for _, want := range []string{"Graphics Pipelines", "Resource Signatures", `"PSO_A"`, "Vulkan", "4c1e3a9"} {
		assert.Contains(t, s, want)
	}
	assert.Equal(t, 6, strings.Count(s, "offset ")-len(a.Devices()))
}
