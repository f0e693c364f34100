package devarchive

import (
	"fmt"

	"github.com/meigma/devarchive/internal/layout"
	"github.com/meigma/devarchive/internal/serial"
)

// Re-export types from internal/layout for the public API.
type (
	// DeviceType identifies a hardware backend.
	DeviceType = layout.DeviceType

	// BlockOffsetType indexes the per-device base-offset table.
	BlockOffsetType = layout.BlockOffsetType

	// ChunkType is a resource category.
	ChunkType = layout.ChunkType

	// ChunkHeader describes one chunk of the archive.
	ChunkHeader = layout.ChunkHeader

	// DataHeader maps each device to its payload inside the device's block.
	DataHeader = layout.DataHeader

	// RenderPassHeader precedes a backend-independent render pass.
	RenderPassHeader = layout.RenderPassHeader

	// DebugInfo is advisory build information.
	DebugInfo = layout.DebugInfo

	// PayloadReader consumes a resource's backend-independent payload.
	PayloadReader = serial.Reader

	// PayloadWriter builds a backend-independent payload.
	PayloadWriter = serial.Writer
)

// Re-export enumeration constants.
const (
	DeviceOpenGL     = layout.DeviceOpenGL
	DeviceDirect3D11 = layout.DeviceDirect3D11
	DeviceDirect3D12 = layout.DeviceDirect3D12
	DeviceVulkan     = layout.DeviceVulkan
	DeviceMetalMacOS = layout.DeviceMetalMacOS
	DeviceMetalIOS   = layout.DeviceMetalIOS
	DeviceCount      = layout.DeviceCount

	ChunkUndefined                = layout.ChunkUndefined
	ChunkArchiveDebugInfo         = layout.ChunkArchiveDebugInfo
	ChunkResourceSignature        = layout.ChunkResourceSignature
	ChunkGraphicsPipelineStates   = layout.ChunkGraphicsPipelineStates
	ChunkComputePipelineStates    = layout.ChunkComputePipelineStates
	ChunkRayTracingPipelineStates = layout.ChunkRayTracingPipelineStates
	ChunkTilePipelineStates       = layout.ChunkTilePipelineStates
	ChunkRenderPass               = layout.ChunkRenderPass
	ChunkShaders                  = layout.ChunkShaders

	// HeaderMagicNumber and HeaderVersion identify the supported format.
	HeaderMagicNumber = layout.HeaderMagicNumber
	HeaderVersion     = layout.HeaderVersion

	// InvalidOffset marks an absent device payload on the wire.
	InvalidOffset = layout.InvalidOffset

	// Record sizes in bytes.
	DataHeaderSize       = layout.DataHeaderSize
	RenderPassHeaderSize = layout.RenderPassHeaderSize
)

// Re-exported helpers.
var (
	ParseDeviceType   = layout.ParseDeviceType
	AllDevices        = layout.AllDevices
	BlockOffsetTypeOf = layout.BlockOffsetTypeOf
	NewDataHeader     = layout.NewDataHeader
)

// Region is an (offset, size) byte range within an archive.
type Region struct {
	Offset uint32
	Size   uint32
}

// End returns the offset one past the region without wrapping.
func (r Region) End() uint64 {
	return uint64(r.Offset) + uint64(r.Size)
}

// String formats the region as [offset, end).
func (r Region) String() string {
	return fmt.Sprintf("[%d, %d)", r.Offset, r.End())
}
