package layout

import (
	"fmt"
	"strings"
)

// DeviceType identifies a hardware backend whose data an archive can carry.
type DeviceType uint32

const (
	DeviceOpenGL DeviceType = iota // also GLES
	DeviceDirect3D11
	DeviceDirect3D12
	DeviceVulkan
	DeviceMetalMacOS
	DeviceMetalIOS

	// DeviceCount is the number of device slots in every header.
	DeviceCount = 6
)

var deviceNames = [DeviceCount]string{
	"OpenGL",
	"Direct3D11",
	"Direct3D12",
	"Vulkan",
	"Metal_MacOS",
	"Metal_iOS",
}

// String returns the backend name.
func (d DeviceType) String() string {
	if d.Valid() {
		return deviceNames[d]
	}
	return fmt.Sprintf("DeviceType(%d)", uint32(d))
}

// Valid reports whether d names one of the supported backends.
func (d DeviceType) Valid() bool {
	return d < DeviceCount
}

// AllDevices returns every device type in slot order.
func AllDevices() []DeviceType {
	devs := make([]DeviceType, DeviceCount)
	for i := range devs {
		devs[i] = DeviceType(i)
	}
	return devs
}

// ParseDeviceType parses a backend name or one of its short aliases.
func ParseDeviceType(s string) (DeviceType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gl", "gles", "opengl":
		return DeviceOpenGL, nil
	case "d3d11", "direct3d11":
		return DeviceDirect3D11, nil
	case "d3d12", "direct3d12":
		return DeviceDirect3D12, nil
	case "vk", "vulkan":
		return DeviceVulkan, nil
	case "mtl-macos", "metal_macos", "metal-macos":
		return DeviceMetalMacOS, nil
	case "mtl-ios", "metal_ios", "metal-ios":
		return DeviceMetalIOS, nil
	}
	return 0, fmt.Errorf("unknown device type %q", s)
}

// BlockOffsetType indexes the per-device base-offset table in the archive
// header. It is kept apart from ChunkType so that device blocks can be added
// or removed without renumbering chunks.
type BlockOffsetType uint32

const (
	BlockOpenGL BlockOffsetType = iota
	BlockDirect3D11
	BlockDirect3D12
	BlockVulkan
	BlockMetalMacOS
	BlockMetalIOS

	// BlockCount is the number of base-offset slots.
	BlockCount = 6
)

// String returns the name of the device that owns the block.
func (b BlockOffsetType) String() string {
	return DeviceType(b).String()
}

// BlockOffsetTypeOf returns the base-offset slot holding dev's block.
func BlockOffsetTypeOf(dev DeviceType) BlockOffsetType {
	return BlockOffsetType(dev)
}

// ChunkType is the resource category stored in one chunk.
type ChunkType uint32

const (
	ChunkUndefined ChunkType = iota
	ChunkArchiveDebugInfo
	ChunkResourceSignature
	ChunkGraphicsPipelineStates
	ChunkComputePipelineStates
	ChunkRayTracingPipelineStates
	ChunkTilePipelineStates
	ChunkRenderPass
	ChunkShaders

	// ChunkCount is one past the last valid chunk type.
	ChunkCount
)

// String returns the resource name used in diagnostics.
func (c ChunkType) String() string {
	switch c {
	case ChunkUndefined:
		return "Undefined"
	case ChunkArchiveDebugInfo:
		return "Debug Info"
	case ChunkResourceSignature:
		return "Resource Signatures"
	case ChunkGraphicsPipelineStates:
		return "Graphics Pipelines"
	case ChunkComputePipelineStates:
		return "Compute Pipelines"
	case ChunkRayTracingPipelineStates:
		return "Ray-Tracing Pipelines"
	case ChunkTilePipelineStates:
		return "Tile Pipelines"
	case ChunkRenderPass:
		return "Render Passes"
	case ChunkShaders:
		return "Shaders"
	default:
		return fmt.Sprintf("ChunkType(%d)", uint32(c))
	}
}

// Valid reports whether c may appear in a stored chunk.
func (c ChunkType) Valid() bool {
	return c > ChunkUndefined && c < ChunkCount
}

// IsPipeline reports whether c is one of the pipeline-state categories.
func (c ChunkType) IsPipeline() bool {
	switch c {
	case ChunkGraphicsPipelineStates, ChunkComputePipelineStates,
		ChunkRayTracingPipelineStates, ChunkTilePipelineStates:
		return true
	}
	return false
}

// IsNamed reports whether chunks of type c hold a named-resource array.
func (c ChunkType) IsNamed() bool {
	return c == ChunkResourceSignature || c == ChunkRenderPass || c.IsPipeline()
}

// HasDeviceData reports whether resources of type c carry a DataHeader with
// per-device payloads. Render passes only carry a RenderPassHeader.
func (c ChunkType) HasDeviceData() bool {
	return c == ChunkResourceSignature || c == ChunkShaders || c.IsPipeline()
}

// NamedChunkTypes returns the categories indexed by name, in chunk order.
func NamedChunkTypes() []ChunkType {
	return []ChunkType{
		ChunkResourceSignature,
		ChunkGraphicsPipelineStates,
		ChunkComputePipelineStates,
		ChunkRayTracingPipelineStates,
		ChunkTilePipelineStates,
		ChunkRenderPass,
	}
}
