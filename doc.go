// Package devarchive reads, validates, patches and writes device object
// archives: single files that pack precompiled graphics pipeline artifacts
// (resource signatures, pipeline states, render passes and shader bytecode)
// for several hardware backends.
//
// An archive holds a fixed header, a chunk table with one chunk per resource
// category, a named-resource table per chunk, and one data block per backend
// (OpenGL, Direct3D11, Direct3D12, Vulkan, Metal for macOS and iOS). Each
// resource starts with a data header mapping every backend to an (offset,
// size) payload inside that backend's block.
//
// # Quick Start
//
// Open an archive and read a pipeline's Vulkan payload:
//
//	af, err := devarchive.OpenFile("pipelines.bin")
//	if err != nil {
//	    return err
//	}
//	defer af.Close()
//
//	pso, err := af.LoadPipeline(devarchive.ChunkGraphicsPipelineStates, "PSO_A", nil)
//	if err != nil {
//	    return err
//	}
//	data, ok, err := af.GetDeviceSpecificData(devarchive.DeviceVulkan, &pso.Header,
//	    devarchive.ChunkGraphicsPipelineStates)
//
// Only the header, chunk table and resource index are read by Open. Device
// payloads are read on demand from the [ByteSource], which may be a file, a
// byte slice or a remote object (see the http subpackage).
//
// # Patching
//
// [Archive.RemoveDeviceData] strips one backend and [Archive.AppendDeviceData]
// copies one backend from another archive with the same resources. Both
// operate in memory; [Archive.Serialize] writes the result in canonical
// layout.
package devarchive
