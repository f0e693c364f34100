package registry

// Media types for device object archives in OCI registries.
const (
	// ArtifactType identifies device object archives as an OCI 1.1 artifact type.
	ArtifactType = "application/vnd.meigma.devarchive.v2"

	// MediaTypeArchive is the media type of the layer holding the archive bytes.
	MediaTypeArchive = "application/vnd.meigma.devarchive.layer.v2"
)

// Annotation keys set on pushed manifests.
const (
	// AnnotationDevices lists the backends present in the archive, comma separated.
	AnnotationDevices = "dev.meigma.devarchive.devices"

	// AnnotationAPIVersion carries the engine API version from the debug chunk.
	AnnotationAPIVersion = "dev.meigma.devarchive.api-version"

	// AnnotationCommit carries the engine commit hash from the debug chunk.
	AnnotationCommit = "dev.meigma.devarchive.commit"
)
