package registry

import (
	"context"
	"encoding/json"
	"fmt"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2"
	"oras.land/oras-go/v2/content"

	"github.com/meigma/devarchive"
)

// Pull fetches the archive tagged or digested as ref from target and opens
// it from memory. The layer digest is verified while fetching.
func Pull(ctx context.Context, target oras.ReadOnlyTarget, ref string, opts ...devarchive.Option) (*devarchive.Archive, error) {
	_, layer, err := resolveLayer(ctx, target, ref)
	if err != nil {
		return nil, err
	}
	data, err := content.FetchAll(ctx, target, layer)
	if err != nil {
		return nil, fmt.Errorf("fetch archive layer: %w", mapError(err))
	}
	a, err := devarchive.Open(devarchive.NewMemorySource(data), opts...)
	if err != nil {
		return nil, fmt.Errorf("open pulled archive: %w", err)
	}
	return a, nil
}

// Resolve returns the manifest descriptor and the archive layer descriptor
// for ref without fetching the layer.
func Resolve(ctx context.Context, target oras.ReadOnlyTarget, ref string) (manifest, layer ocispec.Descriptor, err error) {
	return resolveLayer(ctx, target, ref)
}

func resolveLayer(ctx context.Context, target oras.ReadOnlyTarget, ref string) (ocispec.Descriptor, ocispec.Descriptor, error) {
	desc, err := target.Resolve(ctx, ref)
	if err != nil {
		return ocispec.Descriptor{}, ocispec.Descriptor{}, fmt.Errorf("resolve %q: %w", ref, mapError(err))
	}
	if desc.MediaType != "" && desc.MediaType != ocispec.MediaTypeImageManifest {
		return ocispec.Descriptor{}, ocispec.Descriptor{}, fmt.Errorf("%w: unsupported media type %s", ErrInvalidManifest, desc.MediaType)
	}

	raw, err := content.FetchAll(ctx, target, desc)
	if err != nil {
		return ocispec.Descriptor{}, ocispec.Descriptor{}, fmt.Errorf("fetch manifest: %w", mapError(err))
	}
	var manifest ocispec.Manifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return ocispec.Descriptor{}, ocispec.Descriptor{}, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if manifest.ArtifactType != ArtifactType {
		return ocispec.Descriptor{}, ocispec.Descriptor{}, fmt.Errorf("%w: artifact type %q", ErrInvalidManifest, manifest.ArtifactType)
	}

	for _, l := range manifest.Layers {
		if l.MediaType == MediaTypeArchive {
			return desc, l, nil
		}
	}
	return ocispec.Descriptor{}, ocispec.Descriptor{}, ErrMissingArchive
}
