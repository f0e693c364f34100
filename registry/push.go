package registry

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"strconv"
	"strings"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2"
	"oras.land/oras-go/v2/content"

	"github.com/meigma/devarchive"
)

// PushOption configures Push.
type PushOption func(*pushConfig)

type pushConfig struct {
	tags        []string
	annotations map[string]string
}

// WithTags applies additional tags to the pushed manifest.
func WithTags(tags ...string) PushOption {
	return func(c *pushConfig) {
		c.tags = append(c.tags, tags...)
	}
}

// WithAnnotations adds custom annotations to the manifest. They override the
// annotations derived from the archive.
func WithAnnotations(annotations map[string]string) PushOption {
	return func(c *pushConfig) {
		if c.annotations == nil {
			c.annotations = make(map[string]string, len(annotations))
		}
		maps.Copy(c.annotations, annotations)
	}
}

// Push serializes a and stores it in target as a single-layer artifact
// manifest tagged with tag. The archive layer is only uploaded when the
// target does not already hold it.
func Push(ctx context.Context, target oras.Target, tag string, a *devarchive.Archive, opts ...PushOption) (ocispec.Descriptor, error) {
	if tag == "" {
		return ocispec.Descriptor{}, fmt.Errorf("%w: reference must include a tag", ErrInvalidReference)
	}
	cfg := pushConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	data, err := a.Bytes()
	if err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("serialize archive: %w", err)
	}

	layer := content.NewDescriptorFromBytes(MediaTypeArchive, data)
	exists, err := target.Exists(ctx, layer)
	if err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("check archive layer: %w", mapError(err))
	}
	if !exists {
		if err := target.Push(ctx, layer, bytes.NewReader(data)); err != nil {
			return ocispec.Descriptor{}, fmt.Errorf("push archive layer: %w", mapError(err))
		}
	}

	annotations := archiveAnnotations(a)
	maps.Copy(annotations, cfg.annotations)

	manifestDesc, err := oras.PackManifest(ctx, target, oras.PackManifestVersion1_1, ArtifactType, oras.PackManifestOptions{
		Layers:              []ocispec.Descriptor{layer},
		ManifestAnnotations: annotations,
	})
	if err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("push manifest: %w", mapError(err))
	}

	for _, t := range append([]string{tag}, cfg.tags...) {
		if err := target.Tag(ctx, manifestDesc, t); err != nil {
			return ocispec.Descriptor{}, fmt.Errorf("tag %q: %w", t, mapError(err))
		}
	}
	return manifestDesc, nil
}

func archiveAnnotations(a *devarchive.Archive) map[string]string {
	annotations := make(map[string]string)
	devs := a.Devices()
	if len(devs) > 0 {
		names := make([]string, len(devs))
		for i, dev := range devs {
			names[i] = dev.String()
		}
		annotations[AnnotationDevices] = strings.Join(names, ",")
	}
	if info, ok := a.DebugInfo(); ok {
		annotations[AnnotationAPIVersion] = strconv.FormatUint(uint64(info.APIVersion), 10)
		if info.GitHash != "" {
			annotations[AnnotationCommit] = info.GitHash
		}
	}
	return annotations
}
