package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/meigma/devarchive"
	archttp "github.com/meigma/devarchive/http"
	"github.com/meigma/devarchive/registry"
)

const ociScheme = "oci://"

var (
	errMissingDevice = errors.New("--device is required")
	errMissingOutput = errors.New("--output is required")
)

// openedArchive is an archive and the function releasing its source.
type openedArchive struct {
	*devarchive.Archive
	close func() error
}

func (o *openedArchive) Close() error {
	if o.close == nil {
		return nil
	}
	return o.close()
}

// openArchive opens a local path, an http(s) URL or an oci:// reference.
func openArchive(ctx context.Context, ref string, opts ...devarchive.Option) (*openedArchive, error) {
	opts = append([]devarchive.Option{devarchive.WithLogger(globalOptions.logger)}, opts...)

	switch {
	case strings.HasPrefix(ref, ociScheme):
		a, err := newRegistryClient().OpenRemote(ctx, strings.TrimPrefix(ref, ociScheme), opts...)
		if err != nil {
			return nil, err
		}
		return &openedArchive{Archive: a}, nil

	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		httpSrc, err := archttp.NewSource(ctx, ref, httpSourceOptions()...)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", ref, err)
		}
		src, err := wrapSource(httpSrc)
		if err != nil {
			return nil, err
		}
		a, err := devarchive.Open(src, opts...)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", ref, err)
		}
		return &openedArchive{Archive: a}, nil

	default:
		af, err := devarchive.OpenFile(ref, opts...)
		if err != nil {
			return nil, err
		}
		return &openedArchive{Archive: af.Archive, close: af.Close}, nil
	}
}

func httpSourceOptions() []archttp.Option {
	cfg := globalOptions.cfg.HTTP
	opts := []archttp.Option{
		archttp.WithClient(http.DefaultClient),
		archttp.WithLogger(globalOptions.logger),
	}
	for k, v := range cfg.Headers {
		opts = append(opts, archttp.WithHeader(k, v))
	}
	if cfg.Conditional {
		opts = append(opts, archttp.WithConditionalHeaders())
	}
	return opts
}

func newRegistryClient() *registry.Client {
	cfg := globalOptions.cfg.Registry
	opts := []registry.Option{
		registry.WithPlainHTTP(cfg.PlainHTTP),
		registry.WithUserAgent(cfg.UserAgent),
		registry.WithLogger(globalOptions.logger),
	}
	if cfg.DockerConfig {
		opts = append(opts, registry.WithDockerConfig())
	}
	if globalOptions.cache != nil {
		opts = append(opts, registry.WithSourceWrapper(wrapSource))
	}
	return registry.New(opts...)
}

// wrapSource reads src through the block cache when one is configured.
func wrapSource(src devarchive.ByteSource) (devarchive.ByteSource, error) {
	if globalOptions.cache == nil {
		return src, nil
	}
	return globalOptions.cache.Wrap(src)
}

// writeArchive writes a to path using the configured output settings.
func writeArchive(a *devarchive.Archive, path string) error {
	cfg := globalOptions.cfg
	opts := []devarchive.WriteOption{devarchive.WriteWithMode(cfg.Output.Mode)}
	level, compress, err := cfg.Compression()
	if err != nil {
		return err
	}
	if compress {
		opts = append(opts, devarchive.WriteWithCompression(level))
	}
	return a.WriteFile(path, opts...)
}

func parseDevice(name string) (devarchive.DeviceType, error) {
	if name == "" {
		return 0, errMissingDevice
	}
	return devarchive.ParseDeviceType(name)
}
