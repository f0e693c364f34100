package devarchive

import (
	"log/slog"
	"os"

	"github.com/klauspost/compress/zstd"
)

// DefaultMaxDecodedSize bounds the in-memory size of a compressed archive (1GB).
const DefaultMaxDecodedSize = 1 << 30

type config struct {
	logger         *slog.Logger
	shaderHook     func(DeviceType)
	validateOnOpen bool
	maxDecodedSize uint64
}

func newConfig(opts []Option) *config {
	cfg := &config{maxDecodedSize: DefaultMaxDecodedSize}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Option configures an Archive.
type Option func(*config)

// WithLogger sets the logger used for debug events. A nil logger discards them.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithShaderRegionHook registers fn to be called each time the shader
// regions of a device are computed (not when they are served from cache).
func WithShaderRegionHook(fn func(DeviceType)) Option {
	return func(c *config) {
		c.shaderHook = fn
	}
}

// WithValidateOnOpen runs Validate after the archive is loaded and fails
// Open if any invariant is violated.
func WithValidateOnOpen(enabled bool) Option {
	return func(c *config) {
		c.validateOnOpen = enabled
	}
}

// WithMaxDecodedSize limits the decompressed size of archives opened by
// OpenFile. Set limit to 0 to disable the limit.
func WithMaxDecodedSize(limit uint64) Option {
	return func(c *config) {
		c.maxDecodedSize = limit
	}
}

// WriteOption configures WriteFile.
type WriteOption func(*writeConfig)

type writeConfig struct {
	compress bool
	level    zstd.EncoderLevel
	mode     os.FileMode
}

// WriteWithCompression compresses the written archive with zstd at level.
// OpenFile detects and decodes such files transparently.
func WriteWithCompression(level zstd.EncoderLevel) WriteOption {
	return func(c *writeConfig) {
		c.compress = true
		c.level = level
	}
}

// WriteWithMode sets the permission bits of the written file (default 0o644).
func WriteWithMode(mode os.FileMode) WriteOption {
	return func(c *writeConfig) {
		c.mode = mode
	}
}
