// Package config loads the devarchive command's configuration.
//
// Configuration comes from a single YAML file named by the --config flag or
// the DEVARCHIVE_CONFIG environment variable. There is no discovery: with
// neither set, the defaults apply. Flags given on the command line override
// values from the file.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable holding the config file path.
const EnvVar = "DEVARCHIVE_CONFIG"

// Config is the devarchive command configuration.
type Config struct {
	// Log configures diagnostic output on stderr.
	Log LogConfig `yaml:"log"`

	// Output configures archives written by strip and merge.
	Output OutputConfig `yaml:"output"`

	// HTTP configures archives opened from http:// and https:// URLs.
	HTTP HTTPConfig `yaml:"http"`

	// Registry configures push, pull and oci:// archive references.
	Registry RegistryConfig `yaml:"registry"`

	// Cache configures the disk block cache for remote archives.
	Cache CacheConfig `yaml:"cache"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Default: warn
	Level string `yaml:"level"`

	// Format is text or json. Default: text
	Format string `yaml:"format"`
}

// OutputConfig configures written archives.
type OutputConfig struct {
	// Compression is none, fastest, default, better or best. Default: none
	Compression string `yaml:"compression"`

	// Mode is the permission of written files. Default: 0644
	Mode os.FileMode `yaml:"mode"`
}

// HTTPConfig configures remote archive reads.
type HTTPConfig struct {
	// Headers are added to every request, e.g. Authorization.
	Headers map[string]string `yaml:"headers"`

	// Conditional pins range reads to the probed ETag.
	Conditional bool `yaml:"conditional"`
}

// RegistryConfig configures OCI registry access.
type RegistryConfig struct {
	// PlainHTTP talks to the registry without TLS.
	PlainHTTP bool `yaml:"plain_http"`

	// DockerConfig reads credentials from the Docker config file.
	DockerConfig bool `yaml:"docker_config"`

	// UserAgent overrides the User-Agent header.
	UserAgent string `yaml:"user_agent"`
}

// CacheConfig configures the block cache. An empty Dir disables it.
type CacheConfig struct {
	Dir string `yaml:"dir"`

	// MaxBytes caps the cache size; 0 means unlimited.
	MaxBytes int64 `yaml:"max_bytes"`

	// BlockSize is the size of cached blocks. Default: 65536
	BlockSize int64 `yaml:"block_size"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Log:    LogConfig{Level: "warn", Format: "text"},
		Output: OutputConfig{Compression: "none", Mode: 0o644},
		Cache:  CacheConfig{BlockSize: 64 << 10},
	}
}

// Load loads the file named by path, or by DEVARCHIVE_CONFIG when path is
// empty. With neither set it returns Default().
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvVar)
	}
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile loads and validates configuration from path. Unknown keys are
// rejected.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path) //nolint:gosec // User-provided path is intentional
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg := Default()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every invalid value.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	if _, _, err := c.Compression(); err != nil {
		errs = append(errs, err)
	}
	if c.Output.Mode&^os.ModePerm != 0 {
		errs = append(errs, fmt.Errorf("output.mode %o has bits outside the permission mask", c.Output.Mode))
	}
	if c.Cache.MaxBytes < 0 {
		errs = append(errs, fmt.Errorf("cache.max_bytes must be >= 0, got %d", c.Cache.MaxBytes))
	}
	if c.Cache.BlockSize <= 0 {
		errs = append(errs, fmt.Errorf("cache.block_size must be > 0, got %d", c.Cache.BlockSize))
	}
	return errors.Join(errs...)
}

// SlogLevel parses Log.Level.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// NewLogger returns a logger writing to w in the configured format.
func (c *Config) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := c.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// Compression parses Output.Compression. enabled is false for "none".
func (c *Config) Compression() (level zstd.EncoderLevel, enabled bool, err error) {
	name := strings.ToLower(strings.TrimSpace(c.Output.Compression))
	if name == "" || name == "none" {
		return 0, false, nil
	}
	ok, level := zstd.EncoderLevelFromString(name)
	if !ok {
		return 0, false, fmt.Errorf("output.compression must be none, fastest, default, better or best, got %q", c.Output.Compression)
	}
	return level, true, nil
}
