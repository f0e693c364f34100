// Command devarchive inspects, validates and edits device object archives.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/meigma/devarchive/cache"
	"github.com/meigma/devarchive/internal/config"
)

var version = "2.0.0"

// cmdRoot is the base command when no other command has been specified.
var cmdRoot = &cobra.Command{
	Use:   "devarchive",
	Short: "Inspect and edit device object archives",
	Long: `
devarchive works with device object archives: precompiled resource
signatures, pipeline states, render passes and shader bytecode for several
graphics backends in a single file.

Archives are named by a local path, an http(s) URL read with range requests,
or an oci:// reference to an OCI registry.
`,
	Version:           version,
	SilenceErrors:     true,
	SilenceUsage:      true,
	DisableAutoGenTag: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return globalOptions.setup(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// GlobalOptions holds flags shared by every command and the state derived
// from them.
type GlobalOptions struct {
	ConfigPath string
	LogLevel   string

	cfg    *config.Config
	logger *slog.Logger
	cache  *cache.BlockCache
}

var globalOptions GlobalOptions

func init() {
	f := cmdRoot.PersistentFlags()
	f.StringVar(&globalOptions.ConfigPath, "config", "", "YAML config file (default $"+config.EnvVar+")")
	f.StringVar(&globalOptions.LogLevel, "log-level", "", "log level: debug, info, warn or error")
}

func (o *GlobalOptions) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return err
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	logger, err := cfg.NewLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	o.cfg = cfg
	o.logger = logger

	if cfg.Cache.Dir != "" {
		o.cache, err = cache.New(cfg.Cache.Dir,
			cache.WithMaxBytes(cfg.Cache.MaxBytes),
			cache.WithBlockSize(cfg.Cache.BlockSize),
		)
		if err != nil {
			return fmt.Errorf("open cache: %w", err)
		}
	}
	return nil
}

func main() {
	if err := cmdRoot.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
