package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var cmdShaders = &cobra.Command{
	Use:               "shaders ARCHIVE --device DEVICE",
	Short:             "List the shaders stored for one backend",
	Args:              cobra.ExactArgs(1),
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runShaders(cmd, args[0], shadersOptions)
	},
}

// ShadersOptions bundles all options for the shaders command.
type ShadersOptions struct {
	Device string
}

var shadersOptions ShadersOptions

func init() {
	cmdRoot.AddCommand(cmdShaders)

	f := cmdShaders.Flags()
	f.StringVar(&shadersOptions.Device, "device", "", "backend whose shaders to list")
}

func runShaders(cmd *cobra.Command, ref string, opts ShadersOptions) error {
	dev, err := parseDevice(opts.Device)
	if err != nil {
		return err
	}

	a, err := openArchive(cmd.Context(), ref)
	if err != nil {
		return err
	}
	defer a.Close()

	regions, err := a.ShaderRegions(dev)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	var total uint64
	for i, r := range regions {
		fmt.Fprintf(w, "%5d  offset %-10d %10s\n", i, r.Offset, humanize.IBytes(uint64(r.Size)))
		total += uint64(r.Size)
	}
	fmt.Fprintf(w, "%d shaders, %s\n", len(regions), humanize.IBytes(total))
	return nil
}
