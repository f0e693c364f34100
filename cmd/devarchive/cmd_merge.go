package main

import (
	"github.com/spf13/cobra"
)

var cmdMerge = &cobra.Command{
	Use:   "merge ARCHIVE SOURCE --device DEVICE -o OUTPUT",
	Short: "Copy one backend's data from another archive",
	Long: `
The "merge" command copies every payload of one backend from SOURCE into
ARCHIVE and writes the result. Both archives must hold the same resources;
ARCHIVE must not already have data for the backend.
`,
	Args:              cobra.ExactArgs(2),
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMerge(cmd, args[0], args[1], mergeOptions)
	},
}

// MergeOptions bundles all options for the merge command.
type MergeOptions struct {
	Device string
	Output string
}

var mergeOptions MergeOptions

func init() {
	cmdRoot.AddCommand(cmdMerge)

	f := cmdMerge.Flags()
	f.StringVar(&mergeOptions.Device, "device", "", "backend to copy, e.g. vulkan, d3d12, mtl-ios")
	f.StringVarP(&mergeOptions.Output, "output", "o", "", "output file")
}

func runMerge(cmd *cobra.Command, dstRef, srcRef string, opts MergeOptions) error {
	dev, err := parseDevice(opts.Device)
	if err != nil {
		return err
	}
	if opts.Output == "" {
		return errMissingOutput
	}

	dst, err := openArchive(cmd.Context(), dstRef)
	if err != nil {
		return err
	}
	defer dst.Close()

	src, err := openArchive(cmd.Context(), srcRef)
	if err != nil {
		return err
	}
	defer src.Close()

	if err := dst.AppendDeviceData(src.Archive, dev); err != nil {
		return err
	}
	if err := writeArchive(dst.Archive, opts.Output); err != nil {
		return err
	}
	globalOptions.logger.Info("merged device data", "device", dev, "source", srcRef, "output", opts.Output)
	return nil
}
