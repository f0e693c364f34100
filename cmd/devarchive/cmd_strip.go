package main

import (
	"github.com/spf13/cobra"
)

var cmdStrip = &cobra.Command{
	Use:   "strip ARCHIVE --device DEVICE -o OUTPUT",
	Short: "Remove one backend's data from an archive",
	Long: `
The "strip" command removes every payload of one backend from an archive
and writes the result. Resources stay in the archive with their payloads
for the other backends.
`,
	Args:              cobra.ExactArgs(1),
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStrip(cmd, args[0], stripOptions)
	},
}

// StripOptions bundles all options for the strip command.
type StripOptions struct {
	Device string
	Output string
}

var stripOptions StripOptions

func init() {
	cmdRoot.AddCommand(cmdStrip)

	f := cmdStrip.Flags()
	f.StringVar(&stripOptions.Device, "device", "", "backend to remove, e.g. vulkan, d3d12, mtl-ios")
	f.StringVarP(&stripOptions.Output, "output", "o", "", "output file")
}

func runStrip(cmd *cobra.Command, ref string, opts StripOptions) error {
	dev, err := parseDevice(opts.Device)
	if err != nil {
		return err
	}
	if opts.Output == "" {
		return errMissingOutput
	}

	a, err := openArchive(cmd.Context(), ref)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.RemoveDeviceData(dev); err != nil {
		return err
	}
	if err := writeArchive(a.Archive, opts.Output); err != nil {
		return err
	}
	globalOptions.logger.Info("stripped device data", "device", dev, "output", opts.Output)
	return nil
}
