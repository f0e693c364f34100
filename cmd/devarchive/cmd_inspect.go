package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/meigma/devarchive"
)

var cmdInspect = &cobra.Command{
	Use:   "inspect ARCHIVE",
	Short: "Show the chunks, resources and device blocks of an archive",
	Long: `
The "inspect" command prints the chunk table, the number of resources per
category and, for each device block, its size, shader count and digest.

With --verbose every named resource and its region is listed as well.
`,
	Args:              cobra.ExactArgs(1),
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInspect(cmd, args[0], inspectOptions)
	},
}

// InspectOptions bundles all options for the inspect command.
type InspectOptions struct {
	JSON    bool
	Verbose bool
}

var inspectOptions InspectOptions

func init() {
	cmdRoot.AddCommand(cmdInspect)

	f := cmdInspect.Flags()
	f.BoolVar(&inspectOptions.JSON, "json", false, "print the description as JSON")
	f.BoolVarP(&inspectOptions.Verbose, "verbose", "v", false, "list every named resource")
}

func runInspect(cmd *cobra.Command, ref string, opts InspectOptions) error {
	a, err := openArchive(cmd.Context(), ref)
	if err != nil {
		return err
	}
	defer a.Close()

	if opts.Verbose && !opts.JSON {
		_, err := io.WriteString(cmd.OutOrStdout(), a.String())
		return err
	}

	desc, err := a.Describe()
	if err != nil {
		return err
	}
	if opts.JSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(desc)
	}
	printDescription(cmd.OutOrStdout(), &desc)
	return nil
}

func printDescription(w io.Writer, d *devarchive.Description) {
	fmt.Fprintf(w, "%s (%s)\n", d.Source, humanize.IBytes(uint64(d.Size))) //nolint:gosec // size is non-negative

	fmt.Fprintln(w, "chunks:")
	for _, c := range d.Chunks {
		fmt.Fprintf(w, "  %-22s %10s", c.Type, humanize.IBytes(uint64(c.Size)))
		if c.Resources > 0 {
			fmt.Fprintf(w, "  %d resources", c.Resources)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "devices:")
	if len(d.Devices) == 0 {
		fmt.Fprintln(w, "  none")
	}
	for _, dev := range d.Devices {
		fmt.Fprintf(w, "  %-12s %10s  %s shaders  %s\n",
			dev.Device, humanize.IBytes(uint64(dev.Size)), humanize.Comma(int64(dev.Shaders)), dev.Digest)
	}

	if d.DebugInfo != nil {
		fmt.Fprintf(w, "api version %d, commit %s\n", d.DebugInfo.APIVersion, d.DebugInfo.GitHash)
	}
}
