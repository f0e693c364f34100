package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/meigma/devarchive"
)

var cmdPull = &cobra.Command{
	Use:   "pull REFERENCE -o OUTPUT",
	Short: "Download an archive from an OCI registry",
	Long: `
The "pull" command downloads an archive pushed with "push", validates it and
writes it to OUTPUT using the configured output compression.
`,
	Args:              cobra.ExactArgs(1),
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPull(cmd, args[0], pullOptions)
	},
}

// PullOptions bundles all options for the pull command.
type PullOptions struct {
	Output string
}

var pullOptions PullOptions

func init() {
	cmdRoot.AddCommand(cmdPull)

	f := cmdPull.Flags()
	f.StringVarP(&pullOptions.Output, "output", "o", "", "output file")
}

func runPull(cmd *cobra.Command, ref string, opts PullOptions) error {
	if opts.Output == "" {
		return errMissingOutput
	}
	a, err := newRegistryClient().Pull(cmd.Context(), strings.TrimPrefix(ref, ociScheme),
		devarchive.WithLogger(globalOptions.logger),
		devarchive.WithValidateOnOpen(true),
	)
	if err != nil {
		return err
	}
	return writeArchive(a, opts.Output)
}
