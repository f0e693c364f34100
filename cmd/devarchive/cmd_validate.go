package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var cmdValidate = &cobra.Command{
	Use:   "validate ARCHIVE",
	Short: "Check an archive for structural errors",
	Long: `
The "validate" command checks every chunk, resource header and device
payload reference and prints each violation it finds.

EXIT STATUS
===========

Exit status is 0 if the archive is valid, and non-zero otherwise.
`,
	Args:              cobra.ExactArgs(1),
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(cmd, args[0])
	},
}

// errInvalidArchive is returned after validation problems were printed.
var errInvalidArchive = errors.New("archive is invalid")

func init() {
	cmdRoot.AddCommand(cmdValidate)
}

func runValidate(cmd *cobra.Command, ref string) error {
	a, err := openArchive(cmd.Context(), ref)
	if err != nil {
		return err
	}
	defer a.Close()

	err = a.Validate()
	if err == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", ref)
		return nil
	}

	problems := []error{err}
	if joined, ok := err.(interface{ Unwrap() []error }); ok { //nolint:errorlint // flattening a join
		problems = joined.Unwrap()
	}
	for _, p := range problems {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", ref, p)
	}
	return fmt.Errorf("%s: %w: %d problems", ref, errInvalidArchive, len(problems))
}
