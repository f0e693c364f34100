package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/meigma/devarchive/registry"
)

var cmdPush = &cobra.Command{
	Use:   "push ARCHIVE REFERENCE",
	Short: "Push an archive to an OCI registry",
	Long: `
The "push" command stores an archive in an OCI registry as a single-layer
artifact. REFERENCE names a tag, with or without the oci:// prefix:

  devarchive push shaders.bin registry.example.com/game/shaders:v1
`,
	Args:              cobra.ExactArgs(2),
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPush(cmd, args[0], args[1], pushOptions)
	},
}

// PushOptions bundles all options for the push command.
type PushOptions struct {
	Tags        []string
	Annotations map[string]string
}

var pushOptions PushOptions

func init() {
	cmdRoot.AddCommand(cmdPush)

	f := cmdPush.Flags()
	f.StringSliceVarP(&pushOptions.Tags, "tag", "t", nil, "additional tags for the manifest")
	f.StringToStringVar(&pushOptions.Annotations, "annotation", nil, "manifest annotation, key=value")
}

func runPush(cmd *cobra.Command, path, ref string, opts PushOptions) error {
	a, err := openArchive(cmd.Context(), path)
	if err != nil {
		return err
	}
	defer a.Close()

	var pushOpts []registry.PushOption
	if len(opts.Tags) > 0 {
		pushOpts = append(pushOpts, registry.WithTags(opts.Tags...))
	}
	if len(opts.Annotations) > 0 {
		pushOpts = append(pushOpts, registry.WithAnnotations(opts.Annotations))
	}

	desc, err := newRegistryClient().Push(cmd.Context(), strings.TrimPrefix(ref, ociScheme), a.Archive, pushOpts...)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s@%s\n", strings.TrimPrefix(ref, ociScheme), desc.Digest)
	return nil
}
