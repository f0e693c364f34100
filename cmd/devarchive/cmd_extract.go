package main

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/meigma/devarchive"
)

var cmdExtract = &cobra.Command{
	Use:   "extract ARCHIVE --device DEVICE -o DIR",
	Short: "Write one backend's payloads to a directory",
	Long: `
The "extract" command writes the payload of every resource and shader that
has data for one backend. Each category gets a subdirectory; resources are
named after their escaped resource name, shaders after their index:

  DIR/graphics-pipelines/Opaque.bin
  DIR/shaders/0.bin
`,
	Args:              cobra.ExactArgs(1),
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExtract(cmd, args[0], extractOptions)
	},
}

// ExtractOptions bundles all options for the extract command.
type ExtractOptions struct {
	Device      string
	Output      string
	Concurrency int
}

var extractOptions ExtractOptions

func init() {
	cmdRoot.AddCommand(cmdExtract)

	f := cmdExtract.Flags()
	f.StringVar(&extractOptions.Device, "device", "", "backend whose payloads to write")
	f.StringVarP(&extractOptions.Output, "output", "o", "", "output directory")
	f.IntVar(&extractOptions.Concurrency, "concurrency", runtime.GOMAXPROCS(0), "number of payloads read at once")
}

func categoryDir(c devarchive.ChunkType) string {
	return strings.ReplaceAll(strings.ToLower(c.String()), " ", "-")
}

func runExtract(cmd *cobra.Command, ref string, opts ExtractOptions) error {
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

	var files, written atomic.Uint64
	write := func(dir, name string, data []byte) error {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil { //nolint:gosec // extracted payloads are not secrets
			return err
		}
		files.Add(1)
		written.Add(uint64(len(data)))
		return nil
	}

	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(max(opts.Concurrency, 1))

	for _, category := range a.Resources().Categories() {
		if !category.HasDeviceData() {
			continue
		}
		dir := filepath.Join(opts.Output, categoryDir(category))
		for _, name := range a.Resources().Names(category) {
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				res, err := devarchive.LoadResource[devarchive.DataHeader](a.Archive, category, name, nil)
				if err != nil {
					return err
				}
				data, ok, err := a.GetDeviceSpecificData(dev, &res.Header, category)
				if err != nil || !ok {
					return err
				}
				return write(dir, url.PathEscape(name)+".bin", data)
			})
		}
	}

	regions, err := a.ShaderRegions(dev)
	if err != nil {
		return err
	}
	dir := filepath.Join(opts.Output, categoryDir(devarchive.ChunkShaders))
	for i := range regions {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := a.LoadShader(dev, i)
			if err != nil {
				return err
			}
			return write(dir, fmt.Sprintf("%d.bin", i), data)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d %s payloads (%s) to %s\n",
		files.Load(), dev, humanize.IBytes(written.Load()), opts.Output)
	return nil
}
