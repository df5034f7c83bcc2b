package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"xdao.co/memhub/storage/bundle"
)

func newExportCmd(g *globals) *cobra.Command {
	var (
		outPath     string
		noIndex     bool
		skipMissing bool
	)
	cmd := &cobra.Command{
		Use:   "export <key>...",
		Short: "Write the values of keys to a deterministic TAR bundle",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, closeFn, err := g.openHub(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			var w io.Writer = g.out
			if outPath != "" && outPath != "-" {
				f, err := os.Create(outPath)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return bundle.Export(cmd.Context(), w, h, args, bundle.ExportOptions{
				IncludeIndex: !noIndex,
				SkipMissing:  skipMissing,
			})
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "-", "Bundle output path (- for stdout)")
	cmd.Flags().BoolVar(&noIndex, "no-index", false, "Omit index.json digests")
	cmd.Flags().BoolVar(&skipMissing, "skip-missing", false, "Leave out keys no backend holds")
	return cmd
}

func newImportCmd(g *globals) *cobra.Command {
	var ignoreUnknown bool
	cmd := &cobra.Command{
		Use:   "import [bundle|-]",
		Short: "Write every value of a TAR bundle to all backends",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = g.in
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			h, closeFn, err := g.openHub(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			n, err := bundle.Import(cmd.Context(), r, h, bundle.ImportOptions{IgnoreUnknown: ignoreUnknown})
			if err != nil {
				return err
			}
			fmt.Fprintf(g.out, "Imported %d values\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&ignoreUnknown, "ignore-unknown", false, "Skip unrecognized bundle entries")
	return cmd
}
