package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/syssam/tabula/compiler/gen"
)

func newGenCmd(a *app) *cobra.Command {
	var (
		pkg     string
		workers int
	)
	cmd := &cobra.Command{
		Use:         "gen <dir>",
		Short:       "Generate typed Go wrappers of the models",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{offline: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.registry()
			if err != nil {
				return err
			}
			if pkg == "" {
				pkg = filepath.Base(args[0])
			}
			g, err := gen.New(reg, gen.Config{Package: pkg, Target: args[0], Workers: workers})
			if err != nil {
				return err
			}
			m, err := g.Generate(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "generated %d files (%d bytes) in %s\n", m.FilesGenerated, m.TotalBytes, args[0])
			return nil
		},
	}
	cmd.Flags().StringVarP(&pkg, "package", "p", "", "package name (default: base name of dir)")
	cmd.Flags().IntVar(&workers, "workers", 0, "parallel file writers (default: GOMAXPROCS)")
	return cmd
}
