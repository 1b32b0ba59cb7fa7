package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-catalog-sync/export"
)

func newExportCmd(a *app) *cobra.Command {
	var (
		output  string
		format  string
		workers int
	)

	cmd := &cobra.Command{
		Use:   "export <file>...",
		Short: "Parse catalog files into CSV or JSON lines without touching the store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			writer, err := export.NewWriter(format, output)
			if err != nil {
				return err
			}

			start := time.Now()
			e := export.New(a.newParser().ParseFile, writer,
				export.WithWorkers(workers),
				export.WithLogger(a.logger),
			)
			defer func() {
				if cerr := e.Close(); cerr != nil && err == nil {
					err = cerr
				}
				if err == nil {
					printExport(cmd.OutOrStdout(), e.Stats(), output, time.Since(start))
				}
			}()

			return e.Export(cmd.Context(), args...)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "products.csv", "output file path")
	cmd.Flags().StringVar(&format, "format", "csv", "output format: csv, json, or dual")
	cmd.Flags().IntVar(&workers, "workers", 1, "catalog files parsed ahead of the writer")
	return cmd
}

func printExport(w io.Writer, stats export.Stats, output string, duration time.Duration) {
	fmt.Fprintln(w, separator)
	fmt.Fprintln(w, "Export complete")
	fmt.Fprintf(w, "  Files:         %d\n", stats.Files)
	fmt.Fprintf(w, "  Products:      %d\n", stats.Written)
	fmt.Fprintf(w, "  Duplicates:    %d\n", len(stats.Duplicates))
	for _, d := range stats.Duplicates {
		fmt.Fprintf(w, "    %s in %s (first in %s)\n", d.StockCode, d.File, d.FirstFile)
	}
	fmt.Fprintf(w, "  Duration:      %v\n", duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  Output file:   %s\n", output)
	fmt.Fprintln(w, separator)
}
