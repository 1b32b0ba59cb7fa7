package main

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-catalog-sync/models"
)

const separator = "--------------------------------------------------"

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file-name>...",
		Short: "Import named catalog files from the catalog directory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			imp, cleanup, err := a.newImporter(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer cleanup()

			var (
				results []models.ImportResult
				failed  = make(map[string]error)
			)
			for _, name := range args {
				result, err := imp.ImportFile(cmd.Context(), name)
				if err != nil {
					failed[result.File] = err
					continue
				}
				results = append(results, result)
			}

			printImports(cmd.OutOrStdout(), "Import complete", results, failed)
			if len(failed) > 0 {
				return fmt.Errorf("%d of %d catalog files failed: %w", len(failed), len(args), errSummary(failed))
			}
			return nil
		},
	}
}

func printImports(w io.Writer, title string, results []models.ImportResult, failed map[string]error) {
	var parsed, inserted, skipped int
	for _, r := range results {
		parsed += r.Parsed
		inserted += r.Inserted
		skipped += r.Skipped
	}

	fmt.Fprintln(w, separator)
	fmt.Fprintln(w, title)
	fmt.Fprintf(w, "  Files:         %d\n", len(results))
	fmt.Fprintf(w, "  Parsed:        %d\n", parsed)
	fmt.Fprintf(w, "  Inserted:      %d\n", inserted)
	fmt.Fprintf(w, "  Skipped:       %d\n", skipped)
	fmt.Fprintf(w, "  Failed files:  %d\n", len(failed))

	paths := make([]string, 0, len(failed))
	for path := range failed {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		fmt.Fprintf(w, "    %s: %v\n", path, failed[path])
	}
	fmt.Fprintln(w, separator)
}

// errSummary joins per-file errors for commands that exit non-zero.
func errSummary(failed map[string]error) error {
	errs := make([]error, 0, len(failed))
	for path, err := range failed {
		errs = append(errs, fmt.Errorf("%s: %w", path, err))
	}
	return errors.Join(errs...)
}
