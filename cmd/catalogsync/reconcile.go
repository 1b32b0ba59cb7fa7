package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-catalog-sync/models"
)

func newReconcileCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Import every catalog file not yet represented in the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			imp, cleanup, err := a.newImporter(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer cleanup()

			report := imp.Reconcile(cmd.Context())
			printReport(cmd.OutOrStdout(), report)
			if report.Err != nil {
				return fmt.Errorf("reconcile: %w", report.Err)
			}
			return nil
		},
	}
}

func printReport(w io.Writer, report models.ReconcileReport) {
	fmt.Fprintf(w, "Run %s: %d discovered, %d already imported, took %v\n",
		report.RunID, report.Discovered, report.AlreadyImported, report.EndTime.Sub(report.StartTime))
	printImports(w, "Reconcile complete", report.Imported, report.Failed)
}
