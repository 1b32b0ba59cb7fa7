package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-catalog-sync/fetcher"
	"github.com/aluiziolira/go-catalog-sync/models"
)

func newFetchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch [url...]",
		Short: "Download supplier feeds into the catalog directory",
		Long:  "Downloads each URL, or FEED_URLS when none are given, as a new catalog file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			urls := args
			if len(urls) == 0 {
				urls = a.cfg.FeedURLs
			}
			if len(urls) == 0 {
				return fmt.Errorf("no feed URLs given and FEED_URLS is empty")
			}

			f, err := fetcher.New(a.cfg, fetcher.WithLogger(a.logger))
			if err != nil {
				return err
			}
			result, err := f.Run(cmd.Context(), urls)
			if err != nil {
				return err
			}

			printFetch(cmd.OutOrStdout(), result)
			if len(result.FailedURLs) > 0 {
				return fmt.Errorf("%d of %d feeds failed", len(result.FailedURLs), len(urls))
			}
			return nil
		},
	}
}

func printFetch(w io.Writer, result *models.FetchResult) {
	fmt.Fprintln(w, separator)
	fmt.Fprintln(w, "Fetch complete")
	fmt.Fprintf(w, "  Files:         %d\n", len(result.Files))
	for _, file := range result.Files {
		fmt.Fprintf(w, "    %s\n", file)
	}
	fmt.Fprintf(w, "  Requests:      %d\n", result.RequestCount)
	fmt.Fprintf(w, "  Errors:        %d\n", result.ErrorCount)
	fmt.Fprintf(w, "  Retries:       %d\n", result.RetryCount)
	fmt.Fprintf(w, "  Failed URLs:   %d\n", len(result.FailedURLs))
	if len(result.ErrorsByType) > 0 {
		fmt.Fprintf(w, "  Error types:   %v\n", result.ErrorsByType)
	}
	fmt.Fprintf(w, "  Duration:      %v\n", result.EndTime.Sub(result.StartTime).Round(time.Millisecond))
	fmt.Fprintln(w, separator)
}
