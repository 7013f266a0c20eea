package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var batchCmd = &cobra.Command{
	Use:   "batch <doc_id> [doc_id...]",
	Short: "Run the pipeline across many documents",
	Long:  "Process multiple documents concurrently under the configured file cap, overlapping enrichment with vector upload. High CPU pressure degrades the run to sequential.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	report, err := a.pipeline.RunMany(ctx, args)
	if err != nil {
		return err
	}
	fmt.Printf("batch %s: %d completed, %d failed in %s (avg %s/file)\n",
		report.RunID, report.Completed, report.Failed,
		report.TotalDuration.Round(time.Millisecond), report.AvgPerFile.Round(time.Millisecond))
	for _, st := range report.Files {
		if st.State == "failed" {
			fmt.Printf("  %s: %s\n", st.DocID, st.Error)
		}
	}
	if report.Failed > 0 {
		return fmt.Errorf("%d documents failed", report.Failed)
	}
	return nil
}
