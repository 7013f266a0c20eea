package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <doc_id>",
	Short: "Run the full pipeline for one document",
	Long:  "Run planner, enrichment, synthesis and (when a vector store is configured) upload for one document, end to end.",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.pipeline.RunDocument(ctx, args[0]); err != nil {
		return err
	}
	fmt.Println("pipeline complete")
	return nil
}
