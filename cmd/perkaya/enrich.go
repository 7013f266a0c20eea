package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich <doc_id>",
	Short: "Run the enrichment phase: sketch then refine",
	Long:  "Generate first-pass sketches for the top plan items, refine the most confident ones, and write suggestions.json.",
	Args:  cobra.ExactArgs(1),
	RunE:  runEnrich,
}

func init() {
	rootCmd.AddCommand(enrichCmd)
}

func runEnrich(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.pipeline.Enrich(ctx, args[0]); err != nil {
		return err
	}
	fmt.Println("enrichment complete")
	return nil
}
