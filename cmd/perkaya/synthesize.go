package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var synthesizeCmd = &cobra.Command{
	Use:   "synthesize <doc_id>",
	Short: "Rebuild the enriched Markdown with anchored footnotes",
	Long:  "Rebuild markdown_v2.md from markdown_v1.md and the current suggestions, anchoring footnote markers at safe sentence ends. The rebuild is idempotent.",
	Args:  cobra.ExactArgs(1),
	RunE:  runSynthesize,
}

var synthApprovedOnly bool

func init() {
	synthesizeCmd.Flags().BoolVar(&synthApprovedOnly, "approved-only", false, "Only anchor suggestions with approved review status")
	rootCmd.AddCommand(synthesizeCmd)
}

func runSynthesize(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()

	if synthApprovedOnly {
		a.cfg.Synthesis.ApprovedOnly = true
	}
	report, err := a.pipeline.Synthesize(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("synthesis complete: %d inserted, %d in appendix, %d bytes\n",
		report.Inserted, report.Appendix, report.OutputBytes)
	return nil
}
