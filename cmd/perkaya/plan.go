package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan <doc_id>",
	Short: "Run the planner phase: gating, skim and reduce",
	Long:  "Run gating over the extracted segments, skim the selected candidates with the lite model, and reduce the results into plan.json.",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	plan, err := a.pipeline.Plan(ctx, args[0])
	if err != nil {
		return err
	}
	if plan != nil {
		fmt.Printf("plan written: %d terms, %d concepts\n", len(plan.TermsToDefine), len(plan.ConceptsToSimplify))
	}
	return nil
}
