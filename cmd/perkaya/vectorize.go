package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var vectorizeCmd = &cobra.Command{
	Use:   "vectorize <doc_id>",
	Short: "Chunk, embed and upload the enriched Markdown",
	Long:  "Split markdown_v2.md into chunks, embed them batch-wise and upsert the vectors into the active namespace.",
	Args:  cobra.ExactArgs(1),
	RunE:  runVectorize,
}

var vectorizeNamespace string

func init() {
	vectorizeCmd.Flags().StringVar(&vectorizeNamespace, "namespace", "", "Override the active namespace for this upload")
	rootCmd.AddCommand(vectorizeCmd)
}

func runVectorize(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()

	if vectorizeNamespace != "" {
		a.pipeline.Namespace = vectorizeNamespace
	}
	res, err := a.pipeline.Vectorize(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("upload complete: %d chunks, %d succeeded, %d failed\n",
		res.Chunks, res.Succeeded, res.Failed)
	if res.Failed > 0 {
		return fmt.Errorf("%d vectors failed to upload", res.Failed)
	}
	return nil
}
