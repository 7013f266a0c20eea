// Package main provides the perkaya CLI: the staged document-enrichment
// pipeline for Indonesian financial and insurance PDFs.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "perkaya",
	Short: "Staged document enrichment pipeline",
	Long:  "Perkaya plans, enriches and re-synthesizes extracted document Markdown, anchoring generated definitions and simplifications as footnotes, then vectorizes the result into the active namespace.",
}

var configPath string

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to JSON or YAML config file")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
