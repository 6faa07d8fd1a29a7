// Package main provides the entry point for the metagen CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "metagen",
	Short: "Batch metadata generation across a pool of Gemini API keys",
	Long:  "metagen generates descriptive metadata (title, keywords, description) for directories of media files by distributing per-file jobs across multiple rate-limited Gemini API keys.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
