// Package main is the document-intelligence worker: it leases extraction and
// explain jobs from the shared queue and serves the operational endpoints.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configPath string
	devMode    bool

	// set with -ldflags "-X main.version=... -X main.commit=..."
	version = "dev"
	commit  = "none"
)

var rootCmd = &cobra.Command{
	Use:           "docworker",
	Short:         "Document extraction and Deep Explain worker",
	Long:          "docworker extracts uploaded documents page by page and builds evidence-grounded explanations from the extracted chunks.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.Version = version + " (" + commit + ")"
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to YAML config file")
	rootCmd.PersistentFlags().BoolVar(&devMode, "dev", false, "console logging and unredacted secrets")
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
