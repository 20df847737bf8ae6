package main

import (
	"github.com/spf13/cobra"

	"github.com/foliolabs/folio/internal/api"
	"github.com/foliolabs/folio/version"
)

var (
	cfgFile      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "folio",
	Short: "Page-image generation and delivery service for book documents",
	Long: `Folio renders uploaded book documents into tiered page images and
serves them through short-lived presigned URLs.

The pipeline includes:
  - Four fixed resolution tiers per page (thumbnail, medium, high, ultra)
  - Per-page failure isolation with partial-success job outcomes
  - Auto-derived covers from page 1, with custom cover overrides
  - Lifecycle events for downstream OCR/notification consumers`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.folio/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}
