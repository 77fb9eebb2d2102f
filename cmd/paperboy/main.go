// Package main provides the paperboy CLI entry point.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags
var Version = "dev"

// humanOutput controls whether to use human-readable output
var humanOutput bool

// configPath overrides the default config file location
var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "paperboy",
	Short: "Verified research-paper digest pipeline",
	Long: `paperboy collects recent papers from arXiv, OpenAlex, and NBER,
verifies each candidate against the Crossref registry so no unconfirmed
paper ever reaches a digest, scores them against a weighted keyword
profile, and assembles a summarized digest for delivery.

Commands output JSON by default for easy scripting; pass --human for
readable output.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default: $XDG_CONFIG_HOME/paperboy/config.yml)")
	rootCmd.Version = Version
}
