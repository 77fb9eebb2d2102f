package main

import (
	"github.com/spf13/cobra"

	"github.com/ldiehl/paperboy/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the active configuration",
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = config.DefaultPath()
		}
		if humanOutput {
			outputHuman("%s\n", path)
			return nil
		}
		return outputJSON(StatusResponse{Status: "ok", Path: path})
	},
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Load and validate the config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		if humanOutput {
			outputHuman("config ok: %d keyword groups, history at %s\n",
				len(cfg.Profile.Groups), cfg.HistoryPath)
			return nil
		}
		return outputJSON(StatusResponse{Status: "ok", Path: cfg.HistoryPath})
	},
}

func init() {
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configCheckCmd)
	rootCmd.AddCommand(configCmd)
}
