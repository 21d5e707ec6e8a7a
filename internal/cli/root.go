package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cayyus/engineerverse/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "engineerverse",
	Short: "Bluesky feed generator for engineering, programming and science posts",
	Long: "Engineerverse serves a Bluesky custom feed. Each time window it samples a rotating " +
		"batch of hashtags by weight, searches them, and pages through the results.",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("FEEDGEN_CONFIG"),
		"path to a YAML config file (env FEEDGEN_CONFIG)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(publishCmd)
}

// loadConfig loads configuration for CLI commands, reporting every
// validation problem at once.
func loadConfig() (*config.Config, error) {
	cfg, errs := config.Load(configPath)
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return cfg, nil
}
