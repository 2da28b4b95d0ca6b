// Command licensebot runs the license auto-publish bot.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Opizontas-Studio/dc-license-bot/pkg/config"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/logger"
)

var rootCmd = &cobra.Command{
	Use:           "licensebot",
	Short:         "Discord bot that publishes creator licenses into new forum posts",
	Version:       GetVersion(),
	SilenceUsage:  true,
	SilenceErrors: false,
	Long: `licensebot watches forum channels for new posts and offers to attach the
author's default license, guiding first-time users through creating one.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(); err != nil {
			return err
		}
		if cmd.Flags().Changed("verbose") {
			verbose, err := cmd.Flags().GetBool("verbose")
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error getting verbose flag: %v\n", err)
				return nil
			}
			logger.SetVerbose(verbose)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Configuration file path (YAML)")
}

func setupVersion() {
	rootCmd.SetVersionTemplate(GetVersionInfo() + "\n")
}

// Execute runs the root command.
func Execute() {
	setupVersion()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// loadConfig reads the file named by --config, if any.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Configure(cfg.Logging.LoggerSpec())
	if v, _ := cmd.Flags().GetBool("verbose"); v {
		logger.SetVerbose(true)
	}
	return cfg, nil
}
