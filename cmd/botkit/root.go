package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "botkit",
	Short: "botkit is a command dispatch engine for chat bots",
	Long: `botkit connects IM platforms (Telegram, Discord, Feishu, DingTalk)
to a registry of prefix-triggered command handlers. Handlers are declared
in YAML manifests, reloaded on change, and run through cooldown, quota and
permission checks on a per-sender serial queue.`,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(handlersCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(secretCmd)
	rootCmd.AddCommand(versionCmd)
}
