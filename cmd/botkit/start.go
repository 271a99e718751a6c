package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/keepmind9/botkit/internal/core"
	"github.com/keepmind9/botkit/internal/logger"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configFile string

	startCmd = &cobra.Command{
		Use:   "start",
		Short: "Start the botkit main process",
		Long:  "Start botkit, connect the enabled bots and dispatch prefixed commands to handlers",
		Run: func(cmd *cobra.Command, args []string) {
			config, err := core.LoadConfig(configFile)
			if err != nil {
				log.Fatalf("Failed to load config: %v", err)
			}
			if err := config.ResolveSecrets(); err != nil {
				log.Fatalf("Failed to resolve secrets: %v", err)
			}

			fmt.Printf("Starting botkit with config: %s\n", configFile)
			fmt.Printf("Command prefixes: %s\n", strings.Join(config.Bot.Prefixes, " "))
			fmt.Printf("Whitelist enabled: %v\n", config.Security.WhitelistEnabled)
			fmt.Printf("Bots: %s\n", strings.Join(config.EnabledBots(), ", "))

			logConfig := logger.Config{
				Level:        config.Logging.Level,
				File:         config.Logging.File,
				MaxSize:      config.Logging.MaxSize,
				MaxBackups:   config.Logging.MaxBackups,
				MaxAge:       config.Logging.MaxAge,
				Compress:     config.Logging.Compress,
				EnableStdout: config.Logging.EnableStdout,
			}
			if err := logger.InitLogger(logConfig); err != nil {
				log.Fatalf("Failed to initialize logger: %v", err)
			}

			logger.WithFields(logrus.Fields{
				"config_file": configFile,
				"log_level":   config.Logging.Level,
				"log_file":    config.Logging.File,
			}).Info("logger-initialized")

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := core.NewApp(ctx, config)
			if err != nil {
				log.Fatalf("Failed to create app: %v", err)
			}

			fmt.Println("\nbotkit starting...")
			fmt.Println("Press Ctrl+C to stop")

			if err := app.Run(ctx); err != nil {
				log.Printf("Error during shutdown: %v", err)
				os.Exit(1)
			}
			log.Println("botkit stopped")
		},
	}
)

func init() {
	startCmd.Flags().StringVarP(&configFile, "config", "c", "config.yaml", "Configuration file path")
}
