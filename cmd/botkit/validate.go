package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/keepmind9/botkit/internal/core"
	"github.com/spf13/cobra"
)

var (
	validateConfig string
	validateShow   bool
	validateJSON   bool
)

// ValidationResult represents the validation result
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Config   string   `json:"config"`
	Bots     int      `json:"bots"`
	Handlers int      `json:"handlers"`
	Prefixes []string `json:"prefixes"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate botkit configuration file",
	Long: `Validate the botkit configuration file without starting the service.

This command checks:
  - YAML syntax
  - Required fields and durations
  - Bot credentials
  - Handler manifests in the plugin directories

Exit codes:
  0 - Configuration is valid
  1 - Configuration has errors`,
	Run: func(cmd *cobra.Command, args []string) {
		configFile := validateConfig
		if configFile == "" {
			configFile = findConfigFile()
		}

		if configFile == "" {
			fmt.Println("❌ No configuration file found")
			fmt.Println("\nSpecify a config file with --config or ensure one exists at:")
			for _, loc := range defaultConfigLocations() {
				fmt.Printf("  - %s\n", loc)
			}
			os.Exit(1)
		}

		result, cfg := validateFile(cmd.Context(), configFile)

		if validateShow && cfg != nil {
			fmt.Printf("✓ Configuration loaded: %s\n\n", configFile)
			fmt.Printf("Prefixes: %s\n", strings.Join(cfg.Bot.Prefixes, " "))
			fmt.Printf("Plugin dirs (%d):\n", len(cfg.Plugins.Dirs))
			for _, dir := range cfg.Plugins.Dirs {
				fmt.Printf("  - %s\n", dir)
			}
			fmt.Printf("\nBots (%d):\n", len(cfg.Bots))
			for name, bot := range cfg.Bots {
				status := "disabled"
				if bot.Enabled {
					status = "enabled"
				}
				fmt.Printf("  - %s: %s\n", name, status)
			}
			fmt.Println()
		}

		outputValidationResult(result, validateJSON)

		if !result.Valid {
			os.Exit(1)
		}
	},
}

func defaultConfigLocations() []string {
	return []string{
		"config.yaml",
		filepath.Join(os.Getenv("HOME"), ".config/botkit/config.yaml"),
		"/etc/botkit/config.yaml",
	}
}

func findConfigFile() string {
	for _, loc := range defaultConfigLocations() {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

// validateFile loads the config and its handler set. The config is nil
// when loading failed.
func validateFile(ctx context.Context, configFile string) (ValidationResult, *core.Config) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := core.LoadConfig(configFile)
	if err != nil {
		return ValidationResult{
			Valid:  false,
			Config: configFile,
			Errors: []string{err.Error()},
		}, nil
	}

	result := ValidationResult{
		Valid:    true,
		Config:   configFile,
		Bots:     len(cfg.EnabledBots()),
		Prefixes: cfg.Bot.Prefixes,
		Warnings: validateConfigDetails(cfg),
	}

	handlers, err := core.LoadHandlers(ctx, cfg)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, err.Error())
	}
	result.Handlers = len(handlers)
	return result, cfg
}

func outputValidationResult(result ValidationResult, jsonFormat bool) {
	if jsonFormat {
		output, err := json.Marshal(result)
		if err != nil {
			fmt.Printf("{\"error\": \"failed to marshal json: %v\"}\n", err)
			return
		}
		fmt.Println(string(output))
		return
	}

	if result.Valid {
		fmt.Println("✓ Configuration is valid")
		fmt.Printf("  - Config: %s\n", result.Config)
		fmt.Printf("  - Prefixes: %s\n", strings.Join(result.Prefixes, " "))
		fmt.Printf("  - Handlers: %d\n", result.Handlers)
		fmt.Printf("  - Bots enabled: %d\n", result.Bots)
		if len(result.Warnings) > 0 {
			fmt.Println("\n⚠️  Warnings:")
			for _, warning := range result.Warnings {
				fmt.Printf("  - %s\n", warning)
			}
		}
		return
	}

	fmt.Println("❌ Configuration validation failed:")
	if len(result.Errors) > 0 {
		fmt.Println("\nErrors:")
		for _, errMsg := range result.Errors {
			fmt.Printf("  - %s\n", errMsg)
		}
	}
	if len(result.Warnings) > 0 {
		fmt.Println("\nWarnings:")
		for _, warning := range result.Warnings {
			fmt.Printf("  - %s\n", warning)
		}
	}
}

// validateConfigDetails reports settings that load fine but are likely mistakes
func validateConfigDetails(cfg *core.Config) []string {
	var warnings []string

	if !cfg.Security.WhitelistEnabled {
		warnings = append(warnings, "Whitelist is disabled - any user may run public commands")
	}

	owners := 0
	for _, ids := range cfg.Security.Owners {
		owners += len(ids)
	}
	if owners == 0 {
		warnings = append(warnings, "No owners configured - owner-only commands cannot be used")
	}

	for _, name := range cfg.EnabledBots() {
		bot := cfg.Bots[name]
		if bot.Token == "" && bot.AppID == "" {
			warnings = append(warnings, fmt.Sprintf("Bot '%s' is enabled but has no credentials configured", name))
		}
	}
	if len(cfg.EnabledBots()) == 0 {
		warnings = append(warnings, "No bots are enabled - botkit will not receive messages")
	}

	if len(cfg.Plugins.Dirs) == 0 {
		warnings = append(warnings, "No plugin directories configured - only builtin handlers are available")
	}

	if cfg.API.Enabled && cfg.API.Token == "" {
		warnings = append(warnings, "Admin API is enabled without a token")
	}

	return warnings
}

func init() {
	validateCmd.Flags().StringVarP(&validateConfig, "config", "c", "", "Configuration file path")
	validateCmd.Flags().BoolVar(&validateShow, "show", false, "Show full configuration details")
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "Output in JSON format")
}
