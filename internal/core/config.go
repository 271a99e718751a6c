// Package core provides configuration management and the application wiring for botkit.
//
// The core package connects IM transports to the command dispatch engine. It handles:
//
//   - Configuration loading and validation (from YAML files)
//   - Building the handler registry, stores, pipeline and per-sender queues
//   - Starting transports, the handler watcher and the admin API
//   - Graceful shutdown and cleanup
//
// # Configuration
//
// Configuration is loaded from a YAML file with the following main sections:
//
//   - bot: command prefixes and feature flags
//   - security: whitelist and owners per platform
//   - plugins: handler manifest directories and hot reload
//   - dispatch: queue depth and handler timeout
//   - groups / settings / api: group metadata cache, settings database, admin API
//   - bots: IM platform bot configurations
//   - logging: Log configuration
//
// # Example Configuration
//
//	bot:
//	  prefixes: ["!", "."]
//	security:
//	  owners:
//	    telegram: ["123456789"]
//	plugins:
//	  dirs: ["./plugins"]
//	bots:
//	  telegram:
//	    enabled: true
//	    token: "${TELEGRAM_TOKEN}"
package core

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/keepmind9/botkit/internal/keychain"
	"github.com/keepmind9/botkit/pkg/constants"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPrefix          = "!"
	DefaultAPIListen       = "127.0.0.1:8090"
	DefaultSettingsDB      = "~/.botkit/botkit.db"
	DefaultLogLevel        = "info"
	DefaultLogMaxSize      = 100 // MB
	DefaultLogMaxBackups   = 5
	DefaultLogMaxAge       = 30 // days
	DefaultLogCompress     = true
	DefaultLogEnableStdout = true
)

// LoadConfig loads configuration from file and expands environment variables
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData, err := expandEnv(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to expand environment variables: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// expandEnv replaces ${VAR_NAME} patterns with environment variable values
func expandEnv(input string) (string, error) {
	var missingVars []string

	result := os.Expand(input, func(key string) string {
		if val := os.Getenv(key); val != "" {
			return val
		}
		missingVars = append(missingVars, key)
		return ""
	})

	if len(missingVars) > 0 {
		return "", fmt.Errorf("missing required environment variables: %s",
			strings.Join(missingVars, ", "))
	}

	return result, nil
}

// validateConfig fills defaults and performs basic validation on the configuration
func validateConfig(config *Config) error {
	if len(config.Bot.Prefixes) == 0 {
		config.Bot.Prefixes = []string{DefaultPrefix}
	}
	for _, p := range config.Bot.Prefixes {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("bot.prefixes cannot contain empty values")
		}
	}

	// Set default logging configuration
	if config.Logging.Level == "" {
		config.Logging.Level = DefaultLogLevel
	}
	if config.Logging.MaxSize == 0 {
		config.Logging.MaxSize = DefaultLogMaxSize
	}
	if config.Logging.MaxBackups == 0 {
		config.Logging.MaxBackups = DefaultLogMaxBackups
	}
	if config.Logging.MaxAge == 0 {
		config.Logging.MaxAge = DefaultLogMaxAge
	}
	if !config.Logging.Compress {
		config.Logging.Compress = DefaultLogCompress
	}
	if !config.Logging.EnableStdout {
		config.Logging.EnableStdout = DefaultLogEnableStdout
	}
	logFile, err := expandHome(config.Logging.File)
	if err != nil {
		return err
	}
	config.Logging.File = logFile

	// Handler sources
	if config.Plugins.PollInterval == "" {
		config.Plugins.PollInterval = constants.DefaultWatchInterval.String()
	}
	if config.Plugins.Debounce == "" {
		config.Plugins.Debounce = constants.DefaultReloadDebounce.String()
	}
	interval, err := time.ParseDuration(config.Plugins.PollInterval)
	if err != nil {
		return fmt.Errorf("invalid plugins.poll_interval: %w", err)
	}
	if interval < 100*time.Millisecond {
		return fmt.Errorf("plugins.poll_interval must be at least 100ms (got %v)", interval)
	}
	if _, err := time.ParseDuration(config.Plugins.Debounce); err != nil {
		return fmt.Errorf("invalid plugins.debounce: %w", err)
	}
	for i, dir := range config.Plugins.Dirs {
		expanded, err := expandHome(dir)
		if err != nil {
			return err
		}
		config.Plugins.Dirs[i] = expanded
	}

	// Dispatch
	if config.Dispatch.MaxQueueDepth == 0 {
		config.Dispatch.MaxQueueDepth = constants.DefaultMaxQueueDepth
	}
	if config.Dispatch.MaxQueueDepth < 1 {
		return fmt.Errorf("dispatch.max_queue_depth must be positive (got %d)", config.Dispatch.MaxQueueDepth)
	}
	if config.Dispatch.HandlerTimeout == "" {
		config.Dispatch.HandlerTimeout = constants.DefaultHandlerTimeout.String()
	}
	timeout, err := time.ParseDuration(config.Dispatch.HandlerTimeout)
	if err != nil {
		return fmt.Errorf("invalid dispatch.handler_timeout: %w", err)
	}
	if timeout <= 0 {
		return fmt.Errorf("dispatch.handler_timeout must be positive (got %v)", timeout)
	}

	if config.Groups.CacheTTL == "" {
		config.Groups.CacheTTL = constants.DefaultGroupCacheTTL.String()
	}
	if _, err := time.ParseDuration(config.Groups.CacheTTL); err != nil {
		return fmt.Errorf("invalid groups.cache_ttl: %w", err)
	}

	if config.Settings.DBPath == "" {
		config.Settings.DBPath = DefaultSettingsDB
	}
	if config.Settings.DBPath, err = expandHome(config.Settings.DBPath); err != nil {
		return err
	}

	if config.API.Listen == "" {
		config.API.Listen = DefaultAPIListen
	}

	// Validate security settings
	if config.Security.WhitelistEnabled {
		if len(config.Security.AllowedUsers) == 0 {
			return fmt.Errorf("security.allowed_users cannot be empty when whitelist is enabled")
		}
	}

	// Validate at least one bot is configured
	if len(config.Bots) == 0 {
		return fmt.Errorf("at least one bot must be configured")
	}

	return nil
}

// ResolveSecrets replaces "keyring:<account>" references in bot credentials
// and the API token with the secrets stored in the system keychain
func (c *Config) ResolveSecrets() error {
	for name, bot := range c.Bots {
		if !bot.Enabled {
			continue
		}
		for _, field := range []*string{&bot.Token, &bot.AppSecret, &bot.EncryptKey, &bot.VerificationToken} {
			v, err := keychain.Resolve(*field)
			if err != nil {
				return fmt.Errorf("bot %s: %w", name, err)
			}
			*field = v
		}
		c.Bots[name] = bot
	}

	token, err := keychain.Resolve(c.API.Token)
	if err != nil {
		return fmt.Errorf("api token: %w", err)
	}
	c.API.Token = token
	return nil
}

// GetBotConfig retrieves configuration for a specific bot
func (c *Config) GetBotConfig(botType string) (BotConfig, error) {
	bot, exists := c.Bots[botType]
	if !exists {
		return BotConfig{}, fmt.Errorf("bot type %s not found in configuration", botType)
	}

	if !bot.Enabled {
		return BotConfig{}, fmt.Errorf("bot type %s is disabled", botType)
	}

	return bot, nil
}

// EnabledBots lists the enabled bot types in a stable order
func (c *Config) EnabledBots() []string {
	var names []string
	for name, bot := range c.Bots {
		if bot.Enabled {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// IsUserAuthorized checks if a user is in the whitelist
func (c *Config) IsUserAuthorized(platform, userID string) bool {
	// If whitelist is disabled, allow all users (warning: not recommended for production)
	if !c.Security.WhitelistEnabled {
		return true
	}
	// Owners are always authorized
	if c.IsOwner(platform, userID) {
		return true
	}
	return slices.Contains(c.Security.AllowedUsers[platform], userID)
}

// IsOwner checks if a user is a bot owner on the platform
func (c *Config) IsOwner(platform, userID string) bool {
	if userID == "" {
		return false
	}
	return slices.Contains(c.Security.Owners[platform], userID)
}

// expandHome expands ~ to user's home directory
func expandHome(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}
