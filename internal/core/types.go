package core

import "time"

// Config represents the complete botkit configuration structure
type Config struct {
	Bot      BotSettings          `yaml:"bot"`
	Security SecurityConfig       `yaml:"security"`
	Plugins  PluginsConfig        `yaml:"plugins"`
	Dispatch DispatchConfig       `yaml:"dispatch"`
	Groups   GroupsConfig         `yaml:"groups"`
	Settings SettingsConfig       `yaml:"settings"`
	API      APIConfig            `yaml:"api"`
	Bots     map[string]BotConfig `yaml:"bots"`
	Logging  LoggingConfig        `yaml:"logging"`
}

// BotSettings holds command parsing and feature flags
type BotSettings struct {
	Prefixes          []string `yaml:"prefixes"`           // default: ["!"]
	AllowExperimental *bool    `yaml:"allow_experimental"` // default: true
}

// ExperimentalEnabled reports whether experimental handlers may run
func (b BotSettings) ExperimentalEnabled() bool {
	return b.AllowExperimental == nil || *b.AllowExperimental
}

// SecurityConfig represents security and access control configuration
type SecurityConfig struct {
	WhitelistEnabled bool                `yaml:"whitelist_enabled"`
	AllowedUsers     map[string][]string `yaml:"allowed_users"`
	Owners           map[string][]string `yaml:"owners"`
}

// PluginsConfig controls where handler manifests come from and how they are reloaded
type PluginsConfig struct {
	Dirs         []string `yaml:"dirs"`
	Watch        *bool    `yaml:"watch"`         // default: true
	PollInterval string   `yaml:"poll_interval"` // default: "100ms"
	Debounce     string   `yaml:"debounce"`      // default: "200ms"
}

// WatchEnabled reports whether handler sources are watched for changes
func (p PluginsConfig) WatchEnabled() bool {
	return p.Watch == nil || *p.Watch
}

// Interval returns the parsed poll interval
func (p PluginsConfig) Interval() time.Duration {
	d, _ := time.ParseDuration(p.PollInterval)
	return d
}

// DebounceWindow returns the parsed debounce window
func (p PluginsConfig) DebounceWindow() time.Duration {
	d, _ := time.ParseDuration(p.Debounce)
	return d
}

// DispatchConfig bounds the per-sender queues
type DispatchConfig struct {
	MaxQueueDepth  int    `yaml:"max_queue_depth"` // default: 20
	HandlerTimeout string `yaml:"handler_timeout"` // default: "2m"
}

// Timeout returns the parsed handler timeout
func (d DispatchConfig) Timeout() time.Duration {
	t, _ := time.ParseDuration(d.HandlerTimeout)
	return t
}

// GroupsConfig controls group metadata caching
type GroupsConfig struct {
	CacheTTL string `yaml:"cache_ttl"` // default: "5m"
}

// TTL returns the parsed cache TTL
func (g GroupsConfig) TTL() time.Duration {
	t, _ := time.ParseDuration(g.CacheTTL)
	return t
}

// SettingsConfig locates the persisted bot settings
type SettingsConfig struct {
	DBPath string `yaml:"db_path"` // default: ~/.botkit/botkit.db
}

// APIConfig represents the admin HTTP API configuration
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"` // default: 127.0.0.1:8090
	Token   string `yaml:"token"`  // optional bearer token; "keyring:<account>" supported
}

// BotConfig represents bot configuration
type BotConfig struct {
	Enabled           bool   `yaml:"enabled"`
	AppID             string `yaml:"app_id"`
	AppSecret         string `yaml:"app_secret"`
	Token             string `yaml:"token"`
	ChannelID         string `yaml:"channel_id"`         // For Discord: default channel for Send
	EncryptKey        string `yaml:"encrypt_key"`        // Feishu: event encryption key (optional)
	VerificationToken string `yaml:"verification_token"` // Feishu: verification token (optional)
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`         // debug, info, warn, error
	File         string `yaml:"file"`          // Log file path
	MaxSize      int    `yaml:"max_size"`      // Single file max size in MB (default: 100)
	MaxBackups   int    `yaml:"max_backups"`   // Number of backups to keep (default: 5)
	MaxAge       int    `yaml:"max_age"`       // Maximum days to retain (default: 30)
	Compress     bool   `yaml:"compress"`      // Whether to compress old logs (default: true)
	EnableStdout bool   `yaml:"enable_stdout"` // Also output to stdout (default: true)
}
