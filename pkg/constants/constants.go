package constants

import "time"

// Message length limits for different platforms
const (
	// MaxDiscordMessageLength is Discord's message character limit
	MaxDiscordMessageLength = 2000
	// MaxTelegramMessageLength is Telegram's message character limit
	MaxTelegramMessageLength = 4096
	// MaxFeishuMessageLength is Feishu's message character limit
	MaxFeishuMessageLength = 20000
	// MaxDingTalkMessageLength is DingTalk's message character limit
	MaxDingTalkMessageLength = 20000
)

// Transport timeouts
const (
	// DefaultPollTimeout is the timeout for long polling operations
	DefaultPollTimeout = 60 * time.Second
	// DefaultConnectDelay gives websocket transports time to establish the connection
	DefaultConnectDelay = 2 * time.Second
	// DefaultSendTimeout bounds a single reply or reaction call
	DefaultSendTimeout = 10 * time.Second
)

// Dispatch defaults
const (
	// DefaultMaxQueueDepth is the maximum number of pending commands per sender
	DefaultMaxQueueDepth = 20
	// DefaultHandlerTimeout is the soft execution deadline passed to handlers
	DefaultHandlerTimeout = 2 * time.Minute
	// UsageWindow is the rolling daily quota window
	UsageWindow = 24 * time.Hour
	// StoreSweepInterval is how often expired cooldown/usage entries are purged
	StoreSweepInterval = 60 * time.Second
)

// Handler registry defaults
const (
	// DefaultReloadDebounce coalesces bursts of plugin file changes
	DefaultReloadDebounce = 200 * time.Millisecond
	// DefaultWatchInterval is how often plugin sources are fingerprinted.
	// The effective debounce is never shorter than two intervals.
	DefaultWatchInterval = 100 * time.Millisecond
)

// Group metadata
const (
	// DefaultGroupCacheTTL is how long fetched group metadata is reused
	DefaultGroupCacheTTL = 5 * time.Minute
)

// Reaction emoji used for user-facing status feedback
const (
	EmojiWorking  = "🔄"
	EmojiSuccess  = "✅"
	EmojiFailure  = "❌"
	EmojiCooldown = "⏳"
	EmojiUsage    = "ℹ️"
	EmojiQuota    = "🚫"
)

// Secret masking
const (
	// MinSecretLengthForMasking is the minimum secret length to apply masking
	MinSecretLengthForMasking = 8
	// SecretMaskPrefixLength is the length of prefix to show before masking
	SecretMaskPrefixLength = 4
	// SecretMaskSuffixLength is the length of suffix to show after masking
	SecretMaskSuffixLength = 4
)
