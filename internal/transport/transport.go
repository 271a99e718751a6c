// Package transport provides adapters for IM platforms.
//
// Each adapter connects to one platform, normalizes inbound events into
// message.Message values bound to reply (and, where the platform supports it,
// react) capabilities, and delivers them in batches to a callback.
//
// # Supported Platforms
//
//   - Telegram: long polling; group admins via GetChatAdministrators
//   - Discord: gateway WebSocket; reactions via MessageReactionAdd
//   - Feishu/Lark: WebSocket long connection
//   - DingTalk: stream long connection; replies via the session webhook
//
// Adapters are safe for concurrent use. The batch callback may be called
// from multiple goroutines.
package transport

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/keepmind9/botkit/internal/inbound"
	"github.com/keepmind9/botkit/internal/logger"
	"github.com/keepmind9/botkit/pkg/constants"
	"github.com/sirupsen/logrus"
)

// Platform names
const (
	PlatformTelegram = "telegram"
	PlatformDiscord  = "discord"
	PlatformFeishu   = "feishu"
	PlatformDingTalk = "dingtalk"
)

// BatchHandler receives normalized inbound batches
type BatchHandler func(inbound.Batch)

// Adapter is an IM platform connection
type Adapter interface {
	// Name returns the platform name
	Name() string

	// Start connects and begins delivering batches to handler
	Start(handler BatchHandler) error

	// Send posts text to a channel. Adapters truncate to platform limits.
	Send(channel, text string) error

	// Stop disconnects and releases resources
	Stop() error
}

// maskSecret masks sensitive information for logging
func maskSecret(s string) string {
	if len(s) <= constants.MinSecretLengthForMasking {
		return "***"
	}
	return s[:constants.SecretMaskPrefixLength] + "***" + s[len(s)-constants.SecretMaskSuffixLength:]
}

// truncate cuts text to at most max bytes without splitting a UTF-8 sequence
func truncate(platform, text string, max int) string {
	if len(text) <= max {
		return text
	}
	logger.WithFields(logrus.Fields{
		"platform":        platform,
		"original_length": len(text),
		"max_length":      max,
	}).Info("truncating-message-for-platform-limit")

	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

func sendContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), constants.DefaultSendTimeout)
}

func errNotStarted(platform string) error {
	return fmt.Errorf("%s bot not initialized", platform)
}
