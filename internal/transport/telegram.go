package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/keepmind9/botkit/internal/groups"
	"github.com/keepmind9/botkit/internal/inbound"
	"github.com/keepmind9/botkit/internal/logger"
	"github.com/keepmind9/botkit/internal/message"
	"github.com/keepmind9/botkit/pkg/constants"
	"github.com/sirupsen/logrus"
)

// TelegramAPI is the part of *tgbotapi.BotAPI the adapter uses
type TelegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetChatAdministrators(config tgbotapi.ChatAdministratorsConfig) ([]tgbotapi.ChatMember, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// TelegramBot implements Adapter for Telegram using long polling
type TelegramBot struct {
	mu      sync.RWMutex
	token   string
	api     TelegramAPI
	selfID  string
	handler BatchHandler
	cancel  context.CancelFunc
}

// NewTelegramBot creates a new Telegram bot instance
func NewTelegramBot(token string) *TelegramBot {
	return &TelegramBot{token: token}
}

// Name returns the platform name
func (t *TelegramBot) Name() string { return PlatformTelegram }

// Start establishes long polling connection to Telegram and begins listening for messages
func (t *TelegramBot) Start(handler BatchHandler) error {
	t.SetHandler(handler)

	logger.WithFields(logrus.Fields{
		"token": maskSecret(t.token),
	}).Info("starting-telegram-bot-with-long-polling")

	t.mu.RLock()
	api := t.api
	t.mu.RUnlock()

	if api == nil {
		bot, err := tgbotapi.NewBotAPI(t.token)
		if err != nil {
			logger.WithField("error", err).Error("failed-to-initialize-telegram-bot")
			return fmt.Errorf("failed to initialize Telegram bot: %w", err)
		}
		logger.WithFields(logrus.Fields{
			"bot_username": bot.Self.UserName,
			"bot_id":       bot.Self.ID,
		}).Info("telegram-bot-initialized-successfully")

		t.mu.Lock()
		t.api = bot
		t.selfID = strconv.FormatInt(bot.Self.ID, 10)
		t.mu.Unlock()
		api = bot
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = int(constants.DefaultPollTimeout.Seconds())
	updates := api.GetUpdatesChan(u)

	ctx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				logger.Info("telegram-long-polling-stopped")
				return
			case update, ok := <-updates:
				if !ok {
					logger.Info("telegram-updates-channel-closed")
					return
				}
				t.handleUpdate(update)
			}
		}
	}()

	logger.Info("telegram-long-polling-connection-started")
	return nil
}

// handleUpdate converts an update into a batch. Edits are delivered as
// append batches, which the router does not dispatch.
func (t *TelegramBot) handleUpdate(update tgbotapi.Update) {
	handler := t.Handler()
	if handler == nil {
		return
	}
	switch {
	case update.Message != nil:
		if m := t.normalize(update.Message); m != nil {
			handler(inbound.Batch{Type: inbound.BatchNotify, Messages: []*message.Message{m}})
		}
	case update.EditedMessage != nil:
		if m := t.normalize(update.EditedMessage); m != nil {
			handler(inbound.Batch{Type: inbound.BatchAppend, Messages: []*message.Message{m}})
		}
	}
}

// normalize builds a Message from a Telegram message; nil for non-text
func (t *TelegramBot) normalize(tm *tgbotapi.Message) *message.Message {
	if tm == nil || tm.Chat == nil || tm.Text == "" {
		return nil
	}
	chatID := tm.Chat.ID
	replyTo := tm.MessageID

	m := message.New(message.ReplyFunc(func(ctx context.Context, content string) error {
		return t.send(chatID, content, replyTo)
	}), nil)

	m.ID = strconv.Itoa(tm.MessageID)
	m.Platform = PlatformTelegram
	m.ChatID = strconv.FormatInt(chatID, 10)
	m.Body = tm.Text
	m.Timestamp = tm.Time()
	m.IsGroup = tm.Chat.IsGroup() || tm.Chat.IsSuperGroup()
	m.IsQuoted = tm.ReplyToMessage != nil

	t.mu.RLock()
	m.BotID = t.selfID
	t.mu.RUnlock()

	if tm.From != nil {
		m.SenderID = strconv.FormatInt(tm.From.ID, 10)
		m.SenderName = tm.From.UserName
		if m.SenderName == "" {
			m.SenderName = tm.From.FirstName
		}
	}

	logger.WithFields(logrus.Fields{
		"platform":    PlatformTelegram,
		"user_id":     m.SenderID,
		"username":    m.SenderName,
		"chat_id":     m.ChatID,
		"chat_type":   tm.Chat.Type,
		"message_id":  tm.MessageID,
		"content_len": len(m.Body),
	}).Debug("received-telegram-message-parsed")
	return m
}

// Send sends a message to a Telegram chat
func (t *TelegramBot) Send(chatID, text string) error {
	if chatID == "" {
		return fmt.Errorf("chat ID is required for Telegram")
	}
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID format: %w", err)
	}
	return t.send(id, text, 0)
}

func (t *TelegramBot) send(chatID int64, text string, replyTo int) error {
	t.mu.RLock()
	api := t.api
	t.mu.RUnlock()
	if api == nil {
		return errNotStarted(PlatformTelegram)
	}

	msg := tgbotapi.NewMessage(chatID, truncate(PlatformTelegram, text, constants.MaxTelegramMessageLength))
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.ReplyToMessageID = replyTo

	_, err := api.Send(msg)
	if isEntityParseError(err) {
		// unbalanced markup in command output; deliver it verbatim
		logger.WithField("chat_id", chatID).Warn("telegram-markdown-rejected-resending-plain")
		msg.ParseMode = ""
		_, err = api.Send(msg)
	}
	if err != nil {
		logger.WithFields(logrus.Fields{
			"chat_id": chatID,
			"error":   err,
		}).Error("failed-to-send-message-to-telegram")
		return fmt.Errorf("failed to send message to chat %d: %w", chatID, err)
	}
	logger.WithField("chat_id", chatID).Debug("message-sent-to-telegram")
	return nil
}

// isEntityParseError reports whether Telegram refused a message because its
// markup could not be parsed.
func isEntityParseError(err error) bool {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == http.StatusBadRequest && strings.Contains(apiErr.Message, "can't parse entities")
}

// GroupMetadata lists the chat administrators of a group. Telegram does not
// expose the full member list to bots, so only admins are returned.
func (t *TelegramBot) GroupMetadata(_ context.Context, groupID string) (*groups.Metadata, error) {
	t.mu.RLock()
	api := t.api
	t.mu.RUnlock()
	if api == nil {
		return nil, errNotStarted(PlatformTelegram)
	}

	id, err := strconv.ParseInt(groupID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID format: %w", err)
	}
	members, err := api.GetChatAdministrators(tgbotapi.ChatAdministratorsConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: id},
	})
	if err != nil {
		return nil, fmt.Errorf("get chat administrators: %w", err)
	}

	meta := &groups.Metadata{ID: groupID}
	for _, member := range members {
		if member.User == nil {
			continue
		}
		role := ""
		switch member.Status {
		case "creator":
			role = groups.RoleSuperAdmin
		case "administrator":
			role = groups.RoleAdmin
		}
		meta.Participants = append(meta.Participants, groups.Participant{
			ID:    strconv.FormatInt(member.User.ID, 10),
			Admin: role,
		})
	}
	return meta, nil
}

// Stop closes the Telegram long polling connection and cleans up resources
func (t *TelegramBot) Stop() error {
	t.mu.Lock()
	cancel := t.cancel
	api := t.api
	t.api = nil
	t.cancel = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if api != nil {
		api.StopReceivingUpdates()
	}

	logger.Info("telegram-bot-stopped")
	return nil
}

// SetHandler sets the batch handler in a thread-safe manner
func (t *TelegramBot) SetHandler(handler BatchHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = handler
}

// Handler gets the batch handler in a thread-safe manner
func (t *TelegramBot) Handler() BatchHandler {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.handler
}

// withAPI injects a client, used by tests
func (t *TelegramBot) withAPI(api TelegramAPI, selfID string) *TelegramBot {
	t.api = api
	t.selfID = selfID
	return t
}
