package transport

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/keepmind9/botkit/internal/groups"
	"github.com/keepmind9/botkit/internal/inbound"
	"github.com/keepmind9/botkit/internal/logger"
	"github.com/keepmind9/botkit/internal/message"
	"github.com/keepmind9/botkit/pkg/constants"
	"github.com/open-dingtalk/dingtalk-stream-sdk-go/chatbot"
	"github.com/open-dingtalk/dingtalk-stream-sdk-go/client"
	"github.com/sirupsen/logrus"
)

// DingTalk conversation types
const (
	dingTalkPrivate = "1"
	dingTalkGroup   = "2"
)

// DingTalkReplier posts text through a conversation's session webhook;
// *chatbot.ChatbotReplier implements it
type DingTalkReplier interface {
	SimpleReplyText(ctx context.Context, sessionWebhook string, content []byte) error
}

type sessionWebhook struct {
	url       string
	expiresAt time.Time
}

// DingTalkBot implements Adapter for DingTalk using the stream long connection.
// DingTalk has no push API for bots, so outbound messages go through the
// session webhook of the most recent inbound message in each conversation.
type DingTalkBot struct {
	mu           sync.RWMutex
	clientID     string
	clientSecret string
	streamClient *client.StreamClient
	replier      DingTalkReplier
	handler      BatchHandler
	webhooks     map[string]sessionWebhook
	members      map[string]map[string]bool // conversation -> staff id -> admin
	cancel       context.CancelFunc
	now          func() time.Time
}

// NewDingTalkBot creates a new DingTalk bot instance
func NewDingTalkBot(clientID, clientSecret string) *DingTalkBot {
	return &DingTalkBot{
		clientID:     clientID,
		clientSecret: clientSecret,
		replier:      chatbot.NewChatbotReplier(),
		webhooks:     make(map[string]sessionWebhook),
		members:      make(map[string]map[string]bool),
		now:          time.Now,
	}
}

// Name returns the platform name
func (d *DingTalkBot) Name() string { return PlatformDingTalk }

// Start establishes the stream connection to DingTalk and begins listening for messages
func (d *DingTalkBot) Start(handler BatchHandler) error {
	d.SetHandler(handler)
	ctx, cancel := context.WithCancel(context.Background())

	logger.WithFields(logrus.Fields{
		"client_id": maskSecret(d.clientID),
	}).Info("starting-dingtalk-bot-with-websocket-long-connection")

	credential := client.NewAppCredentialConfig(d.clientID, d.clientSecret)
	streamClient := client.NewStreamClient(client.WithAppCredential(credential))
	streamClient.RegisterChatBotCallbackRouter(d.handleMessageReceive)

	d.mu.Lock()
	d.streamClient = streamClient
	d.cancel = cancel
	d.mu.Unlock()

	go func() {
		if err := streamClient.Start(ctx); err != nil {
			logger.WithFields(logrus.Fields{
				"client_id": maskSecret(d.clientID),
				"error":     err,
			}).Error("dingtalk-websocket-connection-failed")
		}
	}()

	time.Sleep(constants.DefaultConnectDelay)

	logger.Info("dingtalk-websocket-long-connection-started")
	return nil
}

// handleMessageReceive handles incoming chatbot callbacks from DingTalk
func (d *DingTalkBot) handleMessageReceive(_ context.Context, data *chatbot.BotCallbackDataModel) ([]byte, error) {
	if data == nil {
		return []byte(""), nil
	}

	logger.WithFields(logrus.Fields{
		"platform":          PlatformDingTalk,
		"conversation_id":   data.ConversationId,
		"conversation_type": data.ConversationType,
		"sender_staff_id":   data.SenderStaffId,
		"msg_id":            data.MsgId,
		"msg_type":          data.Msgtype,
	}).Debug("received-dingtalk-message-event-parsed")

	d.remember(data)

	handler := d.Handler()
	if handler == nil || data.Msgtype != "text" {
		return []byte(""), nil
	}
	if m := d.normalize(data); m != nil {
		handler(inbound.Batch{Type: inbound.BatchNotify, Messages: []*message.Message{m}})
	}
	return []byte(""), nil
}

// remember records the session webhook and the sender's admin flag
func (d *DingTalkBot) remember(data *chatbot.BotCallbackDataModel) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if data.SessionWebhook != "" {
		expires := d.now().Add(time.Hour)
		if data.SessionWebhookExpiredTime > 0 {
			expires = time.UnixMilli(data.SessionWebhookExpiredTime)
		}
		d.webhooks[data.ConversationId] = sessionWebhook{url: data.SessionWebhook, expiresAt: expires}
	}
	if data.ConversationType == dingTalkGroup && data.SenderStaffId != "" {
		if d.members[data.ConversationId] == nil {
			d.members[data.ConversationId] = make(map[string]bool)
		}
		d.members[data.ConversationId][data.SenderStaffId] = data.IsAdmin
	}
}

func (d *DingTalkBot) normalize(data *chatbot.BotCallbackDataModel) *message.Message {
	body := strings.TrimSpace(data.Text.Content)
	if body == "" {
		return nil
	}

	webhook := data.SessionWebhook
	m := message.New(message.ReplyFunc(func(ctx context.Context, content string) error {
		return d.reply(ctx, webhook, content)
	}), nil)

	m.ID = data.MsgId
	m.Platform = PlatformDingTalk
	m.ChatID = data.ConversationId
	m.SenderID = data.SenderStaffId
	m.SenderName = data.SenderNick
	m.BotID = data.ChatbotUserId
	m.Body = body
	m.IsGroup = data.ConversationType == dingTalkGroup
	m.Timestamp = d.now()
	if data.CreateAt > 0 {
		m.Timestamp = time.UnixMilli(data.CreateAt)
	}
	return m
}

func (d *DingTalkBot) reply(ctx context.Context, webhook, text string) error {
	d.mu.RLock()
	replier := d.replier
	d.mu.RUnlock()

	if replier == nil {
		return errNotStarted(PlatformDingTalk)
	}
	if webhook == "" {
		return fmt.Errorf("no session webhook for DingTalk reply")
	}
	text = truncate(PlatformDingTalk, text, constants.MaxDingTalkMessageLength)
	if err := replier.SimpleReplyText(ctx, webhook, []byte(text)); err != nil {
		return fmt.Errorf("failed to reply via session webhook: %w", err)
	}
	return nil
}

// Send sends a message to a DingTalk conversation through its last known
// session webhook
func (d *DingTalkBot) Send(conversationID, text string) error {
	if conversationID == "" {
		return fmt.Errorf("conversation ID is required for DingTalk")
	}

	d.mu.RLock()
	hook, ok := d.webhooks[conversationID]
	d.mu.RUnlock()

	if !ok || !d.now().Before(hook.expiresAt) {
		logger.WithField("conversation_id", conversationID).Warn("dingtalk-session-webhook-unavailable")
		return fmt.Errorf("no live session webhook for conversation %s", conversationID)
	}
	ctx, cancel := sendContext()
	defer cancel()

	if err := d.reply(ctx, hook.url, text); err != nil {
		logger.WithFields(logrus.Fields{
			"conversation_id": conversationID,
			"error":           err,
		}).Error("failed-to-send-message-to-dingtalk")
		return err
	}
	logger.WithField("conversation_id", conversationID).Debug("message-sent-to-dingtalk")
	return nil
}

// GroupMetadata returns the members seen in a conversation along with the
// admin flag DingTalk attaches to each callback
func (d *DingTalkBot) GroupMetadata(_ context.Context, groupID string) (*groups.Metadata, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	seen, ok := d.members[groupID]
	if !ok {
		return nil, nil
	}
	meta := &groups.Metadata{ID: groupID}
	for id, admin := range seen {
		p := groups.Participant{ID: id}
		if admin {
			p.Admin = groups.RoleAdmin
		}
		meta.Participants = append(meta.Participants, p)
	}
	return meta, nil
}

// Stop closes the DingTalk stream connection and cleans up resources
func (d *DingTalkBot) Stop() error {
	d.mu.Lock()
	cancel := d.cancel
	streamClient := d.streamClient
	d.cancel = nil
	d.streamClient = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if streamClient != nil {
		streamClient.Close()
		logger.Info("dingtalk-websocket-connection-stopped")
	}

	logger.Info("dingtalk-bot-stopped")
	return nil
}

// SetHandler sets the batch handler in a thread-safe manner
func (d *DingTalkBot) SetHandler(handler BatchHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handler = handler
}

// Handler gets the batch handler in a thread-safe manner
func (d *DingTalkBot) Handler() BatchHandler {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.handler
}
