package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/keepmind9/botkit/internal/groups"
	"github.com/keepmind9/botkit/internal/inbound"
	"github.com/keepmind9/botkit/internal/logger"
	"github.com/keepmind9/botkit/internal/message"
	"github.com/keepmind9/botkit/pkg/constants"
	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"github.com/larksuite/oapi-sdk-go/v3/ws"
	"github.com/sirupsen/logrus"
)

// FeishuMessenger is the part of the Lark IM message service the adapter uses
type FeishuMessenger interface {
	Create(ctx context.Context, req *larkim.CreateMessageReq, options ...larkcore.RequestOptionFunc) (*larkim.CreateMessageResp, error)
	Reply(ctx context.Context, req *larkim.ReplyMessageReq, options ...larkcore.RequestOptionFunc) (*larkim.ReplyMessageResp, error)
}

// FeishuChats is the part of the Lark IM chat service the adapter uses
type FeishuChats interface {
	Get(ctx context.Context, req *larkim.GetChatReq, options ...larkcore.RequestOptionFunc) (*larkim.GetChatResp, error)
}

// FeishuBot implements Adapter for Feishu (Lark) using WebSocket long connection
type FeishuBot struct {
	mu                sync.RWMutex
	AppID             string
	AppSecret         string
	EncryptKey        string // Optional, for encrypted events
	VerificationToken string // Optional, for event verification
	WSClient          *ws.Client
	Messenger         FeishuMessenger
	Chats             FeishuChats
	Dispatcher        *dispatcher.EventDispatcher
	handler           BatchHandler
	ctx               context.Context
	cancel            context.CancelFunc
}

// NewFeishuBot creates a new Feishu bot instance
func NewFeishuBot(appID, appSecret string) *FeishuBot {
	client := lark.NewClient(appID, appSecret)
	return &FeishuBot{
		AppID:     appID,
		AppSecret: appSecret,
		Messenger: client.Im.Message,
		Chats:     client.Im.Chat,
	}
}

// Name returns the platform name
func (f *FeishuBot) Name() string { return PlatformFeishu }

// Start establishes WebSocket long connection to Feishu and begins listening for messages
func (f *FeishuBot) Start(handler BatchHandler) error {
	f.SetHandler(handler)
	ctx, cancel := context.WithCancel(context.Background())

	logger.WithFields(logrus.Fields{
		"app_id": maskSecret(f.AppID),
	}).Info("starting-feishu-bot-with-websocket-long-connection")

	f.mu.Lock()
	f.ctx, f.cancel = ctx, cancel
	f.Dispatcher = dispatcher.NewEventDispatcher(f.VerificationToken, f.EncryptKey)
	f.Dispatcher.OnP2MessageReceiveV1(f.handleMessageReceive)
	f.WSClient = ws.NewClient(f.AppID, f.AppSecret,
		ws.WithEventHandler(f.Dispatcher),
		ws.WithLogLevel(larkcore.LogLevelInfo),
		ws.WithAutoReconnect(true),
	)
	wsClient := f.WSClient
	f.mu.Unlock()

	// Start blocks for the lifetime of the connection
	go func() {
		if err := wsClient.Start(ctx); err != nil {
			logger.WithFields(logrus.Fields{
				"app_id": maskSecret(f.AppID),
				"error":  err,
			}).Error("feishu-websocket-connection-failed")
		}
	}()

	time.Sleep(constants.DefaultConnectDelay)

	logger.Info("feishu-websocket-long-connection-started")
	return nil
}

// handleMessageReceive handles incoming message events from Feishu
func (f *FeishuBot) handleMessageReceive(_ context.Context, event *larkim.P2MessageReceiveV1) error {
	if event == nil || event.Event == nil || event.Event.Message == nil {
		return nil
	}
	handler := f.Handler()
	if handler == nil {
		return nil
	}

	m := f.normalize(event.Event)
	if m == nil {
		return nil
	}

	logger.WithFields(logrus.Fields{
		"platform":    PlatformFeishu,
		"user_id":     m.SenderID,
		"chat_id":     m.ChatID,
		"message_id":  m.ID,
		"content_len": len(m.Body),
	}).Debug("received-feishu-message-event-parsed")

	handler(inbound.Batch{Type: inbound.BatchNotify, Messages: []*message.Message{m}})
	return nil
}

// normalize builds a Message from a receive event; nil for non-text messages
func (f *FeishuBot) normalize(ev *larkim.P2MessageReceiveV1Data) *message.Message {
	em := ev.Message
	if larkcore.StringValue(em.MessageType) != larkim.MsgTypeText {
		return nil
	}
	body := stripMentions(extractTextContent(larkcore.StringValue(em.Content)), em.Mentions)
	if body == "" {
		return nil
	}

	messageID := larkcore.StringValue(em.MessageId)
	m := message.New(message.ReplyFunc(func(ctx context.Context, content string) error {
		return f.reply(ctx, messageID, content)
	}), nil)

	m.ID = messageID
	m.Platform = PlatformFeishu
	m.ChatID = larkcore.StringValue(em.ChatId)
	m.Body = body
	m.IsGroup = larkcore.StringValue(em.ChatType) == "group"
	m.IsQuoted = larkcore.StringValue(em.ParentId) != ""
	m.Timestamp = parseMillis(larkcore.StringValue(em.CreateTime))

	if ev.Sender != nil && ev.Sender.SenderId != nil {
		m.SenderID = larkcore.StringValue(ev.Sender.SenderId.UserId)
		if m.SenderID == "" {
			m.SenderID = larkcore.StringValue(ev.Sender.SenderId.OpenId)
		}
	}
	return m
}

func (f *FeishuBot) messenger() (FeishuMessenger, context.Context) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ctx := f.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return f.Messenger, ctx
}

func (f *FeishuBot) reply(ctx context.Context, messageID, text string) error {
	messenger, _ := f.messenger()
	if messenger == nil {
		return errNotStarted(PlatformFeishu)
	}
	content, err := textContent(truncate(PlatformFeishu, text, constants.MaxFeishuMessageLength))
	if err != nil {
		return err
	}

	req := larkim.NewReplyMessageReqBuilder().
		MessageId(messageID).
		Body(larkim.NewReplyMessageReqBodyBuilder().
			MsgType(larkim.MsgTypeText).
			Content(content).
			Build()).
		Build()

	resp, err := messenger.Reply(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to reply to message %s: %w", messageID, err)
	}
	if !resp.Success() {
		return fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}
	return nil
}

// Send sends a message to a Feishu chat
func (f *FeishuBot) Send(chatID, text string) error {
	messenger, ctx := f.messenger()
	if messenger == nil {
		return errNotStarted(PlatformFeishu)
	}
	if chatID == "" {
		return fmt.Errorf("chat ID is required for Feishu")
	}

	content, err := textContent(truncate(PlatformFeishu, text, constants.MaxFeishuMessageLength))
	if err != nil {
		return err
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(larkim.ReceiveIdTypeChatId).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(chatID).
			MsgType(larkim.MsgTypeText).
			Content(content).
			Build()).
		Build()

	resp, err := messenger.Create(ctx, req)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"chat_id": chatID,
			"error":   err,
		}).Error("failed-to-send-message-to-feishu")
		return fmt.Errorf("failed to send message to chat %s: %w", chatID, err)
	}
	if !resp.Success() {
		logger.WithFields(logrus.Fields{
			"chat_id": chatID,
			"code":    resp.Code,
			"msg":     resp.Msg,
		}).Error("failed-to-send-message-to-feishu-api-error")
		return fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	logger.WithField("chat_id", chatID).Debug("message-sent-to-feishu")
	return nil
}

// GroupMetadata returns the owner and managers of a chat, identified by
// user_id to match message senders. Ordinary members are not listed.
func (f *FeishuBot) GroupMetadata(ctx context.Context, chatID string) (*groups.Metadata, error) {
	f.mu.RLock()
	chats := f.Chats
	f.mu.RUnlock()
	if chats == nil {
		return nil, errNotStarted(PlatformFeishu)
	}

	req := larkim.NewGetChatReqBuilder().
		ChatId(chatID).
		UserIdType("user_id").
		Build()
	resp, err := chats.Get(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("get chat %s: %w", chatID, err)
	}
	if !resp.Success() {
		return nil, fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}
	if resp.Data == nil {
		return nil, nil
	}

	meta := &groups.Metadata{ID: chatID, Subject: larkcore.StringValue(resp.Data.Name)}
	owner := larkcore.StringValue(resp.Data.OwnerId)
	if owner != "" {
		meta.Participants = append(meta.Participants, groups.Participant{ID: owner, Admin: groups.RoleSuperAdmin})
	}
	for _, id := range resp.Data.UserManagerIdList {
		if id == "" || id == owner {
			continue
		}
		meta.Participants = append(meta.Participants, groups.Participant{ID: id, Admin: groups.RoleAdmin})
	}
	return meta, nil
}

// Stop closes the Feishu WebSocket connection and cleans up resources
func (f *FeishuBot) Stop() error {
	f.mu.Lock()
	cancel := f.cancel
	f.cancel = nil
	f.mu.Unlock()

	// ws.Client has no Stop method; the connection ends with its context
	if cancel != nil {
		cancel()
	}
	logger.Info("feishu-bot-stopped")
	return nil
}

// SetHandler sets the batch handler in a thread-safe manner
func (f *FeishuBot) SetHandler(handler BatchHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = handler
}

// Handler gets the batch handler in a thread-safe manner
func (f *FeishuBot) Handler() BatchHandler {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.handler
}

// extractTextContent extracts the text field of a Feishu text message,
// whose content is JSON like {"text":"actual message"}
func extractTextContent(content string) string {
	var payload struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return content
	}
	return payload.Text
}

// stripMentions removes @-mention placeholders such as "@_user_1"
func stripMentions(text string, mentions []*larkim.MentionEvent) string {
	for _, mention := range mentions {
		if mention == nil || mention.Key == nil {
			continue
		}
		text = strings.ReplaceAll(text, *mention.Key, "")
	}
	return strings.TrimSpace(text)
}

func textContent(text string) (string, error) {
	b, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return "", fmt.Errorf("encode feishu content: %w", err)
	}
	return string(b), nil
}

func parseMillis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms <= 0 {
		return time.Now()
	}
	return time.UnixMilli(ms)
}
