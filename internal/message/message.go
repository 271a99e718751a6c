// Package message defines the normalized inbound message the dispatcher works on.
//
// Transports build a Message for every inbound chat event; the inbound router then
// fills in the command fields with Parse. Once enqueued a Message is treated as
// read-only by the dispatch engine.
package message

import (
	"context"
	"strings"
	"time"
)

// Replier sends a text reply into the chat a message came from
type Replier interface {
	Reply(ctx context.Context, content string) error
}

// Reactor attaches an emoji reaction to the originating message
type Reactor interface {
	React(ctx context.Context, emoji string) error
}

// ReplyFunc adapts a function to Replier
type ReplyFunc func(ctx context.Context, content string) error

func (f ReplyFunc) Reply(ctx context.Context, content string) error { return f(ctx, content) }

// ReactFunc adapts a function to Reactor
type ReactFunc func(ctx context.Context, emoji string) error

func (f ReactFunc) React(ctx context.Context, emoji string) error { return f(ctx, emoji) }

// Message is a normalized inbound chat message
type Message struct {
	ID         string
	Platform   string // telegram/discord/feishu/dingtalk
	ChatID     string // group or private chat identifier
	SenderID   string // platform user id
	SenderName string
	BotID      string // the bot's own account, for bot-admin checks
	Body       string
	Timestamp  time.Time

	IsGroup    bool
	IsOwner    bool
	IsBotAdmin bool
	IsQuoted   bool

	// Command fields, filled by Parse
	IsCommand bool
	Prefix    string
	Command   string // lower-cased
	Args      []string
	Text      string // args joined by a single space

	replier Replier
	reactor Reactor
}

// New creates a message bound to its reply and (optional) react capabilities
func New(replier Replier, reactor Reactor) *Message {
	return &Message{replier: replier, reactor: reactor}
}

// Reply sends content back to the originating chat
func (m *Message) Reply(ctx context.Context, content string) error {
	if m.replier == nil {
		return ErrNoReplier
	}
	return m.replier.Reply(ctx, content)
}

// CanReact reports whether the transport supports reactions for this message
func (m *Message) CanReact() bool {
	return m.reactor != nil
}

// React adds an emoji reaction; a no-op when the transport has no reactions
func (m *Message) React(ctx context.Context, emoji string) error {
	if m.reactor == nil {
		return nil
	}
	return m.reactor.React(ctx, emoji)
}

// SenderKey is the sender identity scoped by platform. Lanes, cooldowns
// and quotas are keyed by it.
func (m *Message) SenderKey() string {
	if m.Platform == "" {
		return m.SenderID
	}
	return m.Platform + ":" + m.SenderID
}

// DedupKey identifies rapid double submissions of the same command
func (m *Message) DedupKey() string {
	return m.Command + "\x00" + strings.Join(m.Args, "\x1f")
}
