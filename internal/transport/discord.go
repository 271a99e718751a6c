package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/keepmind9/botkit/internal/groups"
	"github.com/keepmind9/botkit/internal/inbound"
	"github.com/keepmind9/botkit/internal/logger"
	"github.com/keepmind9/botkit/internal/message"
	"github.com/keepmind9/botkit/pkg/constants"
	"github.com/sirupsen/logrus"
)

// DiscordSession defines the interface we need from discordgo.Session.
// This allows us to mock it in tests without depending on concrete types.
type DiscordSession interface {
	AddHandler(handler interface{}) func()
	Open() error
	Close() error
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendReply(channelID string, content string, reference *discordgo.MessageReference, options ...discordgo.RequestOption) (*discordgo.Message, error)
	MessageReactionAdd(channelID, messageID, emojiID string, options ...discordgo.RequestOption) error
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	Guild(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error)
	GuildMembers(guildID, after string, limit int, options ...discordgo.RequestOption) ([]*discordgo.Member, error)
}

// discordMemberPage is the largest page GuildMembers accepts
const discordMemberPage = 1000

// DiscordBot implements Adapter for Discord
type DiscordBot struct {
	mu        sync.RWMutex
	Token     string
	ChannelID string // default channel for Send without a target
	Session   DiscordSession
	handler   BatchHandler
}

// NewDiscordBot creates a new Discord bot instance
func NewDiscordBot(token, channelID string) *DiscordBot {
	return &DiscordBot{
		Token:     token,
		ChannelID: channelID,
	}
}

// Name returns the platform name
func (d *DiscordBot) Name() string { return PlatformDiscord }

// Start establishes connection to Discord and begins listening for messages
func (d *DiscordBot) Start(handler BatchHandler) error {
	d.SetHandler(handler)

	logger.WithFields(logrus.Fields{
		"token":   maskSecret(d.Token),
		"channel": d.ChannelID,
	}).Info("starting-discord-bot")

	d.mu.Lock()
	if d.Session == nil {
		session, err := discordgo.New("Bot " + d.Token)
		if err != nil {
			d.mu.Unlock()
			return fmt.Errorf("failed to create discord session: %w", err)
		}
		d.Session = session
	}
	session := d.Session
	d.mu.Unlock()

	session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		d.handleMessageCreate(s, m)
	})

	if err := session.Open(); err != nil {
		return fmt.Errorf("failed to open discord connection: %w", err)
	}
	return nil
}

func (d *DiscordBot) handleMessageCreate(s *discordgo.Session, mc *discordgo.MessageCreate) {
	if mc == nil || mc.Message == nil || mc.Author == nil || mc.Author.Bot {
		return
	}
	handler := d.Handler()
	if handler == nil || mc.Content == "" {
		return
	}

	msg := d.normalize(mc.Message)
	if s != nil && s.State != nil && s.State.User != nil {
		msg.BotID = s.State.User.ID
	}

	logger.WithFields(logrus.Fields{
		"platform": PlatformDiscord,
		"user_id":  mc.Author.ID,
		"username": mc.Author.Username,
		"channel":  mc.ChannelID,
		"guild":    mc.GuildID,
	}).Debug("received-discord-message")

	handler(inbound.Batch{Type: inbound.BatchNotify, Messages: []*message.Message{msg}})
}

func (d *DiscordBot) normalize(dm *discordgo.Message) *message.Message {
	channelID, messageID := dm.ChannelID, dm.ID
	ref := dm.Reference()

	m := message.New(
		message.ReplyFunc(func(ctx context.Context, content string) error {
			return d.reply(channelID, content, ref)
		}),
		message.ReactFunc(func(ctx context.Context, emoji string) error {
			return d.react(channelID, messageID, emoji)
		}),
	)
	m.ID = messageID
	m.Platform = PlatformDiscord
	m.ChatID = channelID
	m.SenderID = dm.Author.ID
	m.SenderName = dm.Author.Username
	m.Body = dm.Content
	m.Timestamp = dm.Timestamp
	m.IsGroup = dm.GuildID != ""
	m.IsQuoted = dm.MessageReference != nil
	return m
}

func (d *DiscordBot) session() DiscordSession {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.Session
}

func (d *DiscordBot) reply(channelID, content string, ref *discordgo.MessageReference) error {
	session := d.session()
	if session == nil {
		return errNotStarted(PlatformDiscord)
	}
	content = truncate(PlatformDiscord, content, constants.MaxDiscordMessageLength)
	if _, err := session.ChannelMessageSendReply(channelID, content, ref); err != nil {
		return fmt.Errorf("failed to reply in channel %s: %w", channelID, err)
	}
	return nil
}

func (d *DiscordBot) react(channelID, messageID, emoji string) error {
	session := d.session()
	if session == nil {
		return errNotStarted(PlatformDiscord)
	}
	if err := session.MessageReactionAdd(channelID, messageID, emoji); err != nil {
		return fmt.Errorf("failed to react to message %s: %w", messageID, err)
	}
	return nil
}

// Send sends a message to a Discord channel
func (d *DiscordBot) Send(channel, text string) error {
	d.mu.RLock()
	session := d.Session
	channelID := d.ChannelID
	d.mu.RUnlock()

	if session == nil {
		return errNotStarted(PlatformDiscord)
	}

	// Use configured channel if not specified
	target := channel
	if target == "" {
		target = channelID
	}
	if target == "" {
		return fmt.Errorf("channel ID is required for Discord")
	}

	text = truncate(PlatformDiscord, text, constants.MaxDiscordMessageLength)
	if _, err := session.ChannelMessageSend(target, text); err != nil {
		logger.WithFields(logrus.Fields{
			"channel": target,
			"error":   err,
		}).Error("failed-to-send-message-to-discord")
		return fmt.Errorf("failed to send message to channel %s: %w", target, err)
	}

	logger.WithField("channel", target).Debug("message-sent-to-discord")
	return nil
}

// GroupMetadata resolves the guild a channel belongs to and lists its members.
// The guild owner is superadmin and members holding a role with the
// Administrator permission are admins. Listing members needs the Server
// Members intent enabled for the bot. Channels outside a guild are unknown.
func (d *DiscordBot) GroupMetadata(ctx context.Context, channelID string) (*groups.Metadata, error) {
	session := d.session()
	if session == nil {
		return nil, errNotStarted(PlatformDiscord)
	}
	opt := discordgo.WithContext(ctx)

	channel, err := session.Channel(channelID, opt)
	if err != nil {
		return nil, fmt.Errorf("get channel %s: %w", channelID, err)
	}
	if channel.GuildID == "" {
		return nil, nil
	}
	guild, err := session.Guild(channel.GuildID, opt)
	if err != nil {
		return nil, fmt.Errorf("get guild %s: %w", channel.GuildID, err)
	}

	adminRoles := make(map[string]bool)
	for _, role := range guild.Roles {
		if role != nil && role.Permissions&discordgo.PermissionAdministrator != 0 {
			adminRoles[role.ID] = true
		}
	}

	meta := &groups.Metadata{ID: channelID, Subject: guild.Name}
	after := ""
	for {
		members, err := session.GuildMembers(guild.ID, after, discordMemberPage, opt)
		if err != nil {
			return nil, fmt.Errorf("list guild members: %w", err)
		}
		for _, member := range members {
			if member == nil || member.User == nil {
				continue
			}
			p := groups.Participant{ID: member.User.ID}
			switch {
			case member.User.ID == guild.OwnerID:
				p.Admin = groups.RoleSuperAdmin
			case hasAdminRole(member.Roles, adminRoles):
				p.Admin = groups.RoleAdmin
			}
			meta.Participants = append(meta.Participants, p)
			after = member.User.ID
		}
		if len(members) < discordMemberPage {
			break
		}
	}
	return meta, nil
}

func hasAdminRole(roles []string, admin map[string]bool) bool {
	for _, id := range roles {
		if admin[id] {
			return true
		}
	}
	return false
}

// Stop closes the Discord connection and cleans up resources
func (d *DiscordBot) Stop() error {
	d.mu.Lock()
	session := d.Session
	d.Session = nil
	d.mu.Unlock()

	if session == nil {
		return nil
	}
	if err := session.Close(); err != nil {
		return fmt.Errorf("failed to close discord session: %w", err)
	}
	logger.Info("discord-bot-stopped")
	return nil
}

// SetHandler sets the batch handler in a thread-safe manner
func (d *DiscordBot) SetHandler(handler BatchHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handler = handler
}

// Handler gets the batch handler in a thread-safe manner
func (d *DiscordBot) Handler() BatchHandler {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.handler
}
