package dispatch

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/keepmind9/botkit/internal/groups"
	"github.com/keepmind9/botkit/internal/limit"
	"github.com/keepmind9/botkit/internal/logger"
	"github.com/keepmind9/botkit/internal/message"
	"github.com/keepmind9/botkit/internal/plugin"
	"github.com/keepmind9/botkit/pkg/constants"
	"github.com/sirupsen/logrus"
)

// Block is a policy rejection. It is a normal outcome, not an error.
type Block struct {
	Check string
	Reply string
	Emoji string
}

// Check inspects a (handler, message) pair and returns a Block to stop dispatch
type Check func(ctx context.Context, h *plugin.Handler, msg *message.Message) *Block

// GroupLookup resolves group metadata; *groups.Directory implements it
type GroupLookup interface {
	Lookup(ctx context.Context, platform, groupID string) (*groups.Metadata, error)
}

// Pipeline replies shown to users
const (
	replyGroupOnly        = "🚫 Group-only command"
	replyPrivateOnly      = "🚫 Private-chat only command"
	replyExperimental     = "🚧 Experimental feature disabled"
	replyOwnerOnly        = "🔒 Owner-only command"
	replyAdminOnly        = "👮‍♂️ Admin-only command"
	replyBotAdmin         = "🤖 Bot needs admin privileges"
	replyGroupUnavailable = "⚠️ Unable to verify group permissions, try again later"
)

// PipelineConfig holds the collaborators the checks consult
type PipelineConfig struct {
	Cooldown            *limit.Cooldown
	Usage               *limit.Usage
	Groups              GroupLookup
	ExperimentalEnabled bool
}

type namedCheck struct {
	name  string
	check Check
}

// Pipeline runs the gating checks in a fixed order: cooldown, environment,
// permission, usage shape, daily quota. The first block wins.
type Pipeline struct {
	cfg    PipelineConfig
	checks []namedCheck
	now    func() time.Time
}

// NewPipeline creates the standard pipeline
func NewPipeline(cfg PipelineConfig) *Pipeline {
	p := &Pipeline{cfg: cfg, now: time.Now}
	p.checks = []namedCheck{
		{"cooldown", p.checkCooldown},
		{"environment", p.checkEnvironment},
		{"permission", p.checkPermission},
		{"usage", p.checkUsage},
		{"quota", p.checkQuota},
	}
	return p
}

// Names lists the checks in execution order
func (p *Pipeline) Names() []string {
	out := make([]string, len(p.checks))
	for i, c := range p.checks {
		out[i] = c.name
	}
	return out
}

// Run executes the checks. On a block it replies, reacts when the handler
// wants reactions, and returns the block; nil means the command may run.
func (p *Pipeline) Run(ctx context.Context, h *plugin.Handler, msg *message.Message) *Block {
	for _, c := range p.checks {
		b := c.check(ctx, h, msg)
		if b == nil {
			continue
		}
		if b.Check == "" {
			b.Check = c.name
		}
		logger.WithFields(logrus.Fields{
			"check":   b.Check,
			"handler": h.Name,
			"sender":  msg.SenderKey(),
			"chat":    msg.ChatID,
		}).Info("command-blocked")

		if err := msg.Reply(ctx, b.Reply); err != nil {
			logger.WithFields(logrus.Fields{
				"handler": h.Name,
				"error":   err,
			}).Warn("failed-to-send-block-reply")
		}
		if h.React && b.Emoji != "" {
			react(ctx, msg, b.Emoji)
		}
		return b
	}
	return nil
}

func (p *Pipeline) checkCooldown(_ context.Context, h *plugin.Handler, msg *message.Message) *Block {
	if h.Cooldown <= 0 || p.cfg.Cooldown == nil {
		return nil
	}
	st := p.cfg.Cooldown.Check(msg.SenderKey(), h.Name)
	if !st.Blocked {
		return nil
	}
	seconds := int(math.Ceil(st.Remaining.Seconds()))
	return &Block{
		Reply: fmt.Sprintf("⏳ Cooldown active! Please wait *%ds* before using *%s* again", seconds, h.Canonical()),
		Emoji: constants.EmojiCooldown,
	}
}

func (p *Pipeline) checkEnvironment(_ context.Context, h *plugin.Handler, msg *message.Message) *Block {
	var reply string
	switch {
	case h.GroupOnly && !msg.IsGroup:
		reply = replyGroupOnly
	case h.PrivateOnly && msg.IsGroup:
		reply = replyPrivateOnly
	case h.Experimental && !p.cfg.ExperimentalEnabled:
		reply = replyExperimental
	default:
		return nil
	}
	return &Block{Reply: reply, Emoji: constants.EmojiFailure}
}

func (p *Pipeline) checkPermission(ctx context.Context, h *plugin.Handler, msg *message.Message) *Block {
	switch h.Role {
	case plugin.RoleOwner:
		if !msg.IsOwner {
			return &Block{Reply: replyOwnerOnly, Emoji: constants.EmojiFailure}
		}
	case plugin.RoleAdmin:
		if msg.IsOwner {
			break
		}
		if !msg.IsGroup {
			return &Block{Reply: replyAdminOnly, Emoji: constants.EmojiFailure}
		}
		isAdmin, err := p.senderIsAdmin(ctx, msg)
		if err != nil {
			// never grant elevated access on missing data
			return &Block{Reply: replyGroupUnavailable, Emoji: constants.EmojiFailure}
		}
		if !isAdmin {
			return &Block{Reply: replyAdminOnly, Emoji: constants.EmojiFailure}
		}
	}

	if h.BotMustBeAdmin && msg.IsGroup && !msg.IsBotAdmin {
		if msg.BotID == "" {
			return &Block{Reply: replyBotAdmin, Emoji: constants.EmojiFailure}
		}
		isAdmin, err := p.isGroupAdmin(ctx, msg, msg.BotID)
		if err != nil {
			return &Block{Reply: replyGroupUnavailable, Emoji: constants.EmojiFailure}
		}
		if !isAdmin {
			return &Block{Reply: replyBotAdmin, Emoji: constants.EmojiFailure}
		}
	}
	return nil
}

func (p *Pipeline) senderIsAdmin(ctx context.Context, msg *message.Message) (bool, error) {
	return p.isGroupAdmin(ctx, msg, msg.SenderID)
}

func (p *Pipeline) isGroupAdmin(ctx context.Context, msg *message.Message, id string) (bool, error) {
	if p.cfg.Groups == nil {
		return false, groups.ErrNoProvider
	}
	meta, err := p.cfg.Groups.Lookup(ctx, msg.Platform, msg.ChatID)
	if err != nil {
		return false, err
	}
	if meta == nil {
		return false, fmt.Errorf("group %s not found", msg.ChatID)
	}
	return meta.IsAdmin(id), nil
}

func (p *Pipeline) checkUsage(_ context.Context, h *plugin.Handler, msg *message.Message) *Block {
	if h.Usage == "" {
		return nil
	}
	needsArgs := strings.Contains(h.Usage, "<")
	needsQuoted := strings.Contains(strings.ToLower(h.Usage), "quoted")

	if (needsArgs && len(msg.Args) == 0 && !msg.IsQuoted) || (needsQuoted && !msg.IsQuoted) {
		return &Block{
			Reply: "📝 Usage:\n```" + h.RenderUsage(msg.Prefix, msg.Command) + "```",
			Emoji: constants.EmojiUsage,
		}
	}
	return nil
}

func (p *Pipeline) checkQuota(_ context.Context, h *plugin.Handler, msg *message.Message) *Block {
	if h.DailyLimit <= 0 || p.cfg.Usage == nil {
		return nil
	}
	_, resetAt, ok := p.cfg.Usage.Consume(msg.SenderKey(), h.Name, h.DailyLimit)
	if ok {
		return nil
	}
	return &Block{
		Reply: fmt.Sprintf("📊 Daily limit reached! (%d/%d)\nResets in %s",
			h.DailyLimit, h.DailyLimit, formatReset(resetAt.Sub(p.now()))),
		Emoji: constants.EmojiQuota,
	}
}

// formatReset renders a duration as "5h 12m" or "42s"
func formatReset(d time.Duration) string {
	if d < time.Second {
		d = time.Second
	}
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

func react(ctx context.Context, msg *message.Message, emoji string) {
	if err := msg.React(ctx, emoji); err != nil {
		logger.WithFields(logrus.Fields{
			"emoji": emoji,
			"error": err,
		}).Debug("failed-to-react")
	}
}
