// Package plugin loads command handlers from manifest sources and keeps the
// active set in an immutable snapshot that is swapped atomically on reload.
package plugin

import (
	"context"
	"strings"
	"time"

	"github.com/keepmind9/botkit/internal/message"
)

// Role is the permission level a handler requires
type Role string

const (
	RoleAll   Role = "all"
	RoleAdmin Role = "admin"
	RoleOwner Role = "owner"
)

func (r Role) valid() bool {
	return r == RoleAll || r == RoleAdmin || r == RoleOwner
}

// Sender is the transport handle a message arrived on
type Sender interface {
	Name() string
	Send(channel, text string) error
}

// Call is the execution context passed to a handler
type Call struct {
	Handler  *Handler
	Message  *message.Message
	Sender   Sender
	Args     []string
	Text     string
	Prefix   string
	Command  string
	IsOwner  bool
	Handlers []*Handler // snapshot the handler was resolved from
}

// Reply is shorthand for Message.Reply
func (c *Call) Reply(ctx context.Context, content string) error {
	return c.Message.Reply(ctx, content)
}

// HandlerFunc is the executable body of a handler
type HandlerFunc func(ctx context.Context, call *Call) error

// Handler is a registered command. It is never mutated once loaded.
type Handler struct {
	Name            string
	Aliases         []string // first alias is canonical
	Description     string
	Usage           string
	Category        string
	Cooldown        time.Duration
	React           bool
	FailureTemplate string
	WaitNotice      string
	DailyLimit      int
	GroupOnly       bool
	PrivateOnly     bool
	Experimental    bool
	Role            Role
	BotMustBeAdmin  bool
	Hidden          bool
	Source          string // manifest path or "builtin"

	Fn HandlerFunc
}

// Canonical returns the first alias
func (h *Handler) Canonical() string {
	return h.Aliases[0]
}

// RenderUsage substitutes $prefix and $command in the usage template
func (h *Handler) RenderUsage(prefix, command string) string {
	if command == "" {
		command = h.Canonical()
	}
	r := strings.NewReplacer("$prefix", prefix, "$command", command)
	return r.Replace(h.Usage)
}

// VisibleTo reports whether the handler should be listed for a user
func (h *Handler) VisibleTo(isOwner bool) bool {
	if h.Hidden {
		return false
	}
	return h.Role != RoleOwner || isOwner
}
