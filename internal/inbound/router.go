// Package inbound turns transport event batches into dispatcher work: it
// filters event types, recognises owners, parses command prefixes and
// applies the bot mode before enqueueing.
package inbound

import (
	"context"

	"github.com/keepmind9/botkit/internal/dispatch"
	"github.com/keepmind9/botkit/internal/logger"
	"github.com/keepmind9/botkit/internal/message"
	"github.com/keepmind9/botkit/internal/plugin"
	"github.com/keepmind9/botkit/internal/settings"
	"github.com/sirupsen/logrus"
)

// Batch types delivered by transports
const (
	// BatchNotify carries fresh messages and is the only type dispatched
	BatchNotify = "notify"
	// BatchAppend carries history or sync backfill
	BatchAppend = "append"
)

// Batch is one delivery of events from a transport
type Batch struct {
	Type     string
	Messages []*message.Message
}

// Access answers identity questions; *core.Config implements it
type Access interface {
	IsOwner(platform, userID string) bool
	IsUserAuthorized(platform, userID string) bool
}

// Enqueuer accepts parsed commands; *dispatch.Engine implements it
type Enqueuer interface {
	Enqueue(sender plugin.Sender, msg *message.Message) dispatch.EnqueueResult
}

// ModeSource provides the current bot mode; *settings.Store implements it
type ModeSource interface {
	Mode(ctx context.Context) settings.Mode
}

// Router routes inbound batches to the dispatcher
type Router struct {
	prefixes []string
	access   Access
	queue    Enqueuer
	modes    ModeSource
}

// NewRouter creates a router. modes may be nil, meaning public mode.
func NewRouter(prefixes []string, access Access, queue Enqueuer, modes ModeSource) *Router {
	return &Router{prefixes: prefixes, access: access, queue: queue, modes: modes}
}

// Process handles a batch and returns how many commands were queued
func (r *Router) Process(ctx context.Context, sender plugin.Sender, batch Batch) int {
	if batch.Type != BatchNotify {
		return 0
	}

	mode := settings.ModePublic
	if r.modes != nil {
		mode = r.modes.Mode(ctx)
	}

	queued := 0
	for _, msg := range batch.Messages {
		if r.route(sender, msg, mode) {
			queued++
		}
	}
	return queued
}

func (r *Router) route(sender plugin.Sender, msg *message.Message, mode settings.Mode) (queued bool) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.WithField("panic", rec).Error("inbound-message-panic-recovered")
			queued = false
		}
	}()

	if msg == nil || msg.Body == "" {
		return false
	}

	if r.access != nil {
		if r.access.IsOwner(msg.Platform, msg.SenderID) {
			msg.IsOwner = true
		}
		if !msg.IsOwner && !r.access.IsUserAuthorized(msg.Platform, msg.SenderID) {
			logger.WithFields(logrus.Fields{
				"platform": msg.Platform,
				"user":     msg.SenderID,
			}).Debug("unauthorized-user-ignored")
			return false
		}
	}

	msg.Parse(r.prefixes)
	if !msg.IsCommand {
		return false
	}

	if !mode.Allows(msg.IsOwner, msg.IsGroup) {
		logger.WithFields(logrus.Fields{
			"mode":    mode,
			"user":    msg.SenderID,
			"command": msg.Command,
		}).Debug("command-ignored-by-mode")
		return false
	}

	fields := logrus.Fields{
		"platform": msg.Platform,
		"chat":     msg.ChatID,
		"user":     msg.SenderID,
		"command":  msg.Command,
	}
	result := r.queue.Enqueue(sender, msg)
	logger.WithFields(fields).WithField("result", result.String()).Info("command-received")
	return result == dispatch.Queued
}
