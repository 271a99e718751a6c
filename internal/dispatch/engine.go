// Package dispatch runs commands through per-sender serial lanes. Each lane
// resolves the handler, runs the gating pipeline and executes the handler,
// one item at a time and in arrival order. Lanes of different senders run
// independently.
package dispatch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/keepmind9/botkit/internal/logger"
	"github.com/keepmind9/botkit/internal/message"
	"github.com/keepmind9/botkit/internal/plugin"
	"github.com/keepmind9/botkit/pkg/constants"
	"github.com/sirupsen/logrus"
)

// replyBusy is sent when a sender's lane is full
const replyBusy = "⏳ You have too many pending commands, please try again later"

// EnqueueResult tells the caller what happened to a submitted message
type EnqueueResult int

const (
	// Queued means the item was appended to the sender's lane
	Queued EnqueueResult = iota
	// Duplicate means an identical command is already pending for the sender
	Duplicate
	// Busy means the lane reached its maximum depth
	Busy
	// Rejected means the message is not a command or the engine is stopping
	Rejected
)

func (r EnqueueResult) String() string {
	switch r {
	case Queued:
		return "queued"
	case Duplicate:
		return "duplicate"
	case Busy:
		return "busy"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("EnqueueResult(%d)", int(r))
	}
}

// Item is one queued command
type Item struct {
	ID         string // trace id
	Sender     plugin.Sender
	Message    *message.Message
	EnqueuedAt time.Time
}

// QueueStatus describes one sender lane
type QueueStatus struct {
	SenderID string `json:"sender_id"`
	Pending  int    `json:"pending"`
	Active   bool   `json:"active"`
}

// Resolver provides the active handler snapshot; *plugin.Registry implements it
type Resolver interface {
	Snapshot() *plugin.Snapshot
}

// Options tunes the engine
type Options struct {
	MaxQueueDepth int
}

type lane struct {
	senderID string
	pending  []*Item
	active   *Item
}

// Engine owns the per-sender lanes
type Engine struct {
	resolver Resolver
	pipeline *Pipeline
	executor *Executor
	maxDepth int

	mu     sync.Mutex
	lanes  map[string]*lane
	closed bool
	wg     sync.WaitGroup

	ctx    context.Context
	cancel context.CancelCauseFunc
}

// NewEngine creates an engine. Zero options use the defaults.
func NewEngine(resolver Resolver, pipeline *Pipeline, executor *Executor, opts Options) *Engine {
	if opts.MaxQueueDepth <= 0 {
		opts.MaxQueueDepth = constants.DefaultMaxQueueDepth
	}
	ctx, cancel := context.WithCancelCause(context.Background())
	return &Engine{
		resolver: resolver,
		pipeline: pipeline,
		executor: executor,
		maxDepth: opts.MaxQueueDepth,
		lanes:    make(map[string]*lane),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Enqueue appends msg to its sender's lane and returns immediately
func (e *Engine) Enqueue(sender plugin.Sender, msg *message.Message) EnqueueResult {
	if msg == nil || !msg.IsCommand || msg.SenderID == "" {
		return Rejected
	}
	senderKey := msg.SenderKey()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		logger.WithField("sender", senderKey).Warn("enqueue-rejected-engine-stopping")
		return Rejected
	}

	l, exists := e.lanes[senderKey]
	if exists {
		key := msg.DedupKey()
		for _, it := range l.pending {
			if it.Message.DedupKey() == key {
				e.mu.Unlock()
				logger.WithFields(logrus.Fields{
					"sender":  senderKey,
					"command": msg.Command,
				}).Debug("duplicate-command-dropped")
				return Duplicate
			}
		}
		if len(l.pending) >= e.maxDepth {
			e.mu.Unlock()
			logger.WithFields(logrus.Fields{
				"sender":  senderKey,
				"pending": e.maxDepth,
			}).Warn("sender-queue-full")
			go e.replyBusy(msg)
			return Busy
		}
	} else {
		l = &lane{senderID: senderKey}
		e.lanes[senderKey] = l
	}

	item := &Item{
		ID:         uuid.NewString(),
		Sender:     sender,
		Message:    msg,
		EnqueuedAt: time.Now(),
	}
	l.pending = append(l.pending, item)
	if !exists {
		e.wg.Add(1)
		go e.drain(l)
	}
	e.mu.Unlock()

	logger.WithFields(logrus.Fields{
		"trace":   item.ID,
		"sender":  senderKey,
		"command": msg.Command,
	}).Debug("command-queued")
	return Queued
}

func (e *Engine) replyBusy(msg *message.Message) {
	ctx, cancel := context.WithTimeout(e.ctx, constants.DefaultSendTimeout)
	defer cancel()
	if err := msg.Reply(ctx, replyBusy); err != nil {
		logger.WithFields(logrus.Fields{
			"sender": msg.SenderKey(),
			"error":  err,
		}).Warn("failed-to-send-busy-reply")
	}
}

// drain processes a lane until it is empty, then removes it
func (e *Engine) drain(l *lane) {
	defer e.wg.Done()
	for {
		e.mu.Lock()
		if len(l.pending) == 0 {
			l.active = nil
			delete(e.lanes, l.senderID)
			e.mu.Unlock()
			return
		}
		item := l.pending[0]
		l.pending[0] = nil
		l.pending = l.pending[1:]
		l.active = item
		e.mu.Unlock()

		e.process(item)
	}
}

// process handles one item. Nothing escapes it: the lane always moves on.
func (e *Engine) process(item *Item) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithFields(logrus.Fields{
				"trace":  item.ID,
				"sender": item.Message.SenderKey(),
				"panic":  r,
			}).Error("lane-item-panic-recovered")
		}
	}()

	msg := item.Message
	snap := e.resolver.Snapshot()
	h := snap.Resolve(msg.Command)
	if h == nil {
		logger.WithFields(logrus.Fields{
			"trace":   item.ID,
			"command": msg.Command,
		}).Debug("unknown-command-skipped")
		return
	}

	ctx := e.ctx
	if e.pipeline != nil {
		if blk := e.pipeline.Run(ctx, h, msg); blk != nil {
			return
		}
	}
	_ = e.executor.Execute(ctx, item, h, snap.Handlers())
}

// QueueStatus lists the live lanes sorted by sender
func (e *Engine) QueueStatus() []QueueStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]QueueStatus, 0, len(e.lanes))
	for id, l := range e.lanes {
		out = append(out, QueueStatus{
			SenderID: id,
			Pending:  len(l.pending),
			Active:   l.active != nil,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SenderID < out[j].SenderID })
	return out
}

// Shutdown stops accepting commands and waits for the lanes to drain. If ctx
// ends first, running handlers see their context cancelled with
// ErrShuttingDown and ctx's error is returned.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.cancel(ErrShuttingDown)
		logger.Info("dispatcher-drained")
		return nil
	case <-ctx.Done():
		e.cancel(ErrShuttingDown)
		logger.WithField("lanes", len(e.QueueStatus())).Warn("dispatcher-shutdown-timed-out")
		return ctx.Err()
	}
}
