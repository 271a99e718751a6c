package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/keepmind9/botkit/internal/limit"
	"github.com/keepmind9/botkit/internal/logger"
	"github.com/keepmind9/botkit/internal/plugin"
	"github.com/keepmind9/botkit/pkg/constants"
	"github.com/sirupsen/logrus"
)

var (
	// ErrHandlerTimeout is the context cause when a handler outlives its soft deadline
	ErrHandlerTimeout = errors.New("handler timed out")
	// ErrShuttingDown is the context cause when the engine is stopped before lanes drain
	ErrShuttingDown = errors.New("dispatcher shutting down")
)

// internalError is shown when an error carries no message
const internalError = "Internal error"

// PanicError wraps a value recovered from a panicking handler
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// Executor runs handlers that passed the pipeline and reports the outcome
type Executor struct {
	cooldown *limit.Cooldown
	timeout  time.Duration
}

// NewExecutor creates an executor; timeout <= 0 disables the soft deadline
func NewExecutor(cooldown *limit.Cooldown, timeout time.Duration) *Executor {
	return &Executor{cooldown: cooldown, timeout: timeout}
}

// Execute invokes the handler. Errors and panics are contained: they are
// logged and turned into a failure reply, never returned to the lane.
func (x *Executor) Execute(ctx context.Context, item *Item, h *plugin.Handler, handlers []*plugin.Handler) error {
	msg := item.Message
	fields := logrus.Fields{
		"trace":   item.ID,
		"handler": h.Name,
		"sender":  msg.SenderKey(),
		"name":    msg.SenderName,
	}

	if h.WaitNotice != "" {
		if err := msg.Reply(ctx, h.WaitNotice); err != nil {
			logger.WithFields(fields).WithField("error", err).Warn("failed-to-send-wait-notice")
		}
	}
	if h.React {
		react(ctx, msg, constants.EmojiWorking)
	}

	call := &plugin.Call{
		Handler:  h,
		Message:  msg,
		Sender:   item.Sender,
		Args:     msg.Args,
		Text:     msg.Text,
		Prefix:   msg.Prefix,
		Command:  msg.Command,
		IsOwner:  msg.IsOwner,
		Handlers: handlers,
	}

	logger.WithFields(fields).Info("executing-handler")
	start := time.Now()
	err := x.invoke(ctx, h, call)
	fields["duration_ms"] = time.Since(start).Milliseconds()

	if err != nil {
		x.fail(ctx, h, call, err, fields)
		return err
	}

	if x.cooldown != nil {
		x.cooldown.Arm(msg.SenderKey(), h.Name, h.Cooldown)
	}
	if h.React {
		react(ctx, msg, constants.EmojiSuccess)
	}
	logger.WithFields(fields).Info("handler-executed")
	return nil
}

// invoke calls the handler under the soft deadline and recovers panics. The
// deadline is cooperative: the call still runs to completion so the lane
// stays serial.
func (x *Executor) invoke(ctx context.Context, h *plugin.Handler, call *plugin.Call) (err error) {
	if x.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, x.timeout, ErrHandlerTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()

	err = h.Fn(ctx, call)
	if ctx.Err() != nil && errors.Is(context.Cause(ctx), ErrHandlerTimeout) {
		if err == nil {
			logger.WithField("handler", h.Name).Warn("handler-finished-after-deadline")
			return nil
		}
		return fmt.Errorf("%w: %w", ErrHandlerTimeout, err)
	}
	return err
}

func (x *Executor) fail(ctx context.Context, h *plugin.Handler, call *plugin.Call, err error, fields logrus.Fields) {
	entry := logger.WithFields(fields).WithField("error", err)
	var pe *PanicError
	if errors.As(err, &pe) {
		entry = entry.WithField("stack", string(pe.Stack))
	}
	entry.Error("handler-failed")

	reply := strings.NewReplacer(
		"%command", call.Prefix+call.Command,
		"%error", errorText(err),
	).Replace(h.FailureTemplate)

	if rerr := call.Message.Reply(ctx, reply); rerr != nil {
		logger.WithFields(fields).WithField("error", rerr).Warn("failed-to-send-failure-reply")
	}
	if h.React {
		react(ctx, call.Message, constants.EmojiFailure)
	}
}

// errorText is the top-level message shown to users
func errorText(err error) string {
	var pe *PanicError
	if errors.As(err, &pe) {
		return internalError
	}
	if errors.Is(err, ErrHandlerTimeout) {
		return ErrHandlerTimeout.Error()
	}
	text := strings.TrimSpace(err.Error())
	if text == "" {
		return internalError
	}
	return text
}
