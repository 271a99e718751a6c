package limit

import (
	"time"

	"github.com/keepmind9/botkit/internal/logger"
	"github.com/keepmind9/botkit/pkg/constants"
	"github.com/sirupsen/logrus"
)

// Key namespaces
const (
	cooldownNamespace = "cooldown"
	usageNamespace    = "usage"
)

// Key builds the store key for a sender/handler pair within a namespace, so
// cooldowns and usage counters can share one Store
func Key(namespace, senderID, handlerName string) string {
	return namespace + "|" + senderID + "|" + handlerName
}

// Status is the result of a cooldown check
type Status struct {
	Blocked   bool
	Remaining time.Duration
}

// Cooldown tracks the minimum gap between invocations of a handler by a sender
type Cooldown struct {
	store Store
	now   func() time.Time
}

// NewCooldown creates a cooldown tracker over store
func NewCooldown(store Store) *Cooldown {
	return &Cooldown{store: store, now: time.Now}
}

// SetClock overrides the time source, used by tests
func (c *Cooldown) SetClock(now func() time.Time) {
	c.now = now
}

// Check reports whether sender is still cooling down for handler
func (c *Cooldown) Check(senderID, handlerName string) Status {
	key := Key(cooldownNamespace, senderID, handlerName)
	e, ok, err := c.store.Get(key)
	if err != nil {
		failOpen("cooldown-check", key, err)
		return Status{}
	}
	if !ok {
		return Status{}
	}
	remaining := e.ExpiresAt.Sub(c.now())
	if remaining <= 0 {
		return Status{}
	}
	return Status{Blocked: true, Remaining: remaining}
}

// Arm starts or refreshes the cooldown window for sender and handler
func (c *Cooldown) Arm(senderID, handlerName string, d time.Duration) {
	if d <= 0 {
		return
	}
	key := Key(cooldownNamespace, senderID, handlerName)
	if err := c.store.Set(key, Entry{Count: 1, ExpiresAt: c.now().Add(d)}); err != nil {
		failOpen("cooldown-arm", key, err)
	}
}

// Usage counts invocations of a handler per sender within a rolling window
type Usage struct {
	store  Store
	window time.Duration
}

// NewUsage creates a daily usage counter over store
func NewUsage(store Store) *Usage {
	return &Usage{store: store, window: constants.UsageWindow}
}

// Increment adds one use and returns the new count (0 when the store failed)
func (u *Usage) Increment(senderID, handlerName string) int {
	key := Key(usageNamespace, senderID, handlerName)
	e, _, err := u.store.Incr(key, u.window, 0)
	if err != nil {
		failOpen("usage-increment", key, err)
		return 0
	}
	return e.Count
}

// Get returns the count in the current window
func (u *Usage) Get(senderID, handlerName string) int {
	key := Key(usageNamespace, senderID, handlerName)
	e, ok, err := u.store.Get(key)
	if err != nil {
		failOpen("usage-get", key, err)
		return 0
	}
	if !ok {
		return 0
	}
	return e.Count
}

// Consume records one use unless limit is already reached. It returns the
// count after the attempt, when the window resets and whether the use was
// allowed. A store failure allows the use.
func (u *Usage) Consume(senderID, handlerName string, limit int) (int, time.Time, bool) {
	key := Key(usageNamespace, senderID, handlerName)
	e, ok, err := u.store.Incr(key, u.window, limit)
	if err != nil {
		failOpen("usage-consume", key, err)
		return 0, time.Time{}, true
	}
	return e.Count, e.ExpiresAt, ok
}

func failOpen(op, key string, err error) {
	logger.WithFields(logrus.Fields{
		"op":    op,
		"key":   key,
		"error": err,
	}).Warn("limit-store-failed-allowing-request")
}
