package limit

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// brokenStore fails every call
type brokenStore struct{}

var errBackend = errors.New("backend down")

func (brokenStore) Get(string) (Entry, bool, error) { return Entry{}, false, errBackend }
func (brokenStore) Set(string, Entry) error         { return errBackend }
func (brokenStore) Incr(string, time.Duration, int) (Entry, bool, error) {
	return Entry{}, false, errBackend
}

func TestCooldown_ArmAndExpire(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore()
	store.SetClock(clock.Now)
	cd := NewCooldown(store)
	cd.SetClock(clock.Now)

	assert.False(t, cd.Check("alice", "ping").Blocked)

	cd.Arm("alice", "ping", 5*time.Second)
	st := cd.Check("alice", "ping")
	require.True(t, st.Blocked)
	assert.Equal(t, 5*time.Second, st.Remaining)

	// other sender and other handler are unaffected
	assert.False(t, cd.Check("bob", "ping").Blocked)
	assert.False(t, cd.Check("alice", "help").Blocked)

	clock.Advance(3 * time.Second)
	assert.Equal(t, 2*time.Second, cd.Check("alice", "ping").Remaining)

	clock.Advance(2 * time.Second)
	assert.False(t, cd.Check("alice", "ping").Blocked)
}

func TestCooldown_ArmIgnoresNonPositive(t *testing.T) {
	store := NewMemoryStore()
	cd := NewCooldown(store)
	cd.Arm("alice", "ping", 0)
	assert.Equal(t, 0, store.Len())
}

func TestUsage_FixedWindow(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore()
	store.SetClock(clock.Now)
	u := NewUsage(store)

	assert.Equal(t, 1, u.Increment("alice", "dl"))
	clock.Advance(23 * time.Hour)
	// increments do not slide the window
	assert.Equal(t, 2, u.Increment("alice", "dl"))
	assert.Equal(t, 2, u.Get("alice", "dl"))

	clock.Advance(time.Hour)
	assert.Equal(t, 0, u.Get("alice", "dl"))
	assert.Equal(t, 1, u.Increment("alice", "dl"))
}

func TestUsage_Consume(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore()
	store.SetClock(clock.Now)
	u := NewUsage(store)

	for i := 1; i <= 3; i++ {
		count, _, ok := u.Consume("alice", "dl", 3)
		require.True(t, ok, "use %d should be allowed", i)
		assert.Equal(t, i, count)
	}

	count, resetAt, ok := u.Consume("alice", "dl", 3)
	assert.False(t, ok)
	assert.Equal(t, 3, count, "a rejected use must not bump the counter")
	assert.Equal(t, clock.Now().Add(24*time.Hour), resetAt)

	clock.Advance(24 * time.Hour)
	_, _, ok = u.Consume("alice", "dl", 3)
	assert.True(t, ok)
}

func TestUsage_ConsumeConcurrent(t *testing.T) {
	u := NewUsage(NewMemoryStore())

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, ok := u.Consume("alice", "dl", 10); ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, allowed)
	assert.Equal(t, 10, u.Get("alice", "dl"))
}

func TestCooldownAndUsage_ShareStore(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore()
	store.SetClock(clock.Now)
	cd := NewCooldown(store)
	cd.SetClock(clock.Now)
	u := NewUsage(store)

	_, _, ok := u.Consume("alice", "echo", 2)
	require.True(t, ok)
	assert.False(t, cd.Check("alice", "echo").Blocked, "usage window is not a cooldown")

	cd.Arm("alice", "echo", 3*time.Second)
	assert.Equal(t, 1, u.Get("alice", "echo"), "arming keeps the usage count")

	clock.Advance(4 * time.Second)
	assert.False(t, cd.Check("alice", "echo").Blocked)
	_, _, ok = u.Consume("alice", "echo", 2)
	require.True(t, ok)
	_, _, ok = u.Consume("alice", "echo", 2)
	assert.False(t, ok)
	assert.Equal(t, 2, store.Len())
}

func TestKey(t *testing.T) {
	assert.NotEqual(t, Key(cooldownNamespace, "alice", "echo"), Key(usageNamespace, "alice", "echo"))
	assert.NotEqual(t, Key(usageNamespace, "a:b", "c"), Key(usageNamespace, "a", "b:c"))
}

func TestFailOpen(t *testing.T) {
	cd := NewCooldown(brokenStore{})
	cd.Arm("alice", "ping", time.Minute)
	assert.False(t, cd.Check("alice", "ping").Blocked)

	u := NewUsage(brokenStore{})
	_, _, ok := u.Consume("alice", "dl", 1)
	assert.True(t, ok)
	assert.Equal(t, 0, u.Increment("alice", "dl"))
	assert.Equal(t, 0, u.Get("alice", "dl"))
}

func TestMemoryStore_Sweep(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore()
	store.SetClock(clock.Now)

	require.NoError(t, store.Set("a", Entry{ExpiresAt: clock.Now().Add(time.Second)}))
	require.NoError(t, store.Set("b", Entry{ExpiresAt: clock.Now().Add(time.Hour)}))

	clock.Advance(time.Minute)
	assert.Equal(t, 1, store.Sweep())
	assert.Equal(t, 1, store.Len())
}
