package builtin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/keepmind9/botkit/internal/dispatch"
	"github.com/keepmind9/botkit/internal/message"
	"github.com/keepmind9/botkit/internal/plugin"
	"github.com/keepmind9/botkit/internal/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModes struct {
	mode settings.Mode
	err  error
}

func (f *fakeModes) Mode(context.Context) settings.Mode { return f.mode }

func (f *fakeModes) SetMode(_ context.Context, m settings.Mode) error {
	if f.err != nil {
		return f.err
	}
	f.mode = m
	return nil
}

type fakeQueues []dispatch.QueueStatus

func (f fakeQueues) QueueStatus() []dispatch.QueueStatus { return f }

type fakeReloader struct {
	count int
	err   error
}

func (f fakeReloader) Load(context.Context) (int, error) { return f.count, f.err }

func setup(t *testing.T, deps Deps, extra ...plugin.Definition) *plugin.Registry {
	t.Helper()
	catalog := plugin.NewCatalog()
	require.NoError(t, Register(catalog, deps))
	require.NoError(t, catalog.Register("noop", func(context.Context, *plugin.Call) error { return nil }))

	src, err := Source()
	require.NoError(t, err)
	reg := plugin.NewRegistry(plugin.MultiSource{src, plugin.NewStaticSource(extra...)}, catalog)
	_, err = reg.Load(context.Background())
	require.NoError(t, err)
	return reg
}

func invoke(t *testing.T, reg *plugin.Registry, command string, owner bool, args ...string) []string {
	t.Helper()
	h := reg.Resolve(command)
	require.NotNil(t, h, "handler %s", command)

	var replies []string
	m := message.New(message.ReplyFunc(func(_ context.Context, content string) error {
		replies = append(replies, content)
		return nil
	}), nil)
	m.Timestamp = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	err := h.Fn(context.Background(), &plugin.Call{
		Handler:  h,
		Message:  m,
		Args:     args,
		Prefix:   "!",
		Command:  command,
		IsOwner:  owner,
		Handlers: reg.List(),
	})
	require.NoError(t, err)
	return replies
}

func TestSource_Builtins(t *testing.T) {
	reg := setup(t, Deps{})
	for _, name := range []string{"ping", "help", "mode", "reload", "queue"} {
		assert.NotNil(t, reg.Resolve(name), name)
	}
	assert.Equal(t, "ping", reg.Resolve("p").Name)
	assert.Equal(t, plugin.RoleOwner, reg.Resolve("mode").Role)
	assert.Equal(t, 5*time.Second, reg.Resolve("help").Cooldown)
	assert.Empty(t, reg.Resolve("reload").WaitNotice)
}

func TestPing(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, int(42*time.Millisecond), time.UTC)
	reg := setup(t, Deps{Now: func() time.Time { return now }})
	assert.Equal(t, []string{"🏓 Pong! Latency: 42ms"}, invoke(t, reg, "ping", false))
}

func TestMode(t *testing.T) {
	modes := &fakeModes{mode: settings.ModePublic}
	reg := setup(t, Deps{Settings: modes})

	out := invoke(t, reg, "mode", true)
	require.Len(t, out, 1)
	assert.Contains(t, out[0], "Current bot mode: *public*")
	assert.Contains(t, out[0], "!mode [self|group|private|public]")

	assert.Equal(t, []string{"✅ Bot mode has been updated to *group*."}, invoke(t, reg, "mode", true, "GROUP"))
	assert.Equal(t, settings.ModeGroup, modes.mode)

	assert.Equal(t, []string{"Available options: self, group, private, public"}, invoke(t, reg, "mode", true, "everyone"))
	assert.Equal(t, settings.ModeGroup, modes.mode)
}

func TestMode_StoreErrorPropagates(t *testing.T) {
	reg := setup(t, Deps{Settings: &fakeModes{err: errors.New("disk full")}})
	h := reg.Resolve("mode")
	err := h.Fn(context.Background(), &plugin.Call{Handler: h, Message: message.New(message.ReplyFunc(func(context.Context, string) error { return nil }), nil), Args: []string{"self"}})
	assert.EqualError(t, err, "disk full")
}

func TestReload(t *testing.T) {
	reg := setup(t, Deps{Registry: fakeReloader{count: 7}})
	assert.Equal(t, []string{"♻️ Reloaded 7 handlers"}, invoke(t, reg, "reload", true))

	failing := setup(t, Deps{Registry: fakeReloader{err: errors.New("unreadable")}})
	h := failing.Resolve("reload")
	err := h.Fn(context.Background(), &plugin.Call{Handler: h, Message: message.New(nil, nil)})
	assert.Error(t, err)
}

func TestQueue(t *testing.T) {
	reg := setup(t, Deps{Queues: fakeQueues{}})
	assert.Equal(t, []string{"📭 No active queues"}, invoke(t, reg, "queue", true))

	reg = setup(t, Deps{Queues: fakeQueues{
		{SenderID: "alice", Pending: 2, Active: true},
		{SenderID: "bob", Pending: 0, Active: true},
	}})
	assert.Equal(t, []string{"📬 *Active queues:* 2\n• alice: 2 pending (running)\n• bob: 0 pending (running)"},
		invoke(t, reg, "queue", true))
}

func TestHelp(t *testing.T) {
	extra := []plugin.Definition{
		{Name: "download", Aliases: []string{"download", "dl"}, Run: "noop", Category: "tools",
			Description: "Fetch a file", Usage: "$prefix$command <url>", DailyLimit: 3, Group: true},
		{Name: "secret", Aliases: []string{"secret"}, Run: "noop", Hidden: true},
	}
	reg := setup(t, Deps{}, extra...)

	t.Run("overview hides owner and hidden handlers from users", func(t *testing.T) {
		out := invoke(t, reg, "help", false)
		require.Len(t, out, 1)
		assert.Contains(t, out[0], "*Info*")
		assert.Contains(t, out[0], "*!ping* _(alias: p)_")
		assert.Contains(t, out[0], "*!download* _(alias: dl)_")
		assert.NotContains(t, out[0], "!mode")
		assert.NotContains(t, out[0], "!secret")
	})

	t.Run("overview shows owner handlers to owner", func(t *testing.T) {
		out := invoke(t, reg, "help", true)
		assert.Contains(t, out[0], "*Owner*")
		assert.Contains(t, out[0], "!mode")
		assert.NotContains(t, out[0], "!secret")
	})

	t.Run("command detail", func(t *testing.T) {
		out := invoke(t, reg, "help", false, "DL")
		require.Len(t, out, 1)
		assert.Contains(t, out[0], "Command: *download*")
		assert.Contains(t, out[0], "• *Usage:* `!download <url>`")
		assert.Contains(t, out[0], "• *Daily Limit:* 3")
		assert.Contains(t, out[0], "• *Group Only*")
	})

	t.Run("category", func(t *testing.T) {
		out := invoke(t, reg, "help", false, "tools")
		assert.Contains(t, out[0], "*Tools Commands:*")
		assert.Contains(t, out[0], "*!download* _(alias: dl)_: Fetch a file")
	})

	t.Run("owner handler hidden from users", func(t *testing.T) {
		out := invoke(t, reg, "help", false, "mode")
		assert.Contains(t, out[0], "Couldn't find")
	})

	t.Run("not found", func(t *testing.T) {
		out := invoke(t, reg, "help", false, "zzz")
		assert.Contains(t, out[0], "Couldn't find a command or category for *zzz*")
	})
}
