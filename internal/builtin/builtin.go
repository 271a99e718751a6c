// Package builtin provides the handlers compiled into botkit: ping, help,
// mode, reload and queue. Their metadata lives in embedded manifests so they
// load through the same registry path as user handlers.
package builtin

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/keepmind9/botkit/internal/dispatch"
	"github.com/keepmind9/botkit/internal/plugin"
	"github.com/keepmind9/botkit/internal/settings"
)

//go:embed manifests/*.yaml
var manifests embed.FS

// Reloader reloads the handler registry; *plugin.Registry implements it
type Reloader interface {
	Load(ctx context.Context) (int, error)
}

// QueueReporter lists live lanes; *dispatch.Engine implements it
type QueueReporter interface {
	QueueStatus() []dispatch.QueueStatus
}

// ModeStore reads and writes the bot mode; *settings.Store implements it
type ModeStore interface {
	Mode(ctx context.Context) settings.Mode
	SetMode(ctx context.Context, m settings.Mode) error
}

// Deps are the collaborators builtin handlers act on. Nil fields disable the
// corresponding handler body, which then fails with a clear error.
type Deps struct {
	Registry Reloader
	Queues   QueueReporter
	Settings ModeStore
	Now      func() time.Time
}

// Register binds every builtin function into the catalog
func Register(c *plugin.Catalog, deps Deps) error {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	b := &builtins{deps: deps}
	funcs := map[string]plugin.HandlerFunc{
		"ping":   b.ping,
		"help":   b.help,
		"mode":   b.mode,
		"reload": b.reload,
		"queue":  b.queue,
	}
	names := make([]string, 0, len(funcs))
	for n := range funcs {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if err := c.Register(n, funcs[n]); err != nil {
			return fmt.Errorf("register builtin %s: %w", n, err)
		}
	}
	return nil
}

// Source returns the embedded builtin definitions
func Source() (*plugin.StaticSource, error) {
	entries, err := fs.ReadDir(manifests, "manifests")
	if err != nil {
		return nil, fmt.Errorf("read builtin manifests: %w", err)
	}
	var defs []plugin.Definition
	for _, e := range entries {
		p := path.Join("manifests", e.Name())
		data, err := manifests.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read builtin manifest %s: %w", p, err)
		}
		parsed, err := plugin.ParseManifest(data, "builtin:"+e.Name())
		if err != nil {
			return nil, err
		}
		defs = append(defs, parsed...)
	}
	return plugin.NewStaticSource(defs...), nil
}

type builtins struct {
	deps Deps
}

func (b *builtins) ping(ctx context.Context, call *plugin.Call) error {
	latency := time.Duration(0)
	if ts := call.Message.Timestamp; !ts.IsZero() {
		latency = b.deps.Now().Sub(ts)
		if latency < 0 {
			latency = 0
		}
	}
	return call.Reply(ctx, fmt.Sprintf("🏓 Pong! Latency: %dms", latency.Milliseconds()))
}

func (b *builtins) mode(ctx context.Context, call *plugin.Call) error {
	if b.deps.Settings == nil {
		return fmt.Errorf("settings store not configured")
	}
	usage := call.Handler.RenderUsage(call.Prefix, "")

	if len(call.Args) == 0 {
		current := b.deps.Settings.Mode(ctx)
		return call.Reply(ctx, fmt.Sprintf("Current bot mode: *%s*\n\nUsage:\n%s\n\nExample:\n%s%s group",
			current, usage, call.Prefix, call.Handler.Canonical()))
	}

	m, err := settings.ParseMode(call.Args[0])
	if err != nil {
		return call.Reply(ctx, "Available options: self, group, private, public")
	}
	if err := b.deps.Settings.SetMode(ctx, m); err != nil {
		return err
	}
	return call.Reply(ctx, fmt.Sprintf("✅ Bot mode has been updated to *%s*.", m))
}

func (b *builtins) reload(ctx context.Context, call *plugin.Call) error {
	if b.deps.Registry == nil {
		return fmt.Errorf("registry not configured")
	}
	count, err := b.deps.Registry.Load(ctx)
	if err != nil {
		return err
	}
	return call.Reply(ctx, fmt.Sprintf("♻️ Reloaded %d handlers", count))
}

func (b *builtins) queue(ctx context.Context, call *plugin.Call) error {
	if b.deps.Queues == nil {
		return fmt.Errorf("dispatcher not configured")
	}
	lanes := b.deps.Queues.QueueStatus()
	if len(lanes) == 0 {
		return call.Reply(ctx, "📭 No active queues")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📬 *Active queues:* %d\n", len(lanes))
	for _, l := range lanes {
		state := "idle"
		if l.Active {
			state = "running"
		}
		fmt.Fprintf(&sb, "• %s: %d pending (%s)\n", l.SenderID, l.Pending, state)
	}
	return call.Reply(ctx, strings.TrimRight(sb.String(), "\n"))
}
