package plugin

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/keepmind9/botkit/internal/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(context.Context, *Call) error { return nil }

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	c := NewCatalog()
	require.NoError(t, c.Register("noop", noop))
	return c
}

func boolPtr(b bool) *bool    { return &b }
func strPtr(s string) *string { return &s }

func newTestMessage(replies *[]string) *message.Message {
	return message.New(message.ReplyFunc(func(_ context.Context, content string) error {
		*replies = append(*replies, content)
		return nil
	}), nil)
}

func TestParseManifest(t *testing.T) {
	t.Run("single definition", func(t *testing.T) {
		data := []byte(`
name: ping
command: [ping, p]
run: noop
cooldown: 5
`)
		defs, err := ParseManifest(data, "ping.yaml")
		require.NoError(t, err)
		require.Len(t, defs, 1)
		assert.Equal(t, "ping", defs[0].Name)
		assert.Equal(t, []string{"ping", "p"}, defs[0].aliases())
		assert.Equal(t, 5, defs[0].Cooldown)
		assert.Equal(t, "ping.yaml", defs[0].Path)
	})

	t.Run("handler list", func(t *testing.T) {
		data := []byte(`
handlers:
  - name: a
    aliases: [a]
    run: noop
  - name: b
    aliases: [b]
    exec: echo b
    wait: ""
`)
		defs, err := ParseManifest(data, "multi.yaml")
		require.NoError(t, err)
		require.Len(t, defs, 2)
		assert.Equal(t, "b", defs[1].Name)
		require.NotNil(t, defs[1].Wait)
		assert.Equal(t, "", *defs[1].Wait)
	})

	t.Run("not a mapping", func(t *testing.T) {
		_, err := ParseManifest([]byte("- a\n- b\n"), "bad.yaml")
		assert.Error(t, err)
	})

	t.Run("empty document", func(t *testing.T) {
		defs, err := ParseManifest([]byte(""), "empty.yaml")
		require.NoError(t, err)
		assert.Empty(t, defs)
	})
}

func TestDefinition_Validate(t *testing.T) {
	tests := []struct {
		name    string
		def     Definition
		wantErr bool
	}{
		{"valid run", Definition{Name: "a", Aliases: []string{"a"}, Run: "noop"}, false},
		{"valid exec", Definition{Name: "a", Command: []string{"a"}, Exec: "true"}, false},
		{"missing name", Definition{Aliases: []string{"a"}, Run: "noop"}, true},
		{"no aliases", Definition{Name: "a", Run: "noop"}, true},
		{"blank alias", Definition{Name: "a", Aliases: []string{" "}, Run: "noop"}, true},
		{"no body", Definition{Name: "a", Aliases: []string{"a"}}, true},
		{"two bodies", Definition{Name: "a", Aliases: []string{"a"}, Run: "noop", Exec: "true"}, true},
		{"bad role", Definition{Name: "a", Aliases: []string{"a"}, Run: "noop", Permissions: "root"}, true},
		{"negative cooldown", Definition{Name: "a", Aliases: []string{"a"}, Run: "noop", Cooldown: -1}, true},
		{"group and private", Definition{Name: "a", Aliases: []string{"a"}, Run: "noop", Group: true, Private: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.def.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefinition_Defaults(t *testing.T) {
	d := Definition{Name: "Ping", Aliases: []string{"PING", "p"}, Run: "noop"}
	h := d.build(noop)

	assert.Equal(t, "Ping", h.Name)
	assert.Equal(t, []string{"ping", "p"}, h.Aliases)
	assert.Equal(t, DefaultDescription, h.Description)
	assert.Equal(t, DefaultCategory, h.Category)
	assert.Equal(t, DefaultFailure, h.FailureTemplate)
	assert.Equal(t, DefaultWaitNotice, h.WaitNotice)
	assert.Equal(t, RoleAll, h.Role)
	assert.True(t, h.React)
	assert.Zero(t, h.Cooldown)

	d2 := Definition{
		Name: "x", Aliases: []string{"x"}, Run: "noop",
		React: boolPtr(false), Wait: strPtr(""), Failed: strPtr("nope %error"),
		Owner: true, Cooldown: 3, Permissions: "ADMIN",
	}
	h2 := d2.build(noop)
	assert.False(t, h2.React)
	assert.Equal(t, "", h2.WaitNotice)
	assert.Equal(t, "nope %error", h2.FailureTemplate)
	assert.Equal(t, RoleOwner, h2.Role, "legacy owner flag wins")
	assert.Equal(t, 3*time.Second, h2.Cooldown)
}

func TestHandler_RenderUsage(t *testing.T) {
	h := &Handler{Aliases: []string{"dl"}, Usage: "$prefix$command <url>"}
	assert.Equal(t, "!dl <url>", h.RenderUsage("!", ""))
	assert.Equal(t, ".download <url>", h.RenderUsage(".", "download"))
}

func TestRegistry_LoadAndResolve(t *testing.T) {
	src := NewStaticSource(
		Definition{Name: "ping", Aliases: []string{"ping", "P"}, Run: "noop"},
		Definition{Name: "broken", Aliases: []string{"broken"}, Run: "missing"},
		Definition{Name: "pong", Aliases: []string{"pong", "p"}, Run: "noop"},
		Definition{Name: "ping", Aliases: []string{"ping2"}, Run: "noop"},
	)
	reg := NewRegistry(src, testCatalog(t))

	assert.Nil(t, reg.Resolve("ping"), "nothing before load")

	count, err := reg.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	assert.Equal(t, "ping", reg.Resolve("PING").Name)
	assert.Equal(t, "ping", reg.Resolve("p").Name, "first registration of a duplicate alias wins")
	assert.Equal(t, "pong", reg.Resolve("pong").Name)
	assert.Nil(t, reg.Resolve("broken"))
	assert.Nil(t, reg.Resolve("ping2"), "duplicate handler name is ignored")

	list := reg.List()
	require.Len(t, list, 2)
	assert.Equal(t, "ping", list[0].Name)
	assert.Equal(t, "pong", list[1].Name)
}

func TestRegistry_LoadErrorKeepsPrevious(t *testing.T) {
	src := NewStaticSource(Definition{Name: "ping", Aliases: []string{"ping"}, Run: "noop"})
	reg := NewRegistry(src, testCatalog(t))
	_, err := reg.Load(context.Background())
	require.NoError(t, err)

	src.Fail(errors.New("disk gone"))
	_, err = reg.Load(context.Background())

	var loadErr *LoadError
	require.True(t, errors.As(err, &loadErr))
	assert.NotNil(t, reg.Resolve("ping"))
}

func TestRegistry_SwapLeavesOldHandlersUsable(t *testing.T) {
	var calls []string
	var mu sync.Mutex
	record := func(tag string) HandlerFunc {
		return func(context.Context, *Call) error {
			mu.Lock()
			defer mu.Unlock()
			calls = append(calls, tag)
			return nil
		}
	}
	cat := NewCatalog()
	require.NoError(t, cat.Register("v1", record("v1")))
	require.NoError(t, cat.Register("v2", record("v2")))

	src := NewStaticSource(Definition{Name: "x", Aliases: []string{"x"}, Run: "v1"})
	reg := NewRegistry(src, cat)
	_, err := reg.Load(context.Background())
	require.NoError(t, err)

	old := reg.Resolve("x")
	src.Replace(Definition{Name: "x", Aliases: []string{"x"}, Run: "v2"})
	_, err = reg.Load(context.Background())
	require.NoError(t, err)

	require.NoError(t, old.Fn(context.Background(), &Call{}))
	require.NoError(t, reg.Resolve("x").Fn(context.Background(), &Call{}))
	assert.Equal(t, []string{"v1", "v2"}, calls)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDirSource(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "info", "ping.yaml"), "name: ping\naliases: [ping]\nrun: noop\n")
	writeFile(t, filepath.Join(root, "info", "_draft.yaml"), "name: draft\naliases: [draft]\nrun: noop\n")
	writeFile(t, filepath.Join(root, "_disabled", "x.yaml"), "name: x\naliases: [x]\nrun: noop\n")
	writeFile(t, filepath.Join(root, "tools", "broken.yml"), "name: [unterminated\n")
	writeFile(t, filepath.Join(root, "README.md"), "not a manifest")

	src := NewDirSource(root)
	defs, err := src.Discover()
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "ping", defs[0].Name)

	fp1, err := src.Fingerprint()
	require.NoError(t, err)
	fp2, err := src.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, fp1, fp2)

	writeFile(t, filepath.Join(root, "info", "ping.yaml"), "name: ping\naliases: [ping, p]\nrun: noop\n")
	fp3, err := src.Fingerprint()
	require.NoError(t, err)
	assert.NotEqual(t, fp1, fp3)
}

func TestDirSource_MissingRoot(t *testing.T) {
	src := NewDirSource(filepath.Join(t.TempDir(), "nope"))
	_, err := src.Discover()
	assert.Error(t, err)

	reg := NewRegistry(src, NewCatalog())
	_, err = reg.Load(context.Background())
	var loadErr *LoadError
	assert.True(t, errors.As(err, &loadErr))
}

func TestWatcher_DebouncedReload(t *testing.T) {
	src := NewStaticSource(Definition{Name: "a", Aliases: []string{"a"}, Run: "noop"})
	reg := NewRegistry(src, testCatalog(t))
	_, err := reg.Load(context.Background())
	require.NoError(t, err)

	reloads := make(chan int, 10)
	w := NewWatcher(reg, 5*time.Millisecond, 60*time.Millisecond, func(count int, err error) {
		assert.NoError(t, err)
		reloads <- count
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// a burst of changes inside the debounce window
	src.Replace(
		Definition{Name: "a", Aliases: []string{"a"}, Run: "noop"},
		Definition{Name: "b", Aliases: []string{"b"}, Run: "noop"},
	)
	time.Sleep(15 * time.Millisecond)
	src.Replace(
		Definition{Name: "a", Aliases: []string{"a"}, Run: "noop"},
		Definition{Name: "b", Aliases: []string{"b"}, Run: "noop"},
		Definition{Name: "c", Aliases: []string{"c"}, Run: "noop"},
	)

	select {
	case count := <-reloads:
		assert.Equal(t, 3, count)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not reload")
	}

	select {
	case <-reloads:
		t.Fatal("burst should produce a single reload")
	case <-time.After(150 * time.Millisecond):
	}
	assert.NotNil(t, reg.Resolve("c"))
}

func TestWatcher_DebounceSpansPolls(t *testing.T) {
	src := NewStaticSource(Definition{Name: "a", Aliases: []string{"a"}, Run: "noop"})
	reg := NewRegistry(src, testCatalog(t))
	_, err := reg.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 60*time.Millisecond, NewWatcher(reg, 30*time.Millisecond, 5*time.Millisecond, nil).debounce)
	assert.Equal(t, 500*time.Millisecond, NewWatcher(reg, 30*time.Millisecond, 500*time.Millisecond, nil).debounce)

	reloads := make(chan int, 10)
	w := NewWatcher(reg, 30*time.Millisecond, 5*time.Millisecond, func(count int, err error) {
		assert.NoError(t, err)
		reloads <- count
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// one edit per poll, each seen by a different tick
	defs := []Definition{{Name: "a", Aliases: []string{"a"}, Run: "noop"}}
	for _, name := range []string{"b", "c", "d"} {
		defs = append(defs, Definition{Name: name, Aliases: []string{name}, Run: "noop"})
		src.Replace(defs...)
		time.Sleep(30 * time.Millisecond)
	}

	select {
	case count := <-reloads:
		assert.Equal(t, 4, count)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not reload")
	}

	select {
	case <-reloads:
		t.Fatal("edits on consecutive polls should produce a single reload")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestShellFunc(t *testing.T) {
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}

	var replies []string
	msg := newTestMessage(&replies)

	fn := ShellFunc(`echo "hello $1"`)
	require.NoError(t, fn(context.Background(), &Call{Message: msg, Args: []string{"world; rm -rf /"}}))
	assert.Equal(t, []string{"hello world; rm -rf /"}, replies)

	fail := ShellFunc(`echo oops >&2; exit 3`)
	err := fail(context.Background(), &Call{Message: msg})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oops")
}
