package plugin

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"sync"
)

// Catalog maps the "run" names used in manifests to compiled-in functions
type Catalog struct {
	mu    sync.RWMutex
	funcs map[string]HandlerFunc
}

// NewCatalog creates an empty catalog
func NewCatalog() *Catalog {
	return &Catalog{funcs: make(map[string]HandlerFunc)}
}

// Register adds fn under name. Returns an error if the name is already taken.
func (c *Catalog) Register(name string, fn HandlerFunc) error {
	if name == "" || fn == nil {
		return fmt.Errorf("catalog entry needs a name and a function")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.funcs[name]; exists {
		return fmt.Errorf("catalog entry already registered: %s", name)
	}
	c.funcs[name] = fn
	return nil
}

// Lookup returns the function registered under name
func (c *Catalog) Lookup(name string) (HandlerFunc, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn, ok := c.funcs[name]
	return fn, ok
}

// Names lists registered names alphabetically
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.funcs))
	for n := range c.funcs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// bind resolves the executable body of a definition
func (c *Catalog) bind(d *Definition) (HandlerFunc, error) {
	if d.Exec != "" {
		return ShellFunc(d.Exec), nil
	}
	if c == nil {
		return nil, fmt.Errorf("handler %q: no catalog to resolve run %q", d.Name, d.Run)
	}
	fn, ok := c.Lookup(d.Run)
	if !ok {
		return nil, fmt.Errorf("handler %q: run %q is not a known function", d.Name, d.Run)
	}
	return fn, nil
}

// ShellFunc runs command with bash and replies with its trimmed output.
// Message arguments are passed as positional parameters ("$1", "$@"), never
// spliced into the command string.
func ShellFunc(command string) HandlerFunc {
	return func(ctx context.Context, call *Call) error {
		argv := append([]string{"-c", command, "botkit"}, call.Args...)
		cmd := exec.CommandContext(ctx, "bash", argv...)
		out, err := cmd.CombinedOutput()
		text := strings.TrimSpace(string(out))
		if err != nil {
			if text != "" {
				return fmt.Errorf("%w: %s", err, text)
			}
			return err
		}
		if text == "" {
			text = "(no output)"
		}
		return call.Reply(ctx, text)
	}
}
