package plugin

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/keepmind9/botkit/internal/logger"
	"github.com/sirupsen/logrus"
)

// LoadError reports that the handler source could not be read. The previously
// loaded handlers stay active.
type LoadError struct {
	Err error
}

func (e *LoadError) Error() string { return "load handlers: " + e.Err.Error() }

func (e *LoadError) Unwrap() error { return e.Err }

// Snapshot is an immutable view of the loaded handlers
type Snapshot struct {
	handlers    []*Handler
	byAlias     map[string]*Handler
	Fingerprint string
	LoadedAt    time.Time
}

// Len returns the number of handlers
func (s *Snapshot) Len() int {
	return len(s.handlers)
}

// Resolve looks a command token up by alias, case-insensitively
func (s *Snapshot) Resolve(token string) *Handler {
	return s.byAlias[strings.ToLower(token)]
}

// Handlers returns a copy of the handlers in discovery order
func (s *Snapshot) Handlers() []*Handler {
	out := make([]*Handler, len(s.handlers))
	copy(out, s.handlers)
	return out
}

var emptySnapshot = &Snapshot{byAlias: map[string]*Handler{}}

// Registry owns the active handler snapshot
type Registry struct {
	source  Source
	catalog *Catalog

	loadMu  sync.Mutex // serializes Load
	current atomic.Pointer[Snapshot]
}

// NewRegistry creates a registry over source; catalog resolves "run" bodies
func NewRegistry(source Source, catalog *Catalog) *Registry {
	r := &Registry{source: source, catalog: catalog}
	r.current.Store(emptySnapshot)
	return r
}

// Catalog returns the catalog "run" bodies are resolved from
func (r *Registry) Catalog() *Catalog {
	return r.catalog
}

// Snapshot returns the active snapshot
func (r *Registry) Snapshot() *Snapshot {
	return r.current.Load()
}

// Resolve finds the handler for a command token in the active snapshot
func (r *Registry) Resolve(token string) *Handler {
	return r.Snapshot().Resolve(token)
}

// List returns the active handlers in discovery order
func (r *Registry) List() []*Handler {
	return r.Snapshot().Handlers()
}

// Load discovers, validates and installs handlers. Invalid definitions are
// skipped with a warning. It returns the number of installed handlers.
func (r *Registry) Load(ctx context.Context) (int, error) {
	r.loadMu.Lock()
	defer r.loadMu.Unlock()

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	fingerprint, err := r.source.Fingerprint()
	if err != nil {
		return 0, &LoadError{Err: err}
	}
	defs, err := r.source.Discover()
	if err != nil {
		logger.WithField("error", err).Error("handler-discovery-failed-keeping-previous-set")
		return 0, &LoadError{Err: err}
	}

	snap := r.build(defs)
	snap.Fingerprint = fingerprint
	snap.LoadedAt = time.Now()
	r.current.Store(snap)

	logger.WithFields(logrus.Fields{
		"count":       snap.Len(),
		"fingerprint": shortFingerprint(fingerprint),
	}).Info("handlers-loaded")
	return snap.Len(), nil
}

func (r *Registry) build(defs []Definition) *Snapshot {
	snap := &Snapshot{byAlias: make(map[string]*Handler)}
	names := make(map[string]string)

	for i := range defs {
		d := &defs[i]
		fields := logrus.Fields{"handler": d.Name, "path": d.Path}

		if err := d.Validate(); err != nil {
			logger.WithFields(fields).WithField("error", err).Warn("skipped-invalid-handler")
			continue
		}
		fn, err := r.catalog.bind(d)
		if err != nil {
			logger.WithFields(fields).WithField("error", err).Warn("skipped-invalid-handler")
			continue
		}
		h := d.build(fn)

		if prev, dup := names[h.Name]; dup {
			logger.WithFields(fields).WithField("kept_path", prev).Warn("duplicate-handler-name-ignored")
			continue
		}
		names[h.Name] = h.Source

		for _, alias := range h.Aliases {
			if owner, taken := snap.byAlias[alias]; taken {
				logger.WithFields(logrus.Fields{
					"alias":   alias,
					"handler": h.Name,
					"owner":   owner.Name,
				}).Warn("duplicate-alias-first-registration-wins")
				continue
			}
			snap.byAlias[alias] = h
		}
		snap.handlers = append(snap.handlers, h)
		logger.WithFields(fields).WithField("aliases", h.Aliases).Debug("handler-loaded")
	}
	return snap
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}

// String is used in log fields and the admin API
func (s *Snapshot) String() string {
	return fmt.Sprintf("%d handlers (%s)", s.Len(), shortFingerprint(s.Fingerprint))
}
