// Package groups resolves group metadata (participants and their admin roles)
// from the transports that can provide it.
package groups

//go:generate mockgen -destination=mocks/provider.go -package=mocks github.com/keepmind9/botkit/internal/groups Provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/keepmind9/botkit/internal/logger"
	"github.com/keepmind9/botkit/pkg/constants"
	"github.com/sirupsen/logrus"
)

// Admin role values carried by Participant.Admin
const (
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"
)

// ErrNoProvider is returned when no provider is registered for a platform
var ErrNoProvider = errors.New("no group metadata provider for platform")

// Participant is a member of a group
type Participant struct {
	ID    string `json:"id"`
	Admin string `json:"admin,omitempty"` // "admin", "superadmin" or empty
}

// Metadata describes a group chat
type Metadata struct {
	ID           string        `json:"id"`
	Subject      string        `json:"subject,omitempty"`
	Participants []Participant `json:"participants"`
}

// IsAdmin reports whether id holds admin or superadmin in the group
func (m *Metadata) IsAdmin(id string) bool {
	if m == nil {
		return false
	}
	for _, p := range m.Participants {
		if p.ID == id {
			return p.Admin == RoleAdmin || p.Admin == RoleSuperAdmin
		}
	}
	return false
}

// Provider fetches metadata for a group. A nil result with nil error means the
// group is unknown.
type Provider interface {
	GroupMetadata(ctx context.Context, groupID string) (*Metadata, error)
}

type cached struct {
	meta      *Metadata
	expiresAt time.Time
}

// Directory routes metadata lookups to per-platform providers and caches results
type Directory struct {
	mu        sync.Mutex
	providers map[string]Provider
	cache     map[string]cached
	ttl       time.Duration
	now       func() time.Time
}

// NewDirectory creates an empty directory; ttl <= 0 uses the default cache TTL
func NewDirectory(ttl time.Duration) *Directory {
	if ttl <= 0 {
		ttl = constants.DefaultGroupCacheTTL
	}
	return &Directory{
		providers: make(map[string]Provider),
		cache:     make(map[string]cached),
		ttl:       ttl,
		now:       time.Now,
	}
}

// SetClock overrides the time source, used by tests
func (d *Directory) SetClock(now func() time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.now = now
}

// Register binds a provider to a platform name
func (d *Directory) Register(platform string, p Provider) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.providers[platform] = p
}

// Lookup returns metadata for groupID on platform, served from cache when fresh
func (d *Directory) Lookup(ctx context.Context, platform, groupID string) (*Metadata, error) {
	key := platform + "/" + groupID

	d.mu.Lock()
	if c, ok := d.cache[key]; ok && d.now().Before(c.expiresAt) {
		d.mu.Unlock()
		return c.meta, nil
	}
	p := d.providers[platform]
	d.mu.Unlock()

	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoProvider, platform)
	}

	meta, err := p.GroupMetadata(ctx, groupID)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"platform": platform,
			"group":    groupID,
			"error":    err,
		}).Warn("group-metadata-fetch-failed")
		return nil, fmt.Errorf("fetch group metadata %s: %w", groupID, err)
	}

	d.mu.Lock()
	d.cache[key] = cached{meta: meta, expiresAt: d.now().Add(d.ttl)}
	d.mu.Unlock()
	return meta, nil
}

// Invalidate drops the cached metadata for a group
func (d *Directory) Invalidate(platform, groupID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.cache, platform+"/"+groupID)
}
