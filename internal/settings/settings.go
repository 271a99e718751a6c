// Package settings persists bot-wide settings, such as the reply mode, in SQLite.
package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/keepmind9/botkit/internal/logger"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// Mode decides who the bot answers
type Mode string

const (
	// ModePublic answers everyone
	ModePublic Mode = "public"
	// ModeSelf answers the owner only
	ModeSelf Mode = "self"
	// ModeGroup answers group chats and the owner
	ModeGroup Mode = "group"
	// ModePrivate answers private chats and the owner
	ModePrivate Mode = "private"
)

// Modes lists every valid mode
var Modes = []Mode{ModePublic, ModeSelf, ModeGroup, ModePrivate}

// ParseMode validates a user-supplied mode name
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	for _, v := range Modes {
		if m == v {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// Allows reports whether a message from the given context should be handled
func (m Mode) Allows(isOwner, isGroup bool) bool {
	if isOwner {
		return true
	}
	switch m {
	case ModeSelf:
		return false
	case ModeGroup:
		return isGroup
	case ModePrivate:
		return !isGroup
	default:
		return true
	}
}

const keyMode = "mode"

// Store reads and writes settings. Values are cached after the first read.
type Store struct {
	db *sql.DB

	mu    sync.RWMutex
	cache map[string]string
}

// Open opens (and creates if needed) the settings database at path
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := OpenSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, cache: make(map[string]string)}, nil
}

// OpenSQLite opens the database, applies pragmas and creates the schema
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one connection keeps :memory: databases shared and writes serialized
	db.SetMaxOpenConns(1)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(pctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if err := bootstrap(pctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func bootstrap(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS settings (
  key        TEXT PRIMARY KEY,
  value      TEXT NOT NULL,
  updated_at TEXT NOT NULL
);`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the value for key; ok is false when it was never set
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	v, cached := s.cache[key]
	s.mu.RUnlock()
	if cached {
		return v, true, nil
	}

	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read setting %s: %w", key, err)
	}

	s.mu.Lock()
	s.cache[key] = v
	s.mu.Unlock()
	return v, true, nil
}

// Set writes key and refreshes the cache
func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("write setting %s: %w", key, err)
	}

	s.mu.Lock()
	s.cache[key] = value
	s.mu.Unlock()
	return nil
}

// Mode returns the current bot mode. Read failures and unknown values fall
// back to public so the bot keeps answering.
func (s *Store) Mode(ctx context.Context) Mode {
	v, ok, err := s.Get(ctx, keyMode)
	if err != nil {
		logger.WithField("error", err).Warn("settings-read-failed-using-public-mode")
		return ModePublic
	}
	if !ok {
		return ModePublic
	}
	m, err := ParseMode(v)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"value": v,
			"error": err,
		}).Warn("invalid-stored-mode-using-public")
		return ModePublic
	}
	return m
}

// SetMode persists the bot mode
func (s *Store) SetMode(ctx context.Context, m Mode) error {
	if _, err := ParseMode(string(m)); err != nil {
		return err
	}
	if err := s.Set(ctx, keyMode, string(m)); err != nil {
		return err
	}
	logger.WithField("mode", m).Info("bot-mode-changed")
	return nil
}
