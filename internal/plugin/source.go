package plugin

import (
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/keepmind9/botkit/internal/logger"
	"github.com/sirupsen/logrus"
	"github.com/zeebo/blake3"
)

// Source discovers handler definitions
type Source interface {
	// Discover returns every definition in discovery order. Per-file problems
	// are logged and skipped; an error means the source itself is unreadable.
	Discover() ([]Definition, error)
	// Fingerprint changes whenever Discover would return something different
	Fingerprint() (string, error)
}

// DirSource discovers YAML manifests under one or more directory roots.
// Files and directories whose name starts with "_" are ignored.
type DirSource struct {
	Roots []string
}

// NewDirSource creates a source over roots
func NewDirSource(roots ...string) *DirSource {
	return &DirSource{Roots: roots}
}

func (s *DirSource) Discover() ([]Definition, error) {
	files, err := s.files()
	if err != nil {
		return nil, err
	}

	var defs []Definition
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"path":  path,
				"error": err,
			}).Warn("failed-to-read-handler-manifest")
			continue
		}
		parsed, err := ParseManifest(data, path)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"path":  path,
				"error": err,
			}).Warn("skipped-invalid-handler-manifest")
			continue
		}
		defs = append(defs, parsed...)
	}
	return defs, nil
}

// Fingerprint hashes every manifest path and content with BLAKE3
func (s *DirSource) Fingerprint() (string, error) {
	files, err := s.files()
	if err != nil {
		return "", err
	}

	h := blake3.New()
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			// file vanished mid-scan, the next poll will settle
			continue
		}
		sum := blake3.Sum256(data)
		h.Write([]byte(path))
		h.Write([]byte{0})
		h.Write(sum[:])
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// files lists manifest files root by root, sorted within each root
func (s *DirSource) files() ([]string, error) {
	if len(s.Roots) == 0 {
		return nil, fmt.Errorf("no handler directories configured")
	}

	var out []string
	for _, root := range s.Roots {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("handler directory %s: %w", root, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("handler directory %s is not a directory", root)
		}

		var found []string
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			name := d.Name()
			if strings.HasPrefix(name, "_") && path != root {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return nil
			}
			if ext := filepath.Ext(name); ext == ".yaml" || ext == ".yml" {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scan handler directory %s: %w", root, err)
		}
		sort.Strings(found)
		out = append(out, found...)
	}
	return out, nil
}

// StaticSource serves definitions held in memory. Replace bumps the fingerprint.
type StaticSource struct {
	mu      sync.RWMutex
	defs    []Definition
	version int
	err     error
}

// NewStaticSource creates a source over defs
func NewStaticSource(defs ...Definition) *StaticSource {
	return &StaticSource{defs: defs}
}

// Replace swaps the served definitions
func (s *StaticSource) Replace(defs ...Definition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs = defs
	s.version++
}

// Fail makes Discover and Fingerprint return err until cleared with nil
func (s *StaticSource) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *StaticSource) Discover() ([]Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]Definition, len(s.defs))
	copy(out, s.defs)
	return out, nil
}

func (s *StaticSource) Fingerprint() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return "", s.err
	}
	return fmt.Sprintf("static-%d", s.version), nil
}

// MultiSource concatenates sources in order
type MultiSource []Source

func (m MultiSource) Discover() ([]Definition, error) {
	var out []Definition
	for _, s := range m {
		defs, err := s.Discover()
		if err != nil {
			return nil, err
		}
		out = append(out, defs...)
	}
	return out, nil
}

func (m MultiSource) Fingerprint() (string, error) {
	parts := make([]string, 0, len(m))
	for _, s := range m {
		fp, err := s.Fingerprint()
		if err != nil {
			return "", err
		}
		parts = append(parts, fp)
	}
	return strings.Join(parts, "|"), nil
}
