// Package local implements a link cache persisted as a JSON file on the local filesystem.
package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/catalog-alerts/internal/alert"
	"github.com/JakeFAU/catalog-alerts/internal/storage"
)

// DefaultFileName is used when Config.FileName is empty.
const DefaultFileName = "link_cache.json"

// Config captures the parameters for the file-backed link cache.
type Config struct {
	// BaseDir is the directory holding the cache document.
	BaseDir  string `mapstructure:"base_dir" yaml:"base_dir"`
	FileName string `mapstructure:"file_name" yaml:"file_name"`
}

// LinkCacheStore keeps the delivered-link cache in a single JSON file.
type LinkCacheStore struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// New validates the base directory and returns a store.
func New(cfg Config) (*LinkCacheStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	name := cfg.FileName
	if strings.TrimSpace(name) == "" {
		name = DefaultFileName
	}
	if filepath.Base(name) != name {
		return nil, fmt.Errorf("file name %q must not contain path separators", name)
	}

	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat base directory: %w", err)
		}
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	// Check for write permissions.
	testFile := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	return &LinkCacheStore{
		path: filepath.Join(cfg.BaseDir, name),
		now:  time.Now,
	}, nil
}

// Path reports the cache document location.
func (s *LinkCacheStore) Path() string {
	return s.path
}

// ReadLinkCache loads the cache. A missing file is an empty cache.
func (s *LinkCacheStore) ReadLinkCache(_ context.Context) (alert.LinkCache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// WriteLinkCache replaces the given labels and atomically rewrites the document.
func (s *LinkCacheStore) WriteLinkCache(_ context.Context, linksByLabel map[string][]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load()
	if err != nil {
		return err
	}
	data, err := storage.EncodeSnapshot(storage.Merge(current, linksByLabel), s.now())
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".link_cache-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace link cache: %w", err)
	}
	return nil
}

func (s *LinkCacheStore) load() (alert.LinkCache, error) {
	// #nosec G304 -- path is fixed at construction.
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return alert.LinkCache{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read link cache: %w", err)
	}
	return storage.DecodeSnapshot(data)
}
