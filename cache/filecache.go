package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// FileCache implements the Store interface using filesystem storage
type FileCache struct {
	fs  afero.Fs
	dir string
	now func() time.Time
}

type fileRecord struct {
	Entry       *Entry    `json:"entry"`
	DeleteAfter time.Time `json:"delete_after,omitempty"`
}

// NewFileCache creates a file-based cache rooted at dir on fs
func NewFileCache(fs afero.Fs, dir string) (*FileCache, error) {
	if dir == "" {
		return nil, errors.New("cache directory required")
	}
	if err := fs.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &FileCache{fs: fs, dir: dir, now: time.Now}, nil
}

// NewDefaultFileCache creates a cache in ~/.esi_cache on the OS filesystem.
// If subdir is non-empty it is appended to the default location.
func NewDefaultFileCache(subdir string) (*FileCache, error) {
	usr, err := user.Current()
	if err != nil {
		return nil, err
	}

	baseDir := filepath.Join(usr.HomeDir, ".esi_cache")
	if subdir != "" {
		baseDir = filepath.Join(baseDir, subdir)
	}
	return NewFileCache(afero.NewOsFs(), baseDir)
}

// Get implements Reader
func (fc *FileCache) Get(_ context.Context, key string) (*Entry, error) {
	data, err := afero.ReadFile(fc.fs, fc.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrCacheNotFound
		}
		return nil, err
	}

	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode cache file: %w", err)
	}
	if rec.Entry == nil {
		return nil, ErrCacheNotFound
	}
	if !rec.DeleteAfter.IsZero() && fc.now().After(rec.DeleteAfter) {
		_ = fc.fs.Remove(fc.path(key))
		return nil, ErrCacheNotFound
	}
	return rec.Entry, nil
}

// Set implements Writer
func (fc *FileCache) Set(_ context.Context, key string, entry *Entry, ttl time.Duration) error {
	rec := fileRecord{Entry: entry}
	if ttl > 0 {
		rec.DeleteAfter = fc.now().Add(ttl)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}

	// Write to temporary file first, then rename (atomic operation)
	path := fc.path(key)
	tmpPath := path + ".tmp." + uuid.NewString()
	if err := afero.WriteFile(fc.fs, tmpPath, data, 0o600); err != nil {
		return err
	}
	if err := fc.fs.Rename(tmpPath, path); err != nil {
		_ = fc.fs.Remove(tmpPath)
		return err
	}
	return nil
}

// Forget implements Forgetter
func (fc *FileCache) Forget(_ context.Context, key string) error {
	err := fc.fs.Remove(fc.path(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// path generates the full filesystem path for a cache key
func (fc *FileCache) path(key string) string {
	return filepath.Join(fc.dir, sanitizeForFilename(key)+".json")
}
