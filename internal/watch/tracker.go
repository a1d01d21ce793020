// Package watch re-runs an analysis when the Java sources of a project
// change. A Tracker compares content hashes so that editor saves without
// edits, touch and checkout noise do not trigger a run.
package watch

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// DefaultStateFile is where watch mode keeps hashes between sessions,
// relative to the project root.
const DefaultStateFile = ".gcg/cache/sources.msgpack"

// Changes lists the files that differ from the previous Sync.
type Changes struct {
	Added    []string
	Modified []string
	Removed  []string
}

// Empty reports whether nothing changed.
func (c Changes) Empty() bool {
	return c.Len() == 0
}

func (c Changes) Len() int {
	return len(c.Added) + len(c.Modified) + len(c.Removed)
}

// Tracker remembers the content hash of every source file.
type Tracker struct {
	mu     sync.RWMutex
	hashes map[string]string
}

// state is the on-disk structure.
type state struct {
	Version int               `msgpack:"version"`
	Hashes  map[string]string `msgpack:"hashes"`
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{hashes: make(map[string]string)}
}

// computeHash computes SHA256 hash of file contents.
func computeHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", fmt.Errorf("failed to hash file %s: %w", path, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Sync hashes paths, which is the complete current file set, and reports
// how it differs from the last Sync. Tracked files missing from paths are
// reported as removed. Each list is sorted.
func (t *Tracker) Sync(paths []string) (Changes, error) {
	current := make(map[string]string, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return Changes{}, fmt.Errorf("failed to get absolute path: %w", err)
		}
		hash, err := computeHash(abs)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				// Deleted between listing and hashing.
				continue
			}
			return Changes{}, err
		}
		current[abs] = hash
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var c Changes
	for path, hash := range current {
		old, ok := t.hashes[path]
		switch {
		case !ok:
			c.Added = append(c.Added, path)
		case old != hash:
			c.Modified = append(c.Modified, path)
		}
	}
	for path := range t.hashes {
		if _, ok := current[path]; !ok {
			c.Removed = append(c.Removed, path)
		}
	}
	t.hashes = current

	sort.Strings(c.Added)
	sort.Strings(c.Modified)
	sort.Strings(c.Removed)
	return c, nil
}

// Len returns the number of tracked files.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.hashes)
}

// Hash returns the recorded hash of a tracked file.
func (t *Tracker) Hash(path string) (string, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.hashes[abs]
	return h, ok
}

// SaveTo writes the tracked hashes to w.
func (t *Tracker) SaveTo(w io.Writer) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return msgpack.NewEncoder(w).Encode(state{Version: 1, Hashes: t.hashes})
}

// LoadFrom replaces the tracked hashes with those read from r.
func (t *Tracker) LoadFrom(r io.Reader) error {
	var s state
	if err := msgpack.NewDecoder(r).Decode(&s); err != nil {
		return fmt.Errorf("failed to decode source state: %w", err)
	}
	if s.Hashes == nil {
		s.Hashes = make(map[string]string)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.hashes = s.Hashes
	return nil
}

// Save persists the state to path, creating parent directories.
func (t *Tracker) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create state file: %w", err)
	}
	if err := t.SaveTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Load restores the state from path. A missing file is not an error.
func (t *Tracker) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open state file: %w", err)
	}
	defer f.Close()
	return t.LoadFrom(f)
}
