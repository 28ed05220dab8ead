// Package watermark persists the highest playlist position a sync run has
// processed. The value only moves forward; a missing file means nothing has
// been processed yet.
package watermark

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"podmirror/internal/fileutil"
)

// None is the watermark of a store that has never been saved. Position 0 is
// strictly greater, so the first playlist item is eligible on the first run.
const None = -1

// ErrCorrupt reports a watermark file whose content is not a decimal integer.
var ErrCorrupt = errors.New("watermark file corrupt")

// ErrRegression is returned by Set when the new value would move the cursor
// backwards without an explicit override.
var ErrRegression = errors.New("watermark regression")

// Store reads and writes the watermark file.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore returns a store backed by path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Load returns the persisted watermark, or None when the file is absent or
// empty. Unparseable content is reported as ErrCorrupt rather than treated as
// None, which would reprocess the whole playlist.
func (s *Store) Load(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return None, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() (int, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return None, nil
		}
		return None, fmt.Errorf("read watermark: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return None, nil
	}
	value, err := strconv.Atoi(text)
	if err != nil || value < None {
		return None, fmt.Errorf("%w: %s: %q", ErrCorrupt, s.path, text)
	}
	return value, nil
}

// Advance persists max(current, next) and returns the stored value. Calling it
// with a value at or below the current watermark leaves the file untouched.
func (s *Store) Advance(ctx context.Context, next int) (int, error) {
	if err := ctx.Err(); err != nil {
		return None, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load()
	if err != nil {
		return None, err
	}
	if next <= current {
		return current, nil
	}
	if err := s.save(next); err != nil {
		return current, err
	}
	return next, nil
}

// Set writes value. Lowering the watermark requires force, which is reserved
// for operator intervention (for example after an upstream playlist was
// renumbered).
func (s *Store) Set(ctx context.Context, value int, force bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if value < None {
		return fmt.Errorf("watermark must be >= %d, got %d", None, value)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load()
	if err != nil && !force {
		return err
	}
	if value < current && !force {
		return fmt.Errorf("%w: %d -> %d (use force to override)", ErrRegression, current, value)
	}
	return s.save(value)
}

func (s *Store) save(value int) error {
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create watermark directory: %w", err)
		}
	}
	payload := strconv.Itoa(value) + "\n"
	if err := fileutil.WriteFileAtomic(s.path, []byte(payload), 0o644); err != nil {
		return fmt.Errorf("save watermark: %w", err)
	}
	return nil
}
