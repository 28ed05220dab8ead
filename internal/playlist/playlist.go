package playlist

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Entry is one upstream item as observed in a single snapshot. Position is
// the 0-based rank at fetch time and is only comparable within one snapshot.
type Entry struct {
	ID          string
	Title       string
	Position    int
	PublishedAt *time.Time
}

// WatchURL returns the canonical upstream page for the entry.
func (e Entry) WatchURL() string {
	return WatchURL(e.ID)
}

// WatchURL returns the canonical upstream page for an item identifier.
func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

// Source returns the current ordered set of playlist entries.
type Source interface {
	Snapshot(ctx context.Context) ([]Entry, error)
}

// Validate rejects snapshots the selector cannot reason about: entries
// without an identifier, negative positions, and identifiers listed twice.
func Validate(entries []Entry) error {
	seen := make(map[string]int, len(entries))
	for i, entry := range entries {
		id := strings.TrimSpace(entry.ID)
		if id == "" {
			return fmt.Errorf("snapshot entry %d: missing id", i)
		}
		if entry.Position < 0 {
			return fmt.Errorf("snapshot entry %s: negative position %d", id, entry.Position)
		}
		if prev, ok := seen[id]; ok {
			return fmt.Errorf("snapshot entry %s: listed at positions %d and %d", id, prev, entry.Position)
		}
		seen[id] = entry.Position
	}
	return nil
}
