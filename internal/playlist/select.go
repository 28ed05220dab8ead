package playlist

import (
	"sort"

	"podmirror/internal/episodeid"
)

// Options tunes Select.
type Options struct {
	// MaxItems bounds the batch; zero or negative means unlimited.
	MaxItems int
	// RequireCode drops candidates whose title carries no episode code.
	RequireCode bool
}

// Selection is the outcome of Select.
type Selection struct {
	// Batch holds the entries to process, newest (highest position) first.
	Batch []Entry
	// Skipped holds candidates excluded by RequireCode.
	Skipped []Entry
	// Deferred holds candidates beyond MaxItems. They sit below the new
	// watermark and are not revisited by later runs.
	Deferred []Entry
	// HighWater is the highest position among all candidates, or the input
	// watermark when there are none. The engine advances the watermark to it
	// once the batch has been processed.
	HighWater int
}

// Empty reports whether the snapshot held no entries above the watermark.
func (s Selection) Empty() bool {
	return len(s.Batch) == 0 && len(s.Skipped) == 0 && len(s.Deferred) == 0
}

// Select computes the entries above watermark, sorted newest first and
// truncated to opts.MaxItems. The input slice is not modified.
func Select(snapshot []Entry, watermark int, opts Options) Selection {
	sel := Selection{HighWater: watermark}

	candidates := make([]Entry, 0, len(snapshot))
	for _, entry := range snapshot {
		if entry.Position > watermark {
			candidates = append(candidates, entry)
		}
	}
	if len(candidates) == 0 {
		return sel
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Position != candidates[j].Position {
			return candidates[i].Position > candidates[j].Position
		}
		return candidates[i].ID < candidates[j].ID
	})
	sel.HighWater = candidates[0].Position

	for _, entry := range candidates {
		if opts.RequireCode {
			if _, ok := episodeid.Extract(entry.Title); !ok {
				sel.Skipped = append(sel.Skipped, entry)
				continue
			}
		}
		if opts.MaxItems > 0 && len(sel.Batch) >= opts.MaxItems {
			sel.Deferred = append(sel.Deferred, entry)
			continue
		}
		sel.Batch = append(sel.Batch, entry)
	}
	return sel
}
