package syncer

import (
	"time"

	"podmirror/internal/history"
	"podmirror/internal/playlist"
)

// ItemResult is the outcome for one playlist entry handled by a run.
type ItemResult struct {
	Entry    playlist.Entry
	Artifact string
	Outcome  history.Outcome
	Strategy string
	Retry    bool
	Err      error
}

// Report summarises one run.
type Report struct {
	RunID           string
	Status          string
	StartedAt       time.Time
	Duration        time.Duration
	WatermarkBefore int
	WatermarkAfter  int
	SnapshotSize    int
	Deferred        int
	Items           []ItemResult
	Artifacts       int
	Published       bool
}

// NoNewItems reports whether the snapshot had nothing above the watermark.
func (r Report) NoNewItems() bool {
	return r.Status == history.StatusNoNewItems
}

// Count returns how many items ended with outcome.
func (r Report) Count(outcome history.Outcome) int {
	n := 0
	for _, item := range r.Items {
		if item.Outcome == outcome {
			n++
		}
	}
	return n
}

// Selected is the number of items the run attempted (acquired, existing, or
// failed).
func (r Report) Selected() int {
	return len(r.Items) - r.Count(history.OutcomeSkipped)
}

// Titles returns the display titles of items with outcome.
func (r Report) Titles(outcome history.Outcome) []string {
	var titles []string
	for _, item := range r.Items {
		if item.Outcome != outcome {
			continue
		}
		title := item.Entry.Title
		if title == "" {
			title = item.Artifact
		}
		titles = append(titles, title)
	}
	return titles
}

// IDs returns the upstream identifiers of items with outcome.
func (r Report) IDs(outcome history.Outcome) []string {
	var ids []string
	for _, item := range r.Items {
		if item.Outcome == outcome {
			ids = append(ids, item.Entry.ID)
		}
	}
	return ids
}
