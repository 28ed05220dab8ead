// Package ytdlp lists playlists by shelling out to yt-dlp in flat-playlist
// mode. It needs no API key, at the cost of one process per snapshot.
package ytdlp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"podmirror/internal/playlist"
	"podmirror/internal/services"
)

const defaultBinary = "yt-dlp"

// Source runs `yt-dlp --flat-playlist --dump-json` against a playlist URL.
type Source struct {
	binary   string
	url      string
	timeout  time.Duration
	executor services.Executor
}

var _ playlist.Source = (*Source)(nil)

// Option configures a Source.
type Option func(*Source)

// WithExecutor injects a custom command executor (used in tests).
func WithExecutor(exec services.Executor) Option {
	return func(s *Source) {
		if exec != nil {
			s.executor = exec
		}
	}
}

// WithTimeout bounds a single listing.
func WithTimeout(d time.Duration) Option {
	return func(s *Source) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// New constructs a listing source for playlistURL.
func New(binary, playlistURL string, opts ...Option) (*Source, error) {
	playlistURL = strings.TrimSpace(playlistURL)
	if playlistURL == "" {
		return nil, errors.New("playlist url required")
	}
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = defaultBinary
	}
	s := &Source{
		binary:   binary,
		url:      playlistURL,
		executor: services.CommandExecutor{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

type flatEntry struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	PlaylistIndex int    `json:"playlist_index"`
	Timestamp     *int64 `json:"timestamp"`
}

// Snapshot lists the playlist. Positions come from playlist_index when
// yt-dlp reports it and fall back to output order otherwise.
func (s *Source) Snapshot(ctx context.Context) ([]playlist.Entry, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	args := []string{"--flat-playlist", "--dump-json", "--no-warnings", s.url}

	var (
		entries  []playlist.Entry
		parseErr error
		line     int
	)
	err := s.executor.Run(ctx, "", s.binary, args, func(raw string) {
		raw = strings.TrimSpace(raw)
		if raw == "" || parseErr != nil {
			return
		}
		var item flatEntry
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			parseErr = fmt.Errorf("decode listing line %d: %w", line+1, err)
			return
		}
		position := line
		if item.PlaylistIndex > 0 {
			position = item.PlaylistIndex - 1
		}
		line++
		entry := playlist.Entry{
			ID:       strings.TrimSpace(item.ID),
			Title:    strings.TrimSpace(item.Title),
			Position: position,
		}
		if item.Timestamp != nil {
			ts := time.Unix(*item.Timestamp, 0).UTC()
			entry.PublishedAt = &ts
		}
		entries = append(entries, entry)
	})
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "playlist", "yt-dlp listing", s.url, err)
	}
	if parseErr != nil {
		return nil, parseErr
	}
	return entries, nil
}
