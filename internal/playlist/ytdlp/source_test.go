package ytdlp_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"podmirror/internal/playlist/ytdlp"
	"podmirror/internal/services"
)

type stubExecutor struct {
	lines []string
	err   error
	args  []string
}

func (s *stubExecutor) Run(_ context.Context, _ string, _ string, args []string, onStdout func(string)) error {
	s.args = append([]string(nil), args...)
	for _, line := range s.lines {
		onStdout(line)
	}
	return s.err
}

func TestSnapshotParsesFlatPlaylist(t *testing.T) {
	exec := &stubExecutor{lines: []string{
		`{"id":"abc","title":"S8 E30: Elections","playlist_index":1,"timestamp":1772337600}`,
		``,
		`{"id":"def","title":"Bonus"}`,
	}}
	src, err := ytdlp.New("", "https://www.youtube.com/playlist?list=PL1", ytdlp.WithExecutor(exec))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	entries, err := src.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot returned error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %+v", entries)
	}
	if entries[0].ID != "abc" || entries[0].Position != 0 || entries[0].PublishedAt == nil {
		t.Fatalf("unexpected first entry %+v", entries[0])
	}
	if entries[1].ID != "def" || entries[1].Position != 1 || entries[1].PublishedAt != nil {
		t.Fatalf("unexpected second entry %+v", entries[1])
	}
	if !slices.Contains(exec.args, "--flat-playlist") || exec.args[len(exec.args)-1] != "https://www.youtube.com/playlist?list=PL1" {
		t.Fatalf("unexpected args %v", exec.args)
	}
}

func TestSnapshotWrapsToolFailure(t *testing.T) {
	exec := &stubExecutor{err: errors.New("exit status 1")}
	src, err := ytdlp.New("yt-dlp", "https://example.com/list", ytdlp.WithExecutor(exec))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	_, err = src.Snapshot(context.Background())
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool, got %v", err)
	}
}

func TestSnapshotRejectsMalformedLine(t *testing.T) {
	exec := &stubExecutor{lines: []string{`{"id":"a"}`, `not json`}}
	src, err := ytdlp.New("yt-dlp", "https://example.com/list", ytdlp.WithExecutor(exec))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if _, err := src.Snapshot(context.Background()); err == nil {
		t.Fatal("expected decode error")
	}
}
