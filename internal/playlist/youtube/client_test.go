package youtube_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"podmirror/internal/playlist/youtube"
	"podmirror/internal/retry"
)

func noSleep(context.Context, time.Duration) error { return nil }

func TestSnapshotPaginates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/playlistItems" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("key") != "secret" || q.Get("playlistId") != "PL1" || q.Get("maxResults") != "50" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		switch q.Get("pageToken") {
		case "":
			fmt.Fprint(w, `{"nextPageToken":"p2","items":[
				{"snippet":{"title":"S8 E30: Elections","publishedAt":"2026-03-02T04:00:00Z","position":0,"resourceId":{"videoId":"vid0"}},
				 "contentDetails":{"videoPublishedAt":"2026-03-01T03:00:00Z"}},
				{"snippet":{"title":"Deleted video","position":1,"resourceId":{"videoId":""}}}]}`)
		case "p2":
			fmt.Fprint(w, `{"items":[{"snippet":{"title":" S8 E29 ","position":2,"resourceId":{"videoId":"vid2"}}}]}`)
		default:
			t.Errorf("unexpected page token %q", q.Get("pageToken"))
		}
	}))
	defer server.Close()

	client, err := youtube.New("secret", server.URL, "PL1")
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	entries, err := client.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot returned error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %+v", entries)
	}
	if entries[0].ID != "vid0" || entries[0].Position != 0 || entries[0].Title != "S8 E30: Elections" {
		t.Fatalf("unexpected first entry %+v", entries[0])
	}
	if entries[0].PublishedAt == nil || !entries[0].PublishedAt.Equal(time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected video publish time preferred, got %v", entries[0].PublishedAt)
	}
	if entries[1].ID != "vid2" || entries[1].Position != 2 || entries[1].Title != "S8 E29" || entries[1].PublishedAt != nil {
		t.Fatalf("unexpected second entry %+v", entries[1])
	}
}

func TestSnapshotRespectsMaxPages(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		fmt.Fprintf(w, `{"nextPageToken":"more","items":[{"snippet":{"title":"t","position":%d,"resourceId":{"videoId":"v%d"}}}]}`, n, n)
	}))
	defer server.Close()

	client, err := youtube.New("k", server.URL, "PL", youtube.WithMaxPages(2))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	entries, err := client.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot returned error: %v", err)
	}
	if len(entries) != 2 || calls.Load() != 2 {
		t.Fatalf("expected two pages, got %d entries over %d calls", len(entries), calls.Load())
	}
}

func TestSnapshotRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "backend error", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"items":[{"snippet":{"title":"t","position":0,"resourceId":{"videoId":"v"}}}]}`)
	}))
	defer server.Close()

	client, err := youtube.New("k", server.URL, "PL", youtube.WithRetryPolicy(retry.Policy{Attempts: 3, Sleep: noSleep}))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	entries, err := client.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot returned error: %v", err)
	}
	if len(entries) != 1 || calls.Load() != 2 {
		t.Fatalf("expected success on second attempt, got %d entries after %d calls", len(entries), calls.Load())
	}
}

func TestSnapshotDoesNotRetryForbidden(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":{"message":"quotaExceeded"}}`, http.StatusForbidden)
	}))
	defer server.Close()

	client, err := youtube.New("k", server.URL, "PL", youtube.WithRetryPolicy(retry.Policy{Attempts: 3, Sleep: noSleep}))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if _, err := client.Snapshot(context.Background()); err == nil {
		t.Fatal("expected error for 403")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", calls.Load())
	}
}

func TestNewValidatesArguments(t *testing.T) {
	if _, err := youtube.New("", "http://x", "PL"); err == nil {
		t.Fatal("expected error for missing key")
	}
	if _, err := youtube.New("k", "http://x", " "); err == nil {
		t.Fatal("expected error for missing playlist")
	}
}
