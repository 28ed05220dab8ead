package watermark_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"podmirror/internal/watermark"
)

func TestLoadMissingReturnsNone(t *testing.T) {
	store := watermark.NewStore(filepath.Join(t.TempDir(), "state", "last_position.txt"))
	got, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if got != watermark.None {
		t.Fatalf("Load() = %d, want %d", got, watermark.None)
	}
}

func TestLoadEmptyFileReturnsNone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "last_position.txt")
	if err := os.WriteFile(path, []byte("  \n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := watermark.NewStore(path).Load(context.Background())
	if err != nil || got != watermark.None {
		t.Fatalf("Load() = %d, %v", got, err)
	}
}

func TestLoadCorruptFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "last_position.txt")
	if err := os.WriteFile(path, []byte("twelve"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := watermark.NewStore(path).Load(context.Background())
	if !errors.Is(err, watermark.ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestAdvanceIsMonotonic(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "last_position.txt")
	store := watermark.NewStore(path)

	steps := []struct {
		next int
		want int
	}{
		{5, 5},
		{3, 5},
		{5, 5},
		{9, 9},
		{watermark.None, 9},
	}
	for _, step := range steps {
		got, err := store.Advance(ctx, step.next)
		if err != nil {
			t.Fatalf("Advance(%d) returned error: %v", step.next, err)
		}
		if got != step.want {
			t.Fatalf("Advance(%d) = %d, want %d", step.next, got, step.want)
		}
		loaded, err := watermark.NewStore(path).Load(ctx)
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}
		if loaded != step.want {
			t.Fatalf("persisted %d, want %d", loaded, step.want)
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != "9\n" {
		t.Fatalf("unexpected file content %q", raw)
	}
}

func TestSetRefusesRegressionWithoutForce(t *testing.T) {
	ctx := context.Background()
	store := watermark.NewStore(filepath.Join(t.TempDir(), "last_position.txt"))
	if err := store.Set(ctx, 10, false); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if err := store.Set(ctx, 4, false); !errors.Is(err, watermark.ErrRegression) {
		t.Fatalf("expected ErrRegression, got %v", err)
	}
	if err := store.Set(ctx, 4, true); err != nil {
		t.Fatalf("forced Set returned error: %v", err)
	}
	got, _ := store.Load(ctx)
	if got != 4 {
		t.Fatalf("Load() = %d, want 4", got)
	}
	if err := store.Set(ctx, -2, true); err == nil {
		t.Fatal("expected error for value below None")
	}
}

func TestForcedSetRepairsCorruptFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "last_position.txt")
	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	store := watermark.NewStore(path)
	if err := store.Set(ctx, 7, false); !errors.Is(err, watermark.ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt without force, got %v", err)
	}
	if err := store.Set(ctx, 7, true); err != nil {
		t.Fatalf("forced Set returned error: %v", err)
	}
	if got, err := store.Load(ctx); err != nil || got != 7 {
		t.Fatalf("Load() = %d, %v", got, err)
	}
}
