package metrics_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"podmirror/internal/metrics"
)

func TestWriteTextfile(t *testing.T) {
	rec := metrics.NewRecorder()
	rec.Observe(metrics.Run{
		Status:       "completed",
		Watermark:    10,
		SnapshotSize: 11,
		Selected:     3,
		Acquired:     2,
		Failed:       1,
		Artifacts:    7,
		Published:    true,
		Duration:     90 * time.Second,
		FinishedAt:   time.Unix(1_800_000_000, 0),
	})

	path := filepath.Join(t.TempDir(), "textfile", "podmirror.prom")
	if err := rec.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile returned error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	text := string(data)
	for _, want := range []string{
		`podmirror_watermark_position 10`,
		`podmirror_last_run_items{outcome="acquired"} 2`,
		`podmirror_last_run_items{outcome="failed"} 1`,
		`podmirror_feed_items 7`,
		`podmirror_last_run_published 1`,
		`podmirror_last_run_duration_seconds 90`,
		`podmirror_last_run_timestamp_seconds{status="completed"} 1.8e+09`,
		`podmirror_last_success_timestamp_seconds 1.8e+09`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("textfile missing %q:\n%s", want, text)
		}
	}
}

func TestObserveReplacesStatusLabel(t *testing.T) {
	rec := metrics.NewRecorder()
	rec.Observe(metrics.Run{Status: "completed"})
	rec.Observe(metrics.Run{Status: "failed"})

	families, err := rec.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() != "podmirror_last_run_timestamp_seconds" {
			continue
		}
		if len(family.GetMetric()) != 1 {
			t.Fatalf("expected one status series, got %d", len(family.GetMetric()))
		}
		label := family.GetMetric()[0].GetLabel()[0]
		if label.GetValue() != "failed" {
			t.Fatalf("status label = %q, want failed", label.GetValue())
		}
		return
	}
	t.Fatal("last run metric not gathered")
}

func TestWriteTextfileEmptyPath(t *testing.T) {
	if err := metrics.NewRecorder().WriteTextfile(""); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
}
