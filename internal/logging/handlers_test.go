package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestNewFanoutHandlerCollapses(t *testing.T) {
	if _, ok := newFanoutHandler(nil, nil).(NoopHandler); !ok {
		t.Fatal("expected NoopHandler for all nil handlers")
	}
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)
	if h := newFanoutHandler(nil, inner); h != inner {
		t.Fatal("expected single handler to be returned unwrapped")
	}
}

func TestFanoutHandlerRespectsChildLevels(t *testing.T) {
	var infoBuf, debugBuf bytes.Buffer
	h := newFanoutHandler(
		slog.NewTextHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	)
	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("expected fanout enabled when any child accepts debug")
	}
	logger := slog.New(h).With("run_id", "r1")
	logger.Debug("debug only")
	logger.Info("both")

	if strings.Contains(infoBuf.String(), "debug only") {
		t.Fatalf("info handler received debug record: %q", infoBuf.String())
	}
	if !strings.Contains(debugBuf.String(), "debug only") || !strings.Contains(debugBuf.String(), "run_id=r1") {
		t.Fatalf("debug handler missing record or attrs: %q", debugBuf.String())
	}
	if !strings.Contains(infoBuf.String(), "both") {
		t.Fatalf("info handler missing record: %q", infoBuf.String())
	}
}

func TestProgressSamplerBuckets(t *testing.T) {
	s := NewProgressSampler(25)
	var emitted []float64
	for _, pct := range []float64{0, 3, 10, 26, 30, 51, 74, 99, 100, 100} {
		if s.ShouldLog(pct, "download") {
			emitted = append(emitted, pct)
		}
	}
	want := []float64{0, 26, 51, 99, 100}
	if len(emitted) != len(want) {
		t.Fatalf("emitted %v, want %v", emitted, want)
	}
	for i := range want {
		if emitted[i] != want[i] {
			t.Fatalf("emitted %v, want %v", emitted, want)
		}
	}
	if !s.ShouldLog(100, "post-process") {
		t.Fatal("expected phase change to emit")
	}
	s.Reset()
	if !s.ShouldLog(0, "download") {
		t.Fatal("expected emit after reset")
	}
	var nilSampler *ProgressSampler
	if !nilSampler.ShouldLog(50, "download") {
		t.Fatal("nil sampler should always log")
	}
}

func TestFormatValueQuotes(t *testing.T) {
	if got := formatValue(slog.StringValue("two words")); got != `"two words"` {
		t.Fatalf("formatValue quoted = %s", got)
	}
	if got := formatValue(slog.StringValue("plain")); got != "plain" {
		t.Fatalf("formatValue plain = %s", got)
	}
	if got := formatValue(slog.StringValue("")); got != `""` {
		t.Fatalf("formatValue empty = %s", got)
	}
}
