package syncer_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"podmirror/internal/acquire"
	"podmirror/internal/feed"
	"podmirror/internal/history"
	"podmirror/internal/logging"
	"podmirror/internal/playlist"
	"podmirror/internal/publish"
	"podmirror/internal/registry"
	"podmirror/internal/runlock"
	"podmirror/internal/services"
	"podmirror/internal/syncer"
	"podmirror/internal/watermark"
)

type stubSource struct {
	entries []playlist.Entry
	err     error
	calls   int
}

func (s *stubSource) Snapshot(context.Context) ([]playlist.Entry, error) {
	s.calls++
	return s.entries, s.err
}

// fakeAcquirer writes <dir>/<target>.mp3 unless the item id is listed in fail.
type fakeAcquirer struct {
	dir   string
	fail  map[string]bool
	calls []string
}

func (f *fakeAcquirer) Acquire(_ context.Context, req acquire.Request) acquire.Result {
	f.calls = append(f.calls, req.ItemID)
	if f.fail[req.ItemID] {
		return acquire.Result{Attempts: 5, Err: services.Wrap(services.ErrAcquisitionFailed, "acquire", "download", req.ItemID, errors.New("all strategies failed"))}
	}
	path := filepath.Join(f.dir, req.Target+".mp3")
	if err := os.WriteFile(path, []byte("audio:"+req.ItemID), 0o644); err != nil {
		return acquire.Result{Err: err}
	}
	return acquire.Result{OK: true, Strategy: "default", Attempts: 1, Path: path}
}

type stubPublisher struct {
	err   error
	calls int
}

func (p *stubPublisher) Publish(context.Context, string) error {
	p.calls++
	return p.err
}

type memoryHistory struct {
	runs     map[string]history.Run
	attempts []history.Attempt
}

func newMemoryHistory() *memoryHistory {
	return &memoryHistory{runs: map[string]history.Run{}}
}

func (m *memoryHistory) StartRun(_ context.Context, run history.Run) error {
	run.Status = history.StatusRunning
	m.runs[run.ID] = run
	return nil
}

func (m *memoryHistory) RecordAttempt(_ context.Context, attempt history.Attempt) error {
	m.attempts = append(m.attempts, attempt)
	return nil
}

func (m *memoryHistory) FinishRun(_ context.Context, run history.Run) error {
	m.runs[run.ID] = run
	return nil
}

func (m *memoryHistory) FailedItems(context.Context) ([]history.Attempt, error) {
	latest := map[string]history.Attempt{}
	var order []string
	for _, attempt := range m.attempts {
		if _, ok := latest[attempt.ItemID]; !ok {
			order = append(order, attempt.ItemID)
		}
		latest[attempt.ItemID] = attempt
	}
	var failed []history.Attempt
	for _, id := range order {
		if latest[id].Outcome == history.OutcomeFailed {
			failed = append(failed, latest[id])
		}
	}
	return failed, nil
}

type harness struct {
	workDir   string
	stateDir  string
	source    *stubSource
	acquirer  *fakeAcquirer
	publisher *stubPublisher
	history   *memoryHistory
	watermark *watermark.Store
	opts      syncer.Options
	runs      int
}

func newHarness(t *testing.T, entries []playlist.Entry) *harness {
	t.Helper()
	workDir := t.TempDir()
	stateDir := t.TempDir()
	h := &harness{
		workDir:   workDir,
		stateDir:  stateDir,
		source:    &stubSource{entries: entries},
		acquirer:  &fakeAcquirer{dir: workDir, fail: map[string]bool{}},
		publisher: &stubPublisher{},
		history:   newMemoryHistory(),
		watermark: watermark.NewStore(filepath.Join(stateDir, "watermark")),
	}
	h.opts = syncer.Options{
		WorkDir:    workDir,
		StagingDir: filepath.Join(workDir, ".staging"),
		FeedPath:   filepath.Join(workDir, "feed.xml"),
		LockPath:   filepath.Join(stateDir, "sync.lock"),
		Select:     playlist.Options{MaxItems: 5},
	}
	return h
}

func (h *harness) engine(t *testing.T) *syncer.Engine {
	t.Helper()
	reg, err := registry.Open(h.workDir, ".mp3", filepath.Join(h.stateDir, "titles.txt"), logging.NewNop())
	if err != nil {
		t.Fatalf("registry.Open: %v", err)
	}
	builder, err := feed.NewBuilder(feed.Channel{Title: "Test Feed", BaseURL: "https://example.test/pod"},
		feed.WithClock(func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }))
	if err != nil {
		t.Fatalf("feed.NewBuilder: %v", err)
	}
	engine, err := syncer.New(syncer.Dependencies{
		Source:    h.source,
		Watermark: h.watermark,
		Registry:  reg,
		Acquirer:  h.acquirer,
		Feed:      builder,
		Publisher: h.publisher,
		History:   h.history,
	}, h.opts, syncer.WithRunIDs(func() string {
		h.runs++
		return "run-" + string(rune('0'+h.runs))
	}))
	if err != nil {
		t.Fatalf("syncer.New: %v", err)
	}
	return engine
}

func (h *harness) files(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(h.workDir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

func (h *harness) setWatermark(t *testing.T, value int) {
	t.Helper()
	if err := h.watermark.Set(context.Background(), value, true); err != nil {
		t.Fatalf("set watermark: %v", err)
	}
}

func (h *harness) loadWatermark(t *testing.T) int {
	t.Helper()
	value, err := h.watermark.Load(context.Background())
	if err != nil {
		t.Fatalf("load watermark: %v", err)
	}
	return value
}

func TestRunAcquiresNewItemsAndWritesFeed(t *testing.T) {
	h := newHarness(t, []playlist.Entry{
		{ID: "a1", Title: "S8 E28: Budget", Position: 0},
		{ID: "a2", Title: "S8 E29: Trade", Position: 1},
		{ID: "a3", Title: "Bonus interview", Position: 2},
	})

	report, err := h.engine(t).Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if report.Status != history.StatusCompleted {
		t.Fatalf("status = %q, want completed", report.Status)
	}
	want := []string{"S08E28.mp3", "S08E29.mp3", "a3.mp3", "feed.xml"}
	if diff := cmp.Diff(want, h.files(t)); diff != "" {
		t.Fatalf("work dir mismatch (-want +got):\n%s", diff)
	}
	if got := h.loadWatermark(t); got != 2 {
		t.Fatalf("watermark = %d, want 2", got)
	}
	if got := report.Count(history.OutcomeAcquired); got != 3 {
		t.Fatalf("acquired = %d, want 3", got)
	}
	doc, err := os.ReadFile(h.opts.FeedPath)
	if err != nil {
		t.Fatal(err)
	}
	for _, needle := range []string{"S8 E29: Trade", "https://example.test/pod/S08E28.mp3", "Bonus interview"} {
		if !strings.Contains(string(doc), needle) {
			t.Fatalf("feed missing %q", needle)
		}
	}
	if h.publisher.calls != 1 {
		t.Fatalf("publish calls = %d, want 1", h.publisher.calls)
	}
	if run := h.history.runs[report.RunID]; run.Status != history.StatusCompleted || run.Acquired != 3 {
		t.Fatalf("history run = %+v", run)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	h := newHarness(t, []playlist.Entry{
		{ID: "a1", Title: "S8 E28", Position: 0},
		{ID: "a2", Title: "S8 E29", Position: 1},
	})
	if _, err := h.engine(t).Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	before := h.files(t)
	calls := len(h.acquirer.calls)

	report, err := h.engine(t).Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !report.NoNewItems() {
		t.Fatalf("status = %q, want no_new_items", report.Status)
	}
	if len(h.acquirer.calls) != calls {
		t.Fatalf("second run acquired %v", h.acquirer.calls[calls:])
	}
	if diff := cmp.Diff(before, h.files(t)); diff != "" {
		t.Fatalf("work dir changed (-before +after):\n%s", diff)
	}
	if h.publisher.calls != 1 {
		t.Fatalf("publish calls = %d, want 1", h.publisher.calls)
	}
}

func TestRunSkipsExistingEpisodeArtifact(t *testing.T) {
	h := newHarness(t, []playlist.Entry{{ID: "new", Title: "S8 E30 Elections", Position: 4}})
	if err := os.WriteFile(filepath.Join(h.workDir, "S08E30.mp3"), []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	report, err := h.engine(t).Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(h.acquirer.calls) != 0 {
		t.Fatalf("unexpected acquisitions %v", h.acquirer.calls)
	}
	if got := report.Count(history.OutcomeExisting); got != 1 {
		t.Fatalf("existing = %d, want 1", got)
	}
	data, _ := os.ReadFile(filepath.Join(h.workDir, "S08E30.mp3"))
	if string(data) != "old" {
		t.Fatalf("existing artifact overwritten: %q", data)
	}
	if got := h.loadWatermark(t); got != 4 {
		t.Fatalf("watermark = %d, want 4", got)
	}
}

func TestRunPromotesArtifactLeftUnderUpstreamID(t *testing.T) {
	h := newHarness(t, []playlist.Entry{{ID: "abc", Title: "S8 E30: X", Position: 2}})
	// A previous run was killed after the download landed but before rename.
	if err := os.WriteFile(filepath.Join(h.workDir, "abc.mp3"), []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}

	report, err := h.engine(t).Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(h.acquirer.calls) != 0 {
		t.Fatalf("unexpected acquisitions %v", h.acquirer.calls)
	}
	if got := report.Count(history.OutcomeExisting); got != 1 {
		t.Fatalf("existing = %d, want 1", got)
	}
	if diff := cmp.Diff([]string{"S08E30.mp3", "feed.xml"}, h.files(t)); diff != "" {
		t.Fatalf("files mismatch (-want +got):\n%s", diff)
	}
}

func TestRunCollisionKeepsUpstreamIDName(t *testing.T) {
	h := newHarness(t, []playlist.Entry{{ID: "first", Title: "S8 E30", Position: 0}})
	if _, err := h.engine(t).Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}

	h.source.entries = append(h.source.entries, playlist.Entry{ID: "second", Title: "S8 E30 (reupload)", Position: 1})
	report, err := h.engine(t).Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(report.Items) != 1 || report.Items[0].Artifact != "second" {
		t.Fatalf("items = %+v", report.Items)
	}
	want := []string{"S08E30.mp3", "feed.xml", "second.mp3"}
	if diff := cmp.Diff(want, h.files(t)); diff != "" {
		t.Fatalf("work dir mismatch (-want +got):\n%s", diff)
	}
	data, _ := os.ReadFile(filepath.Join(h.workDir, "S08E30.mp3"))
	if string(data) != "audio:first" {
		t.Fatalf("S08E30 replaced: %q", data)
	}
}

func TestRunAdvancesPastFailedItem(t *testing.T) {
	h := newHarness(t, []playlist.Entry{
		{ID: "p9", Title: "S1 E9", Position: 9},
		{ID: "p10", Title: "S1 E10", Position: 10},
	})
	h.setWatermark(t, 8)
	h.acquirer.fail["p10"] = true

	report, err := h.engine(t).Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if got := h.loadWatermark(t); got != 10 {
		t.Fatalf("watermark = %d, want 10", got)
	}
	if diff := cmp.Diff([]string{"p10"}, report.IDs(history.OutcomeFailed)); diff != "" {
		t.Fatalf("failed ids mismatch (-want +got):\n%s", diff)
	}
	failed, _ := h.history.FailedItems(context.Background())
	if len(failed) != 1 || failed[0].ItemID != "p10" {
		t.Fatalf("ledger failed items = %+v", failed)
	}
	if _, err := os.Stat(filepath.Join(h.workDir, "S01E09.mp3")); err != nil {
		t.Fatalf("S01E09 missing: %v", err)
	}
}

func TestRunRetryFailedReattemptsLedgerItems(t *testing.T) {
	h := newHarness(t, []playlist.Entry{{ID: "p1", Title: "S1 E1", Position: 0}})
	h.acquirer.fail["p1"] = true
	if _, err := h.engine(t).Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}

	h.acquirer.fail = map[string]bool{}
	h.opts.RetryFailed = true
	report, err := h.engine(t).Run(context.Background())
	if err != nil {
		t.Fatalf("retry run: %v", err)
	}
	if len(report.Items) != 1 || !report.Items[0].Retry || report.Items[0].Outcome != history.OutcomeAcquired {
		t.Fatalf("items = %+v", report.Items)
	}
	if got := h.loadWatermark(t); got != 0 {
		t.Fatalf("watermark = %d, want 0", got)
	}
	if failed, _ := h.history.FailedItems(context.Background()); len(failed) != 0 {
		t.Fatalf("ledger still lists %+v", failed)
	}
}

func TestRunSourceUnavailableLeavesStateUntouched(t *testing.T) {
	h := newHarness(t, nil)
	h.setWatermark(t, 3)
	h.source.err = errors.New("dial tcp: connection refused")

	report, err := h.engine(t).Run(context.Background())
	if !errors.Is(err, services.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
	if report.Status != history.StatusFailed {
		t.Fatalf("status = %q, want failed", report.Status)
	}
	if got := h.loadWatermark(t); got != 3 {
		t.Fatalf("watermark = %d, want 3", got)
	}
	if h.publisher.calls != 0 {
		t.Fatal("publisher called after fetch failure")
	}
	if _, err := os.Stat(h.opts.FeedPath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("feed written after fetch failure: %v", err)
	}
}

func TestRunPublishFailureStillAdvancesWatermark(t *testing.T) {
	h := newHarness(t, []playlist.Entry{{ID: "a1", Title: "S2 E1", Position: 0}})
	h.publisher.err = errors.New("push rejected")

	report, err := h.engine(t).Run(context.Background())
	if !errors.Is(err, services.ErrPublishFailed) {
		t.Fatalf("expected ErrPublishFailed, got %v", err)
	}
	if report.Status != history.StatusPublishFail {
		t.Fatalf("status = %q, want publish_failed", report.Status)
	}
	if got := h.loadWatermark(t); got != 0 {
		t.Fatalf("watermark = %d, want 0", got)
	}
	if _, err := os.Stat(h.opts.FeedPath); err != nil {
		t.Fatalf("feed missing: %v", err)
	}
}

func TestRunRefusesConcurrentRun(t *testing.T) {
	h := newHarness(t, []playlist.Entry{{ID: "a1", Title: "S2 E1", Position: 0}})
	lease, err := runlock.Acquire(h.opts.LockPath)
	if err != nil {
		t.Fatalf("acquire lock: %v", err)
	}
	defer func() { _ = lease.Release() }()

	_, err = h.engine(t).Run(context.Background())
	if !errors.Is(err, services.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	if h.source.calls != 0 {
		t.Fatal("source fetched while another run held the lock")
	}
}

func TestRunSkipsEntriesWithoutCodeWhenRequired(t *testing.T) {
	h := newHarness(t, []playlist.Entry{
		{ID: "clip", Title: "Behind the scenes", Position: 0},
		{ID: "ep", Title: "S3 E1", Position: 1},
	})
	h.opts.Select.RequireCode = true

	report, err := h.engine(t).Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if diff := cmp.Diff([]string{"ep"}, h.acquirer.calls); diff != "" {
		t.Fatalf("acquisitions mismatch (-want +got):\n%s", diff)
	}
	if got := report.Count(history.OutcomeSkipped); got != 1 {
		t.Fatalf("skipped = %d, want 1", got)
	}
	if got := h.loadWatermark(t); got != 1 {
		t.Fatalf("watermark = %d, want 1", got)
	}
}

func TestRunCancelledLeavesWatermark(t *testing.T) {
	h := newHarness(t, []playlist.Entry{{ID: "a1", Title: "S2 E1", Position: 0}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.engine(t).Run(ctx)
	if err == nil {
		t.Fatal("expected error from cancelled run")
	}
	if got := h.loadWatermark(t); got != watermark.None {
		t.Fatalf("watermark = %d, want none", got)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := syncer.New(syncer.Dependencies{Publisher: publish.Noop{}}, syncer.Options{}); err == nil {
		t.Fatal("expected error for missing dependencies")
	}
}
