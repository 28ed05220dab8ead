// Package syncer orchestrates one incremental playlist-to-feed run: fetch a
// snapshot, select entries above the watermark, acquire and register each,
// rebuild the feed from the work directory, advance the watermark, publish.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"podmirror/internal/acquire"
	"podmirror/internal/episodeid"
	"podmirror/internal/feed"
	"podmirror/internal/history"
	"podmirror/internal/logging"
	"podmirror/internal/metrics"
	"podmirror/internal/notifications"
	"podmirror/internal/playlist"
	"podmirror/internal/publish"
	"podmirror/internal/registry"
	"podmirror/internal/runlock"
	"podmirror/internal/services"
	"podmirror/internal/staging"
	"podmirror/internal/watermark"
)

// Acquirer fetches media for one item. *acquire.Gateway implements it.
type Acquirer interface {
	Acquire(ctx context.Context, req acquire.Request) acquire.Result
}

// Dependencies are the collaborators a run drives. History, Metrics and
// Notifier are optional.
type Dependencies struct {
	Source    playlist.Source
	Watermark *watermark.Store
	Registry  *registry.Registry
	Acquirer  Acquirer
	Feed      *feed.Builder
	Publisher publish.Publisher
	History   history.Recorder
	Metrics   *metrics.Recorder
	Notifier  notifications.Service
}

// Options are the per-deployment run settings.
type Options struct {
	WorkDir       string
	StagingDir    string
	FeedPath      string
	LockPath      string
	MetricsPath   string
	Select        playlist.Options
	StagingMaxAge time.Duration
	// RetryFailed re-attempts items the history ledger lists as failed while
	// they remain in the snapshot.
	RetryFailed bool
}

// Engine runs syncs.
type Engine struct {
	deps   Dependencies
	opts   Options
	logger *slog.Logger
	newID  func() string
	now    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithRunIDs overrides run id generation (tests).
func WithRunIDs(next func() string) Option {
	return func(e *Engine) {
		if next != nil {
			e.newID = next
		}
	}
}

// New validates deps and returns an Engine.
func New(deps Dependencies, opts Options, options ...Option) (*Engine, error) {
	switch {
	case deps.Source == nil:
		return nil, errors.New("syncer: playlist source required")
	case deps.Watermark == nil:
		return nil, errors.New("syncer: watermark store required")
	case deps.Registry == nil:
		return nil, errors.New("syncer: registry required")
	case deps.Acquirer == nil:
		return nil, errors.New("syncer: acquirer required")
	case deps.Feed == nil:
		return nil, errors.New("syncer: feed builder required")
	case opts.FeedPath == "":
		return nil, errors.New("syncer: feed path required")
	}
	if deps.Publisher == nil {
		deps.Publisher = publish.Noop{}
	}
	e := &Engine{
		deps:   deps,
		opts:   opts,
		logger: logging.NewNop(),
		newID:  uuid.NewString,
		now:    time.Now,
	}
	for _, opt := range options {
		opt(e)
	}
	e.logger = logging.NewComponentLogger(e.logger, "syncer")
	return e, nil
}

// Run performs one sync. The returned report is populated as far as the run
// got, even when an error is returned. NoNewItems is a successful run.
func (e *Engine) Run(ctx context.Context) (Report, error) {
	report := Report{
		RunID:           e.newID(),
		StartedAt:       e.now(),
		Status:          history.StatusRunning,
		WatermarkBefore: watermark.None,
		WatermarkAfter:  watermark.None,
	}
	ctx = services.WithRunID(ctx, report.RunID)
	logger := logging.WithContext(ctx, e.logger)

	if e.opts.LockPath != "" {
		lease, err := runlock.Acquire(e.opts.LockPath)
		if err != nil {
			report.Status = history.StatusFailed
			return report, err
		}
		defer func() {
			if err := lease.Release(); err != nil {
				logger.Warn("failed to release run lock", logging.Error(err))
			}
		}()
	}

	if e.opts.StagingDir != "" {
		staging.CleanStale(ctx, e.opts.StagingDir, e.opts.StagingMaxAge, report.RunID, logger)
		defer func() {
			if err := staging.RemoveRun(e.opts.StagingDir, report.RunID); err != nil {
				logger.Warn("failed to remove run staging directory", logging.Error(err))
			}
		}()
	}

	stage, err := e.run(ctx, logger, &report)
	e.finish(ctx, logger, &report, stage, err)
	return report, err
}

// run executes the stages and returns the stage name alongside any error.
func (e *Engine) run(ctx context.Context, logger *slog.Logger, report *Report) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	wm, err := e.deps.Watermark.Load(ctx)
	if err != nil {
		return "watermark", services.Wrap(services.ErrValidation, "watermark", "load", e.deps.Watermark.Path(), err)
	}
	report.WatermarkBefore = wm
	report.WatermarkAfter = wm
	e.startHistory(ctx, logger, report)

	fetchCtx := services.WithStage(ctx, "fetch")
	snapshot, err := e.deps.Source.Snapshot(fetchCtx)
	if err == nil {
		err = playlist.Validate(snapshot)
	}
	if err != nil {
		return "fetch", services.Wrap(services.ErrSourceUnavailable, "fetch", "snapshot", "", err)
	}
	report.SnapshotSize = len(snapshot)

	sel := playlist.Select(snapshot, wm, e.opts.Select)
	retries := e.retryCandidates(ctx, logger, snapshot, sel)
	report.Deferred = len(sel.Deferred)
	logger.Info("selection complete",
		logging.Int("snapshot", len(snapshot)),
		logging.Int("watermark", wm),
		logging.Int("batch", len(sel.Batch)),
		logging.Int("skipped", len(sel.Skipped)),
		logging.Int("deferred", len(sel.Deferred)),
		logging.Int("retries", len(retries)),
		logging.Int("high_water", sel.HighWater),
	)
	if sel.Empty() && len(retries) == 0 {
		report.Status = history.StatusNoNewItems
		logger.Info("no new items", logging.String(logging.FieldEventType, "sync_no_new_items"))
		return "", nil
	}

	for _, entry := range sel.Skipped {
		logger.Info("skipping entry without episode code",
			logging.Args(append(logging.ItemAttrs(entry.ID, entry.Position), logging.String("title", entry.Title))...)...,
		)
		e.record(ctx, logger, report, ItemResult{Entry: entry, Outcome: history.OutcomeSkipped})
	}

	work := make([]ItemResult, 0, len(sel.Batch)+len(retries))
	for _, entry := range sel.Batch {
		work = append(work, ItemResult{Entry: entry})
	}
	work = append(work, retries...)
	for _, item := range work {
		if err := ctx.Err(); err != nil {
			return "acquire", err
		}
		result := e.processItem(ctx, logger, item)
		e.record(ctx, logger, report, result)
	}

	if err := e.rebuildFeed(ctx, logger, report); err != nil {
		return "feed", err
	}

	after, err := e.deps.Watermark.Advance(ctx, sel.HighWater)
	if err != nil {
		return "watermark", fmt.Errorf("advance watermark: %w", err)
	}
	report.WatermarkAfter = after
	logger.Info("watermark advanced",
		logging.Int("from", report.WatermarkBefore),
		logging.Int("to", after),
		logging.String(logging.FieldEventType, "watermark_advanced"),
	)

	publishCtx := services.WithStage(ctx, "publish")
	if err := e.deps.Publisher.Publish(publishCtx, e.opts.WorkDir); err != nil {
		if !errors.Is(err, services.ErrPublishFailed) {
			err = services.Wrap(services.ErrPublishFailed, "publish", "", "", err)
		}
		report.Status = history.StatusPublishFail
		return "publish", err
	}
	if _, noop := e.deps.Publisher.(publish.Noop); !noop {
		report.Published = true
	}
	report.Status = history.StatusCompleted
	return "", nil
}

// retryCandidates returns snapshot entries the ledger lists as failed that
// are not already part of this run's selection.
func (e *Engine) retryCandidates(ctx context.Context, logger *slog.Logger, snapshot []playlist.Entry, sel playlist.Selection) []ItemResult {
	if !e.opts.RetryFailed || e.deps.History == nil {
		return nil
	}
	failed, err := e.deps.History.FailedItems(ctx)
	if err != nil {
		logger.Warn("failed to load failed items; skipping retries", logging.Error(err))
		return nil
	}
	if len(failed) == 0 {
		return nil
	}
	pending := make(map[string]struct{}, len(failed))
	for _, attempt := range failed {
		pending[attempt.ItemID] = struct{}{}
	}
	for _, group := range [][]playlist.Entry{sel.Batch, sel.Skipped, sel.Deferred} {
		for _, entry := range group {
			delete(pending, entry.ID)
		}
	}
	var retries []ItemResult
	for _, entry := range snapshot {
		if _, ok := pending[entry.ID]; ok {
			retries = append(retries, ItemResult{Entry: entry, Retry: true})
		}
	}
	return retries
}

func (e *Engine) processItem(ctx context.Context, logger *slog.Logger, item ItemResult) ItemResult {
	entry := item.Entry
	ctx = services.WithStage(services.WithItemID(ctx, entry.ID), "acquire")
	itemLogger := logger.With(logging.Args(logging.ItemAttrs(entry.ID, entry.Position)...)...)

	code, pattern, hasCode := episodeid.ExtractWithPattern(entry.Title)
	if hasCode {
		itemLogger.Debug("episode code extracted",
			logging.String(logging.FieldEpisode, code.Name()),
			logging.String("pattern", pattern),
		)
	} else {
		itemLogger.Info("episode code not found; using upstream id",
			logging.String("title", entry.Title),
			logging.String(logging.FieldEventType, "episode_code_missing"),
		)
	}

	plan, err := e.deps.Registry.Resolve(entry, code, hasCode)
	if err != nil {
		item.Outcome = history.OutcomeFailed
		item.Err = err
		return item
	}
	if plan.Satisfied {
		item.Outcome = history.OutcomeExisting
		item.Artifact = plan.Name
		if err := e.deps.Registry.Remember(plan.Name, entry); err != nil {
			itemLogger.Warn("failed to record title mapping", logging.Error(err))
		}
		itemLogger.Info("artifact already present; skipping acquisition",
			logging.Args(logging.DecisionAttrs("acquire", "skip", "artifact exists")...)...,
		)
		return item
	}
	if plan.Collision {
		itemLogger.Info("episode code owned by another item; acquiring under upstream id",
			logging.String(logging.FieldEpisode, code.Name()),
			logging.String(logging.FieldEventType, "episode_code_collision"),
		)
	}

	var result acquire.Result
	if plan.Promote {
		itemLogger.Info("promoting artifact left under upstream id",
			logging.Args(append([]logging.Attr{logging.String(logging.FieldEpisode, plan.Name)},
				logging.DecisionAttrs("acquire", "skip", "id-named artifact exists")...)...)...,
		)
		result = acquire.Result{OK: true, Existing: true}
	} else {
		result = e.deps.Acquirer.Acquire(ctx, acquire.Request{ItemID: entry.ID, Target: plan.TempName})
	}
	item.Strategy = result.Strategy
	if !result.OK {
		item.Outcome = history.OutcomeFailed
		item.Err = result.Err
		logging.WarnWithContext(itemLogger, "acquisition failed; item excluded from this run", "acquire_failed",
			logging.String("title", entry.Title),
			logging.Int("attempts", result.Attempts),
			logging.Error(result.Err),
			logging.String(logging.FieldErrorHint, "check yt-dlp output; the item is listed by `podmirror history --failed`"),
			logging.String(logging.FieldImpact, "episode missing from feed"),
		)
		return item
	}

	name, err := e.deps.Registry.Register(entry, code, hasCode, plan.TempName)
	if err != nil && name == "" {
		item.Outcome = history.OutcomeFailed
		item.Err = fmt.Errorf("register artifact: %w", err)
		return item
	}
	if err != nil {
		itemLogger.Warn("artifact registered but title mapping not saved", logging.Error(err))
	}
	item.Artifact = name
	item.Outcome = history.OutcomeAcquired
	if result.Existing {
		item.Outcome = history.OutcomeExisting
	}
	return item
}

func (e *Engine) rebuildFeed(ctx context.Context, logger *slog.Logger, report *Report) error {
	artifacts, err := e.deps.Registry.Artifacts()
	if err != nil {
		return fmt.Errorf("scan artifacts: %w", err)
	}
	doc, err := e.deps.Feed.Build(artifacts, e.deps.Registry.Mapping())
	if err != nil {
		return fmt.Errorf("build feed: %w", err)
	}
	if err := feed.Write(e.opts.FeedPath, doc); err != nil {
		return fmt.Errorf("write feed: %w", err)
	}
	report.Artifacts = len(artifacts)
	logging.WithContext(services.WithStage(ctx, "feed"), logger).Info("feed written",
		logging.String("path", e.opts.FeedPath),
		logging.Int("items", len(artifacts)),
		logging.String(logging.FieldEventType, "feed_written"),
	)
	return nil
}

func (e *Engine) record(ctx context.Context, logger *slog.Logger, report *Report, item ItemResult) {
	report.Items = append(report.Items, item)
	if e.deps.History == nil {
		return
	}
	attempt := history.Attempt{
		RunID:      report.RunID,
		ItemID:     item.Entry.ID,
		Position:   item.Entry.Position,
		Title:      item.Entry.Title,
		Artifact:   item.Artifact,
		Outcome:    item.Outcome,
		Strategy:   item.Strategy,
		RecordedAt: e.now(),
	}
	if item.Err != nil {
		attempt.Error = item.Err.Error()
	}
	if err := e.deps.History.RecordAttempt(ctx, attempt); err != nil {
		logger.Warn("failed to record item attempt", logging.String(logging.FieldItemID, item.Entry.ID), logging.Error(err))
	}
}

func (e *Engine) startHistory(ctx context.Context, logger *slog.Logger, report *Report) {
	if e.deps.History == nil {
		return
	}
	err := e.deps.History.StartRun(ctx, history.Run{
		ID:              report.RunID,
		StartedAt:       report.StartedAt,
		WatermarkBefore: report.WatermarkBefore,
	})
	if err != nil {
		logger.Warn("failed to record run start", logging.Error(err))
	}
}

// finish records the run in history and metrics and sends notifications.
// Every step is best-effort; failures are logged.
func (e *Engine) finish(ctx context.Context, logger *slog.Logger, report *Report, stage string, runErr error) {
	finished := e.now()
	report.Duration = finished.Sub(report.StartedAt)
	if runErr != nil && report.Status != history.StatusPublishFail {
		report.Status = history.StatusFailed
	}
	// Reporting must not be cut short by a cancelled run context.
	ctx = context.WithoutCancel(ctx)

	if e.deps.History != nil && report.Status != history.StatusRunning {
		run := history.Run{
			ID:             report.RunID,
			FinishedAt:     &finished,
			Status:         report.Status,
			WatermarkAfter: report.WatermarkAfter,
			SnapshotSize:   report.SnapshotSize,
			Selected:       report.Selected(),
			Acquired:       report.Count(history.OutcomeAcquired),
			Existing:       report.Count(history.OutcomeExisting),
			Failed:         report.Count(history.OutcomeFailed),
			Skipped:        report.Count(history.OutcomeSkipped),
			Published:      report.Published,
		}
		if runErr != nil {
			run.Error = runErr.Error()
		}
		if err := e.deps.History.FinishRun(ctx, run); err != nil {
			logger.Warn("failed to record run result", logging.Error(err))
		}
	}

	if e.deps.Metrics != nil {
		e.deps.Metrics.Observe(metrics.Run{
			Status:       report.Status,
			Watermark:    report.WatermarkAfter,
			SnapshotSize: report.SnapshotSize,
			Selected:     report.Selected(),
			Acquired:     report.Count(history.OutcomeAcquired),
			Existing:     report.Count(history.OutcomeExisting),
			Failed:       report.Count(history.OutcomeFailed),
			Skipped:      report.Count(history.OutcomeSkipped),
			Artifacts:    report.Artifacts,
			Published:    report.Published,
			Duration:     report.Duration,
			FinishedAt:   finished,
		})
		if err := e.deps.Metrics.WriteTextfile(e.opts.MetricsPath); err != nil {
			logger.Warn("failed to write metrics textfile", logging.Error(err))
		}
	}

	if notifier := e.deps.Notifier; notifier != nil {
		if titles := report.Titles(history.OutcomeAcquired); len(titles) > 0 {
			if err := notifier.NotifyNewEpisodes(ctx, titles); err != nil {
				logger.Warn("new episode notification failed", logging.Error(err))
			}
		}
		if ids := report.IDs(history.OutcomeFailed); len(ids) > 0 {
			if err := notifier.NotifyAcquisitionFailures(ctx, ids); err != nil {
				logger.Warn("failure notification failed", logging.Error(err))
			}
		}
		if runErr != nil {
			if err := notifier.NotifyError(ctx, runErr, stage); err != nil {
				logger.Warn("error notification failed", logging.Error(err))
			}
		}
	}

	attrs := []logging.Attr{
		logging.String("status", report.Status),
		logging.Int("acquired", report.Count(history.OutcomeAcquired)),
		logging.Int("existing", report.Count(history.OutcomeExisting)),
		logging.Int("failed", report.Count(history.OutcomeFailed)),
		logging.Int("skipped", report.Count(history.OutcomeSkipped)),
		logging.Int("watermark", report.WatermarkAfter),
		logging.Duration("duration", report.Duration.Round(time.Millisecond)),
		logging.String(logging.FieldEventType, "sync_finished"),
	}
	if runErr != nil {
		logging.ErrorWithContext(logger, "sync failed", "sync_failed",
			append(attrs,
				logging.String(logging.FieldStage, stage),
				logging.Error(runErr),
				logging.String(logging.FieldErrorHint, hintFor(runErr)),
			)...,
		)
		return
	}
	logger.Info("sync finished", logging.Args(attrs...)...)
}

func hintFor(err error) string {
	switch {
	case errors.Is(err, services.ErrSourceUnavailable):
		return "check network access, api key and quota; nothing was changed"
	case errors.Is(err, services.ErrPublishFailed):
		return "local feed is updated; rerun `podmirror publish` once the remote is reachable"
	case errors.Is(err, services.ErrValidation):
		return "inspect or reset the watermark with `podmirror watermark`"
	case errors.Is(err, context.Canceled):
		return "run interrupted; watermark unchanged"
	default:
		return "see log for details"
	}
}
