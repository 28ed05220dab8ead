package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"podmirror/internal/acquire"
	"podmirror/internal/config"
	"podmirror/internal/feed"
	"podmirror/internal/history"
	"podmirror/internal/metrics"
	"podmirror/internal/notifications"
	"podmirror/internal/playlist"
	"podmirror/internal/playlist/youtube"
	"podmirror/internal/playlist/ytdlp"
	"podmirror/internal/publish"
	"podmirror/internal/registry"
	"podmirror/internal/syncer"
	"podmirror/internal/watermark"
)

func newSource(cfg *config.Config) (playlist.Source, error) {
	timeout := time.Duration(cfg.Source.TimeoutSeconds) * time.Second
	switch cfg.Source.Kind {
	case config.SourceYTDLP:
		return ytdlp.New(cfg.Acquire.YTDLPBinary, cfg.Source.PlaylistURL, ytdlp.WithTimeout(timeout))
	case config.SourceYouTubeAPI:
		return youtube.New(cfg.Source.APIKey, cfg.Source.BaseURL, cfg.Source.PlaylistID,
			youtube.WithHTTPClient(&http.Client{Timeout: timeout}),
			youtube.WithMaxPages(cfg.Source.MaxPages),
		)
	default:
		return nil, fmt.Errorf("unsupported source kind %q", cfg.Source.Kind)
	}
}

func openRegistry(cfg *config.Config, logger *slog.Logger) (*registry.Registry, error) {
	return registry.Open(cfg.Paths.WorkDir, cfg.Sync.MediaExtension, cfg.TitleMapPath(), logger)
}

func newFeedBuilder(cfg *config.Config) (*feed.Builder, error) {
	return feed.NewBuilder(feed.Channel{
		Title:       cfg.Feed.Title,
		Link:        cfg.Feed.Link,
		Description: cfg.Feed.Description,
		Language:    cfg.Feed.Language,
		ImageURL:    cfg.Feed.ImageURL,
		Author:      cfg.Feed.Author,
		BaseURL:     cfg.Feed.BaseURL,
	}, feed.WithPubDateOffset(time.Duration(cfg.Feed.PubDateOffsetMinutes)*time.Minute))
}

func newPublisher(cfg *config.Config, logger *slog.Logger) (publish.Publisher, error) {
	if !cfg.Publish.Enabled {
		return publish.Noop{}, nil
	}
	return publish.NewGit(publish.GitConfig{
		Binary:        cfg.Publish.GitBinary,
		RemoteURL:     cfg.Publish.RemoteURL,
		Token:         cfg.Publish.Token,
		Branch:        cfg.Publish.Branch,
		Force:         cfg.Publish.Force,
		CommitMessage: cfg.Publish.CommitMessage,
		AuthorName:    cfg.Publish.AuthorName,
		AuthorEmail:   cfg.Publish.AuthorEmail,
		PushAttempts:  cfg.Publish.PushAttempts,
		Exclude:       []string{"/.staging/"},
	}, publish.WithLogger(logger))
}

func newGateway(cfg *config.Config, logger *slog.Logger) (*acquire.Gateway, error) {
	strategies, err := acquire.ResolveStrategies(cfg.Acquire.Strategies)
	if err != nil {
		return nil, err
	}
	return acquire.New(acquire.Config{
		Binary:      cfg.Acquire.YTDLPBinary,
		AudioFormat: cfg.Acquire.AudioFormat,
		Ext:         cfg.Sync.MediaExtension,
		Dir:         cfg.Paths.WorkDir,
		StagingDir:  cfg.StagingDir(),
		Strategies:  strategies,
		Timeout:     time.Duration(cfg.Acquire.TimeoutSeconds) * time.Second,
		MinInterval: time.Duration(cfg.Acquire.MinIntervalSeconds) * time.Second,
	}, acquire.WithLogger(logger))
}

// openHistory returns nil when the ledger is disabled.
func openHistory(cfg *config.Config) (*history.Store, error) {
	if !cfg.History.Enabled {
		return nil, nil
	}
	store, err := history.Open(cfg.History.Path)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	return store, nil
}

func buildEngine(cfg *config.Config, logger *slog.Logger, hist *history.Store) (*syncer.Engine, error) {
	source, err := newSource(cfg)
	if err != nil {
		return nil, err
	}
	reg, err := openRegistry(cfg, logger)
	if err != nil {
		return nil, err
	}
	gateway, err := newGateway(cfg, logger)
	if err != nil {
		return nil, err
	}
	builder, err := newFeedBuilder(cfg)
	if err != nil {
		return nil, err
	}
	publisher, err := newPublisher(cfg, logger)
	if err != nil {
		return nil, err
	}

	deps := syncer.Dependencies{
		Source:    source,
		Watermark: watermark.NewStore(cfg.WatermarkPath()),
		Registry:  reg,
		Acquirer:  gateway,
		Feed:      builder,
		Publisher: publisher,
		Notifier:  notifications.NewService(cfg),
	}
	if hist != nil {
		deps.History = hist
	}
	if cfg.Metrics.TextfilePath != "" {
		deps.Metrics = metrics.NewRecorder()
	}

	return syncer.New(deps, syncer.Options{
		WorkDir:     cfg.Paths.WorkDir,
		StagingDir:  cfg.StagingDir(),
		FeedPath:    cfg.FeedPath(),
		LockPath:    cfg.LockPath(),
		MetricsPath: cfg.Metrics.TextfilePath,
		Select: playlist.Options{
			MaxItems:    cfg.Sync.MaxItems,
			RequireCode: cfg.Sync.RequireEpisodeCode,
		},
		StagingMaxAge: time.Duration(cfg.Sync.StagingMaxAgeHours) * time.Hour,
		RetryFailed:   cfg.Sync.RetryFailed,
	}, syncer.WithLogger(logger))
}
