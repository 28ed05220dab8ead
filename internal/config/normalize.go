package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeSource()
	c.normalizeSync()
	c.normalizeAcquire()
	c.normalizeFeed()
	c.normalizePublish()
	c.normalizeNotifications()
	if err := c.normalizeMetrics(); err != nil {
		return err
	}
	if err := c.normalizeHistory(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeSource() {
	c.Source.Kind = strings.ToLower(strings.TrimSpace(c.Source.Kind))
	if c.Source.Kind == "" {
		c.Source.Kind = defaultSourceKind
	}
	c.Source.PlaylistID = strings.TrimSpace(c.Source.PlaylistID)
	c.Source.PlaylistURL = strings.TrimSpace(c.Source.PlaylistURL)
	if c.Source.PlaylistURL == "" && c.Source.PlaylistID != "" {
		c.Source.PlaylistURL = "https://www.youtube.com/playlist?list=" + c.Source.PlaylistID
	}
	c.Source.APIKey = strings.TrimSpace(c.Source.APIKey)
	if c.Source.APIKey == "" {
		if value, ok := os.LookupEnv("YOUTUBE_API_KEY"); ok {
			c.Source.APIKey = strings.TrimSpace(value)
		}
	}
	c.Source.BaseURL = strings.TrimRight(strings.TrimSpace(c.Source.BaseURL), "/")
	if c.Source.BaseURL == "" {
		c.Source.BaseURL = defaultYouTubeBaseURL
	}
	if c.Source.MaxPages <= 0 {
		c.Source.MaxPages = defaultSourceMaxPages
	}
	if c.Source.TimeoutSeconds <= 0 {
		c.Source.TimeoutSeconds = defaultSourceTimeout
	}
}

func (c *Config) normalizeSync() {
	ext := strings.ToLower(strings.TrimSpace(c.Sync.MediaExtension))
	if ext == "" {
		ext = defaultMediaExtension
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	c.Sync.MediaExtension = ext
	if c.Sync.StagingMaxAgeHours <= 0 {
		c.Sync.StagingMaxAgeHours = defaultStagingMaxAgeHours
	}
}

func (c *Config) normalizeAcquire() {
	c.Acquire.YTDLPBinary = strings.TrimSpace(c.Acquire.YTDLPBinary)
	if c.Acquire.YTDLPBinary == "" {
		c.Acquire.YTDLPBinary = defaultYTDLPBinary
	}
	c.Acquire.AudioFormat = strings.ToLower(strings.TrimSpace(c.Acquire.AudioFormat))
	if c.Acquire.AudioFormat == "" {
		c.Acquire.AudioFormat = strings.TrimPrefix(c.Sync.MediaExtension, ".")
	}
	if c.Acquire.TimeoutSeconds <= 0 {
		c.Acquire.TimeoutSeconds = defaultAcquireTimeout
	}
	if c.Acquire.MinIntervalSeconds < 0 {
		c.Acquire.MinIntervalSeconds = 0
	}
	strategies := make([]string, 0, len(c.Acquire.Strategies))
	seen := make(map[string]struct{}, len(c.Acquire.Strategies))
	for _, name := range c.Acquire.Strategies {
		normalized := strings.ToLower(strings.TrimSpace(name))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		strategies = append(strategies, normalized)
	}
	if len(strategies) == 0 {
		strategies = append(strategies, DefaultStrategies...)
	}
	c.Acquire.Strategies = strategies
}

func (c *Config) normalizeFeed() {
	c.Feed.File = strings.TrimSpace(c.Feed.File)
	if c.Feed.File == "" {
		c.Feed.File = defaultFeedFile
	}
	c.Feed.Title = strings.TrimSpace(c.Feed.Title)
	if c.Feed.Title == "" {
		c.Feed.Title = defaultFeedTitle
	}
	c.Feed.Description = strings.TrimSpace(c.Feed.Description)
	if c.Feed.Description == "" {
		c.Feed.Description = defaultFeedDescription
	}
	c.Feed.Language = strings.ToLower(strings.TrimSpace(c.Feed.Language))
	if c.Feed.Language == "" {
		c.Feed.Language = defaultFeedLanguage
	}
	c.Feed.BaseURL = strings.TrimRight(strings.TrimSpace(c.Feed.BaseURL), "/")
	c.Feed.Link = strings.TrimSpace(c.Feed.Link)
	if c.Feed.Link == "" {
		c.Feed.Link = c.Feed.BaseURL
	}
	c.Feed.ImageURL = strings.TrimSpace(c.Feed.ImageURL)
	c.Feed.Author = strings.TrimSpace(c.Feed.Author)
	if c.Feed.PubDateOffsetMinutes <= 0 {
		c.Feed.PubDateOffsetMinutes = defaultPubDateOffset
	}
}

func (c *Config) normalizePublish() {
	c.Publish.GitBinary = strings.TrimSpace(c.Publish.GitBinary)
	if c.Publish.GitBinary == "" {
		c.Publish.GitBinary = defaultGitBinary
	}
	c.Publish.RemoteURL = strings.TrimSpace(c.Publish.RemoteURL)
	c.Publish.Token = strings.TrimSpace(c.Publish.Token)
	if c.Publish.Token == "" {
		if value, ok := os.LookupEnv("GITHUB_TOKEN"); ok {
			c.Publish.Token = strings.TrimSpace(value)
		}
	}
	c.Publish.Branch = strings.TrimSpace(c.Publish.Branch)
	if c.Publish.Branch == "" {
		c.Publish.Branch = defaultPublishBranch
	}
	c.Publish.CommitMessage = strings.TrimSpace(c.Publish.CommitMessage)
	if c.Publish.CommitMessage == "" {
		c.Publish.CommitMessage = defaultCommitMessage
	}
	if strings.TrimSpace(c.Publish.AuthorName) == "" {
		c.Publish.AuthorName = defaultAuthorName
	}
	if strings.TrimSpace(c.Publish.AuthorEmail) == "" {
		c.Publish.AuthorEmail = defaultAuthorEmail
	}
	if c.Publish.PushAttempts <= 0 {
		c.Publish.PushAttempts = defaultPushAttempts
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeMetrics() error {
	var err error
	if c.Metrics.TextfilePath, err = expandPath(strings.TrimSpace(c.Metrics.TextfilePath)); err != nil {
		return fmt.Errorf("metrics.textfile_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeHistory() error {
	path := strings.TrimSpace(c.History.Path)
	if path == "" {
		path = filepath.Join(c.Paths.StateDir, "history.db")
	}
	var err error
	if c.History.Path, err = expandPath(path); err != nil {
		return fmt.Errorf("history.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
