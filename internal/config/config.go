package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	WorkDir  string `toml:"work_dir"`
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// Source selects and configures the upstream playlist snapshot provider.
type Source struct {
	Kind           string `toml:"kind"`
	PlaylistID     string `toml:"playlist_id"`
	PlaylistURL    string `toml:"playlist_url"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	MaxPages       int    `toml:"max_pages"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Sync contains selection and bookkeeping settings for a run.
type Sync struct {
	MaxItems           int    `toml:"max_items"`
	RequireEpisodeCode bool   `toml:"require_episode_code"`
	MediaExtension     string `toml:"media_extension"`
	StagingMaxAgeHours int    `toml:"staging_max_age_hours"`
	RetryFailed        bool   `toml:"retry_failed"`
}

// Acquire configures the yt-dlp downloader and its fallback strategies.
type Acquire struct {
	YTDLPBinary        string   `toml:"ytdlp_binary"`
	AudioFormat        string   `toml:"audio_format"`
	TimeoutSeconds     int      `toml:"timeout_seconds"`
	Strategies         []string `toml:"strategies"`
	MinIntervalSeconds int      `toml:"min_interval_seconds"`
}

// Feed contains channel metadata and hosting settings for the RSS document.
type Feed struct {
	File                 string `toml:"file"`
	Title                string `toml:"title"`
	Link                 string `toml:"link"`
	Description          string `toml:"description"`
	Language             string `toml:"language"`
	ImageURL             string `toml:"image_url"`
	Author               string `toml:"author"`
	BaseURL              string `toml:"base_url"`
	PubDateOffsetMinutes int    `toml:"pubdate_offset_minutes"`
}

// Publish configures the git-based publisher.
type Publish struct {
	Enabled       bool   `toml:"enabled"`
	GitBinary     string `toml:"git_binary"`
	RemoteURL     string `toml:"remote_url"`
	Token         string `toml:"token"`
	Branch        string `toml:"branch"`
	Force         bool   `toml:"force"`
	CommitMessage string `toml:"commit_message"`
	AuthorName    string `toml:"author_name"`
	AuthorEmail   string `toml:"author_email"`
	PushAttempts  int    `toml:"push_attempts"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Episodes       bool   `toml:"episodes"`
	Errors         bool   `toml:"errors"`
}

// Metrics configures the Prometheus textfile written after every run.
type Metrics struct {
	TextfilePath string `toml:"textfile_path"`
}

// History configures the SQLite run ledger.
type History struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for podmirror.
//
// Configuration sections by subsystem:
//   - Paths: work directory (published tree), state and log directories
//   - Source: playlist snapshot provider (YouTube Data API or yt-dlp)
//   - Sync: batch size, episode-code filter, staging cleanup
//   - Acquire: yt-dlp binary, audio format, fallback strategies
//   - Feed: RSS channel metadata and enclosure base URL
//   - Publish: git remote, branch and credentials
//   - Notifications: ntfy push notification settings
//   - Metrics: Prometheus textfile output
//   - History: SQLite run ledger
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Source        Source        `toml:"source"`
	Sync          Sync          `toml:"sync"`
	Acquire       Acquire       `toml:"acquire"`
	Feed          Feed          `toml:"feed"`
	Publish       Publish       `toml:"publish"`
	Notifications Notifications `toml:"notifications"`
	Metrics       Metrics       `toml:"metrics"`
	History       History       `toml:"history"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("podmirror.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories a sync run writes into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// WatermarkPath returns the file holding the last processed playlist position.
func (c *Config) WatermarkPath() string {
	return filepath.Join(c.Paths.StateDir, "last_position.txt")
}

// TitleMapPath returns the file holding the artifact name to title mapping.
func (c *Config) TitleMapPath() string {
	return filepath.Join(c.Paths.StateDir, "titles.txt")
}

// LockPath returns the run lease file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "podmirror.lock")
}

// FeedPath returns the absolute path of the generated RSS document.
func (c *Config) FeedPath() string {
	return filepath.Join(c.Paths.WorkDir, c.Feed.File)
}

// StagingDir returns the directory holding in-progress downloads.
func (c *Config) StagingDir() string {
	return filepath.Join(c.Paths.WorkDir, ".staging")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
