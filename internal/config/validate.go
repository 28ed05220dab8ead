package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var knownStrategies = map[string]struct{}{
	"default":    {},
	"android":    {},
	"best_audio": {},
	"ipv4":       {},
	"web_safari": {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateSource(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validateAcquire(); err != nil {
		return err
	}
	if err := c.validateFeed(); err != nil {
		return err
	}
	if err := c.validatePublish(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateSource() error {
	switch c.Source.Kind {
	case SourceYouTubeAPI:
		if c.Source.PlaylistID == "" {
			return errors.New("source.playlist_id is required for the youtube_api source")
		}
		if c.Source.APIKey == "" {
			defaultPath, err := DefaultConfigPath()
			if err != nil {
				defaultPath = defaultConfigPath
			}
			return fmt.Errorf("source.api_key is required. Set YOUTUBE_API_KEY env var or edit %s (create with 'podmirror config init')", defaultPath)
		}
	case SourceYTDLP:
		if c.Source.PlaylistURL == "" {
			return errors.New("source.playlist_url or source.playlist_id is required for the ytdlp source")
		}
	default:
		return fmt.Errorf("source.kind: unsupported value %q (want %s or %s)", c.Source.Kind, SourceYouTubeAPI, SourceYTDLP)
	}
	if err := requireHTTPURL("source.base_url", c.Source.BaseURL); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateSync() error {
	if c.Sync.MaxItems < 0 {
		return errors.New("sync.max_items must be zero (unlimited) or positive")
	}
	if strings.ContainsAny(c.Sync.MediaExtension, `/\`) || c.Sync.MediaExtension == "." {
		return fmt.Errorf("sync.media_extension: invalid value %q", c.Sync.MediaExtension)
	}
	if c.Sync.RetryFailed && !c.History.Enabled {
		return errors.New("sync.retry_failed requires history.enabled")
	}
	return nil
}

func (c *Config) validateAcquire() error {
	for _, name := range c.Acquire.Strategies {
		if _, ok := knownStrategies[name]; !ok {
			return fmt.Errorf("acquire.strategies: unknown strategy %q", name)
		}
	}
	return nil
}

func (c *Config) validateFeed() error {
	if c.Feed.BaseURL == "" {
		return errors.New("feed.base_url must be set to the public URL serving the work directory")
	}
	if err := requireHTTPURL("feed.base_url", c.Feed.BaseURL); err != nil {
		return err
	}
	if strings.ContainsAny(c.Feed.File, `/\`) {
		return fmt.Errorf("feed.file must be a bare file name, got %q", c.Feed.File)
	}
	if c.Feed.ImageURL != "" {
		if err := requireHTTPURL("feed.image_url", c.Feed.ImageURL); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validatePublish() error {
	if !c.Publish.Enabled {
		return nil
	}
	if c.Publish.RemoteURL == "" {
		return errors.New("publish.remote_url must be set when publish.enabled is true")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func requireHTTPURL(field, value string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) URL, got %q", field, value)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host, got %q", field, value)
	}
	return nil
}
