package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"podmirror/internal/config"
)

const userAgent = "podmirror/0.1.0"

// maxListedEpisodes caps how many titles a single message enumerates.
const maxListedEpisodes = 10

// Service defines the notification surface used by the sync engine and CLI.
type Service interface {
	NotifyNewEpisodes(ctx context.Context, titles []string) error
	NotifyAcquisitionFailures(ctx context.Context, itemIDs []string) error
	NotifyError(ctx context.Context, err error, stage string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		episodes: cfg.Notifications.Episodes,
		errors:   cfg.Notifications.Errors,
		feed:     strings.TrimSpace(cfg.Feed.Title),
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	episodes bool
	errors   bool
	feed     string
}

func (n *ntfyService) titlePrefix() string {
	if n.feed == "" {
		return "podmirror"
	}
	return n.feed
}

func (n *ntfyService) NotifyNewEpisodes(ctx context.Context, titles []string) error {
	if !n.episodes || len(titles) == 0 {
		return nil
	}
	var builder strings.Builder
	if len(titles) == 1 {
		builder.WriteString("🎧 New episode: ")
		builder.WriteString(strings.TrimSpace(titles[0]))
	} else {
		fmt.Fprintf(&builder, "🎧 %d new episodes", len(titles))
		for i, title := range titles {
			if i == maxListedEpisodes {
				fmt.Fprintf(&builder, "\n…and %d more", len(titles)-maxListedEpisodes)
				break
			}
			builder.WriteString("\n• ")
			builder.WriteString(strings.TrimSpace(title))
		}
	}
	return n.send(ctx, payload{
		title:   n.titlePrefix() + " - New Episodes",
		message: builder.String(),
		tags:    []string{"podmirror", "feed", "updated"},
	})
}

func (n *ntfyService) NotifyAcquisitionFailures(ctx context.Context, itemIDs []string) error {
	if !n.errors || len(itemIDs) == 0 {
		return nil
	}
	listed := itemIDs
	if len(listed) > maxListedEpisodes {
		listed = listed[:maxListedEpisodes]
	}
	message := fmt.Sprintf("⚠️ %d item(s) could not be downloaded: %s", len(itemIDs), strings.Join(listed, ", "))
	return n.send(ctx, payload{
		title:   n.titlePrefix() + " - Download Failures",
		message: message,
		tags:    []string{"podmirror", "acquire", "failed"},
	})
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, stage string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("❌ Sync failed")
	if stage = strings.TrimSpace(stage); stage != "" {
		builder.WriteString(" during ")
		builder.WriteString(stage)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	return n.send(ctx, payload{
		title:    n.titlePrefix() + " - Error",
		message:  builder.String(),
		tags:     []string{"podmirror", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    n.titlePrefix() + " - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"podmirror", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyNewEpisodes(context.Context, []string) error         { return nil }
func (noopService) NotifyAcquisitionFailures(context.Context, []string) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error          { return nil }
func (noopService) TestNotification(context.Context) error                    { return nil }
