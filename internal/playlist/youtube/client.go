// Package youtube reads playlist snapshots from the YouTube Data API v3
// playlistItems endpoint.
package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"podmirror/internal/playlist"
	"podmirror/internal/retry"
)

const (
	pageSize          = 50
	defaultTimeout    = 30 * time.Second
	defaultMaxPages   = 4
	defaultRetryDelay = time.Second
)

// Client pages through a playlist.
type Client struct {
	apiKey     string
	baseURL    string
	playlistID string
	maxPages   int
	httpClient *http.Client
	retry      retry.Policy
}

var _ playlist.Source = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithMaxPages bounds how many result pages one snapshot reads.
func WithMaxPages(pages int) Option {
	return func(c *Client) {
		if pages > 0 {
			c.maxPages = pages
		}
	}
}

// WithRetryPolicy overrides the transient-error retry policy.
func WithRetryPolicy(policy retry.Policy) Option {
	return func(c *Client) {
		c.retry = policy
	}
}

// New creates a playlistItems client.
func New(apiKey, baseURL, playlistID string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("youtube api key required")
	}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("youtube base url required")
	}
	playlistID = strings.TrimSpace(playlistID)
	if playlistID == "" {
		return nil, errors.New("youtube playlist id required")
	}
	client := &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		playlistID: playlistID,
		maxPages:   defaultMaxPages,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	client.retry = retry.Policy{Attempts: 3, BaseDelay: defaultRetryDelay, Retryable: isTransient}
	for _, opt := range opts {
		opt(client)
	}
	if client.retry.Retryable == nil {
		client.retry.Retryable = isTransient
	}
	return client, nil
}

type playlistItemsResponse struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		Snippet struct {
			Title       string `json:"title"`
			PublishedAt string `json:"publishedAt"`
			Position    int    `json:"position"`
			ResourceID  struct {
				VideoID string `json:"videoId"`
			} `json:"resourceId"`
		} `json:"snippet"`
		ContentDetails struct {
			VideoPublishedAt string `json:"videoPublishedAt"`
		} `json:"contentDetails"`
	} `json:"items"`
}

type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("youtube playlistItems: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// Snapshot returns every entry of the playlist up to the page limit.
func (c *Client) Snapshot(ctx context.Context) ([]playlist.Entry, error) {
	var entries []playlist.Entry
	pageToken := ""
	for page := 0; page < c.maxPages; page++ {
		var payload *playlistItemsResponse
		err := retry.Do(ctx, c.retry, func(int) error {
			var err error
			payload, err = c.fetchPage(ctx, pageToken)
			return err
		})
		if err != nil {
			return nil, err
		}
		for _, item := range payload.Items {
			id := strings.TrimSpace(item.Snippet.ResourceID.VideoID)
			if id == "" {
				continue
			}
			entries = append(entries, playlist.Entry{
				ID:          id,
				Title:       strings.TrimSpace(item.Snippet.Title),
				Position:    item.Snippet.Position,
				PublishedAt: parseTime(item.ContentDetails.VideoPublishedAt, item.Snippet.PublishedAt),
			})
		}
		pageToken = payload.NextPageToken
		if pageToken == "" {
			break
		}
	}
	return entries, nil
}

func (c *Client) fetchPage(ctx context.Context, pageToken string) (*playlistItemsResponse, error) {
	endpoint, err := url.Parse(c.baseURL + "/playlistItems")
	if err != nil {
		return nil, fmt.Errorf("parse youtube url: %w", err)
	}
	params := url.Values{}
	params.Set("part", "snippet,contentDetails")
	params.Set("playlistId", c.playlistID)
	params.Set("maxResults", strconv.Itoa(pageSize))
	params.Set("key", c.apiKey)
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return nil, fmt.Errorf("execute request (latency=%v): %w", latency, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &statusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var payload playlistItemsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode youtube response: %w", err)
	}
	return &payload, nil
}

// isTransient retries throttling, server errors, and network timeouts. Client
// errors such as an invalid key or exhausted quota are permanent for this run.
func isTransient(err error) bool {
	var statusErr *statusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests ||
			statusErr.StatusCode == http.StatusRequestTimeout ||
			statusErr.StatusCode >= http.StatusInternalServerError
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

func parseTime(values ...string) *time.Time {
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if ts, err := time.Parse(time.RFC3339, value); err == nil {
			ts = ts.UTC()
			return &ts
		}
	}
	return nil
}
