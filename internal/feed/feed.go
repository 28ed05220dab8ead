// Package feed renders the RSS 2.0 podcast document (with the itunes
// namespace) from the artifacts currently present in the work directory.
// The document is regenerated in full on every run.
package feed

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/eduncan911/podcast"

	"podmirror/internal/episodeid"
	"podmirror/internal/fileutil"
	"podmirror/internal/playlist"
	"podmirror/internal/registry"
)

// Channel holds the channel-level metadata.
type Channel struct {
	Title       string
	Link        string
	Description string
	Language    string
	ImageURL    string
	Author      string
	// BaseURL is the public location artifacts are served from; enclosure
	// URLs are BaseURL + "/" + file name.
	BaseURL string
}

// Builder constructs feed documents.
type Builder struct {
	channel Channel
	offset  time.Duration
	now     func() time.Time
}

// Option configures a Builder.
type Option func(*Builder)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		if now != nil {
			b.now = now
		}
	}
}

// DefaultPubDateOffset is how far behind the build time the newest item is
// stamped. Clients drop or reorder entries dated in the future, so the offset
// is never zero.
const DefaultPubDateOffset = time.Hour

// WithPubDateOffset shifts every item's publish date back by d. Non-positive
// values keep DefaultPubDateOffset.
func WithPubDateOffset(d time.Duration) Option {
	return func(b *Builder) {
		if d > 0 {
			b.offset = d
		}
	}
}

// NewBuilder returns a Builder for channel.
func NewBuilder(channel Channel, opts ...Option) (*Builder, error) {
	channel.BaseURL = strings.TrimRight(strings.TrimSpace(channel.BaseURL), "/")
	if channel.BaseURL == "" {
		return nil, errors.New("feed base url required")
	}
	if strings.TrimSpace(channel.Title) == "" {
		return nil, errors.New("feed title required")
	}
	if strings.TrimSpace(channel.Link) == "" {
		channel.Link = channel.BaseURL
	}
	if strings.TrimSpace(channel.Description) == "" {
		channel.Description = channel.Title
	}
	b := &Builder{channel: channel, now: time.Now, offset: DefaultPubDateOffset}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Build renders artifacts, newest name first. Item publish dates descend one
// minute per position from now minus the configured offset, so clients that
// sort by date keep the name order. mapping supplies original titles and
// upstream identifiers; artifacts without a record get a title derived from
// their name.
func (b *Builder) Build(artifacts []registry.Artifact, mapping map[string]registry.Record) ([]byte, error) {
	sorted := append([]registry.Artifact(nil), artifacts...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name > sorted[j].Name })

	now := b.now().UTC()
	doc := podcast.New(b.channel.Title, b.channel.Link, b.channel.Description, &now, &now)
	if lang := strings.TrimSpace(b.channel.Language); lang != "" {
		doc.Language = lang
	}
	if img := strings.TrimSpace(b.channel.ImageURL); img != "" {
		doc.AddImage(img)
	}
	if author := strings.TrimSpace(b.channel.Author); author != "" {
		doc.IAuthor = author
	}
	doc.AddSummary(b.channel.Description)

	base := now.Add(-b.offset)
	for i, artifact := range sorted {
		record := mapping[artifact.Name]
		title := strings.TrimSpace(record.Title)
		if title == "" {
			title = FallbackTitle(artifact.Name)
		}
		enclosure := b.EnclosureURL(artifact.File)
		link := enclosure
		if record.ItemID != "" {
			link = playlist.WatchURL(record.ItemID)
		}
		pubDate := base.Add(-time.Duration(i) * time.Minute)

		item := podcast.Item{
			GUID:        artifact.File,
			Title:       title,
			Link:        link,
			Description: title,
			PubDate:     &pubDate,
		}
		item.AddEnclosure(enclosure, podcast.MP3, artifact.Size)
		if _, err := doc.AddItem(item); err != nil {
			return nil, fmt.Errorf("add feed item %s: %w", artifact.File, err)
		}
	}
	return doc.Bytes(), nil
}

// EnclosureURL is the public URL for the artifact file.
func (b *Builder) EnclosureURL(file string) string {
	return b.channel.BaseURL + "/" + url.PathEscape(file)
}

// FallbackTitle derives an item title from an artifact name: "Season 8
// Episode 30" for S08E30, the name itself otherwise.
func FallbackTitle(name string) string {
	if code, ok := episodeid.ParseName(name); ok {
		return code.Label()
	}
	return name
}

// Write replaces path with doc atomically.
func Write(path string, doc []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create feed directory: %w", err)
	}
	return fileutil.WriteFileAtomic(path, doc, 0o644)
}
