// Package youtube searches YouTube for repair tutorials.
package youtube

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"
)

const watchURL = "https://www.youtube.com/watch?v="

type Config struct {
	APIKey            string        `yaml:"api_key"`
	Timeout           time.Duration `yaml:"timeout"`
	RelevanceLanguage string        `yaml:"relevance_language"`
	SafeSearch        string        `yaml:"safe_search"`
}

// Video is one search hit.
type Video struct {
	Title        string
	URL          string
	ThumbnailURL string
	Description  string
	PublishedAt  string
}

// Client is a thin wrapper over the Data API search.list call. A client built
// without an API key is disabled: Search returns no videos and no error.
type Client struct {
	cfg Config
	svc *yt.Service
}

var logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// SetLogger sets the logger used by pkg/youtube. Passing nil is a no-op.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

func New(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RelevanceLanguage == "" {
		cfg.RelevanceLanguage = "en"
	}
	if cfg.SafeSearch == "" {
		cfg.SafeSearch = "moderate"
	}

	c := &Client{cfg: cfg}
	if cfg.APIKey == "" && len(opts) == 0 {
		logger.Warn("youtube: no API key configured, tutorial search disabled")
		return c, nil
	}

	if cfg.APIKey != "" {
		opts = append([]option.ClientOption{option.WithAPIKey(cfg.APIKey)}, opts...)
	}
	svc, err := yt.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}
	c.svc = svc
	return c, nil
}

// Enabled reports whether searches reach the API.
func (c *Client) Enabled() bool { return c != nil && c.svc != nil }

// BuildQuery tunes a free-text query for the user's experience tier.
func BuildQuery(query, experience string) string {
	var modifier string
	switch strings.ToLower(experience) {
	case "beginner":
		modifier = "easy simple basic"
	case "intermediate":
		modifier = "intermediate detailed"
	case "expert":
		modifier = "advanced professional"
	}

	parts := []string{strings.TrimSpace(query)}
	if modifier != "" {
		parts = append(parts, modifier)
	}
	parts = append(parts, "repair guide tutorial")
	return strings.Join(parts, " ")
}

// Search returns up to max embeddable videos for the query.
func (c *Client) Search(ctx context.Context, query string, max int, experience string) ([]Video, error) {
	if !c.Enabled() || strings.TrimSpace(query) == "" || max <= 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	q := BuildQuery(query, experience)
	resp, err := c.svc.Search.List([]string{"snippet"}).
		Q(q).
		Type("video").
		MaxResults(int64(max)).
		RelevanceLanguage(c.cfg.RelevanceLanguage).
		VideoEmbeddable("true").
		SafeSearch(c.cfg.SafeSearch).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("youtube search %q: %w", q, err)
	}

	out := make([]Video, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Id == nil || item.Id.VideoId == "" || item.Snippet == nil {
			continue
		}
		v := Video{
			Title:       item.Snippet.Title,
			URL:         watchURL + item.Id.VideoId,
			Description: item.Snippet.Description,
			PublishedAt: item.Snippet.PublishedAt,
		}
		if th := item.Snippet.Thumbnails; th != nil {
			switch {
			case th.Medium != nil:
				v.ThumbnailURL = th.Medium.Url
			case th.Default != nil:
				v.ThumbnailURL = th.Default.Url
			}
		}
		out = append(out, v)
		if len(out) == max {
			break
		}
	}

	logger.Debug("youtube: search done", slog.String("query", q), slog.Int("results", len(out)))
	return out, nil
}
