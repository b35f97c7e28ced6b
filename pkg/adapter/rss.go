package adapter

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"trendfeed/pkg/content"
)

// RSS fetches items from RSS/Atom feeds. Feed entries carry no
// engagement counters, so items keep a nil Engagement.
type RSS struct {
	client *http.Client
	parser *gofeed.Parser
}

// NewRSS creates an RSS adapter.
func NewRSS() *RSS {
	return &RSS{
		client: &http.Client{Timeout: 30 * time.Second},
		parser: gofeed.NewParser(),
	}
}

func (r *RSS) Fetch(ctx context.Context, src content.SourceConfig, window time.Duration) ([]content.Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create rss request %s: %w", src.ID, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rss %s: %w", src.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rss %s status %d", src.ID, resp.StatusCode)
	}

	parsed, err := r.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse rss %s: %w", src.ID, err)
	}

	now := time.Now().UTC()
	cutoff := now.Add(-window)

	var items []content.Item
	for _, entry := range parsed.Items {
		published := now
		if entry.PublishedParsed != nil {
			published = entry.PublishedParsed.UTC()
		} else if entry.UpdatedParsed != nil {
			published = entry.UpdatedParsed.UTC()
		}

		if published.Before(cutoff) {
			continue
		}

		link := entry.Link
		if link == "" && len(entry.Links) > 0 {
			link = entry.Links[0]
		}

		external := entry.GUID
		if external == "" {
			external = link
		}

		author := ""
		if entry.Author != nil {
			author = entry.Author.Name
		}

		imageURL := ""
		if entry.Image != nil {
			imageURL = entry.Image.URL
		}

		items = append(items, content.Item{
			ID:          itemID(src, external),
			SourceID:    src.ID,
			Title:       entry.Title,
			Description: truncate(entry.Description, 500),
			Author:      author,
			URL:         link,
			ImageURL:    imageURL,
			Tags:        entry.Categories,
			PublishedAt: published,
			FetchedAt:   now,
		})
	}

	return items, nil
}
