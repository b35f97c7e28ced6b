package adapter

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"trendfeed/pkg/content"
)

// Scrape extracts items from an HTML listing page using the CSS
// selectors configured on the source. Listing pages rarely expose
// machine-readable timestamps or counters, so items carry the fetch
// time as PublishedAt and a nil Engagement.
type Scrape struct {
	client *http.Client
}

// NewScrape creates a scrape adapter.
func NewScrape() *Scrape {
	return &Scrape{client: &http.Client{Timeout: 30 * time.Second}}
}

func (s *Scrape) Fetch(ctx context.Context, src content.SourceConfig, window time.Duration) ([]content.Item, error) {
	if src.Scrape == nil {
		return nil, fmt.Errorf("scrape source %s has no rules", src.ID)
	}

	base, err := url.Parse(src.URL)
	if err != nil {
		return nil, fmt.Errorf("parse scrape source url: %w", err)
	}

	doc, err := s.fetchDocument(ctx, src.URL)
	if err != nil {
		return nil, err
	}

	rules := src.Scrape
	now := time.Now().UTC()
	seen := map[string]struct{}{}

	var items []content.Item
	doc.Find(rules.Item).Each(func(_ int, sel *goquery.Selection) {
		title := strings.TrimSpace(sel.Find(rules.Title).First().Text())
		if title == "" {
			return
		}

		href, ok := sel.Find(rules.URL).First().Attr("href")
		if !ok || href == "" {
			return
		}
		resolved, err := base.Parse(href)
		if err != nil {
			return
		}
		link := resolved.String()

		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}

		item := content.Item{
			ID:          itemID(src, link),
			SourceID:    src.ID,
			Title:       title,
			URL:         link,
			PublishedAt: now,
			FetchedAt:   now,
		}
		if rules.Description != "" {
			item.Description = truncate(strings.TrimSpace(sel.Find(rules.Description).First().Text()), 500)
		}
		if rules.Author != "" {
			item.Author = strings.TrimSpace(sel.Find(rules.Author).First().Text())
		}

		items = append(items, item)
	})

	return items, nil
}

func (s *Scrape) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create scrape request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scrape page status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return doc, nil
}
