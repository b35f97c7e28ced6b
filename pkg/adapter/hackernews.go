package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"trendfeed/pkg/content"
)

const hnBaseURL = "https://hacker-news.firebaseio.com/v0"

// HackerNews fetches top stories from the Hacker News Firebase API.
type HackerNews struct {
	client  *http.Client
	baseURL string
	limit   int
}

// NewHackerNews creates a Hacker News adapter. The limit caps how many
// of the top stories are hydrated per fetch.
func NewHackerNews(limit int) *HackerNews {
	if limit <= 0 {
		limit = 100
	}
	return &HackerNews{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: hnBaseURL,
		limit:   limit,
	}
}

func (h *HackerNews) Fetch(ctx context.Context, src content.SourceConfig, window time.Duration) ([]content.Item, error) {
	ids, err := h.fetchTopStories(ctx)
	if err != nil {
		return nil, err
	}

	if len(ids) > h.limit {
		ids = ids[:h.limit]
	}

	cutoff := time.Now().UTC().Add(-window)

	var (
		mu    sync.Mutex
		items []content.Item
		wg    sync.WaitGroup
		sem   = make(chan struct{}, 10) // concurrency limit
	)

	for _, id := range ids {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			story, err := h.fetchItem(ctx, id)
			if err != nil || story == nil {
				return
			}

			published := time.Unix(story.Time, 0).UTC()
			if published.Before(cutoff) {
				return
			}

			item := content.Item{
				ID:       itemID(src, fmt.Sprintf("%d", story.ID)),
				SourceID: src.ID,
				Title:    story.Title,
				URL:      story.URL,
				Author:   story.By,
				Engagement: content.HackerNewsEngagement{
					Upvotes:  story.Score,
					Comments: story.Descendants,
				},
				PublishedAt: published,
				FetchedAt:   time.Now().UTC(),
			}
			if item.URL == "" {
				item.URL = fmt.Sprintf("https://news.ycombinator.com/item?id=%d", story.ID)
			}

			mu.Lock()
			items = append(items, item)
			mu.Unlock()
		}(id)
	}

	wg.Wait()
	return items, nil
}

type hnStory struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Score       int    `json:"score"`
	By          string `json:"by"`
	Time        int64  `json:"time"`
	Descendants int    `json:"descendants"`
	Type        string `json:"type"`
}

func (h *HackerNews) fetchTopStories(ctx context.Context) ([]int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/topstories.json", nil)
	if err != nil {
		return nil, fmt.Errorf("create hn request: %w", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch hn top stories: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("hn top stories status %d", resp.StatusCode)
	}

	var ids []int
	if err := json.NewDecoder(resp.Body).Decode(&ids); err != nil {
		return nil, fmt.Errorf("decode hn top stories: %w", err)
	}
	return ids, nil
}

func (h *HackerNews) fetchItem(ctx context.Context, id int) (*hnStory, error) {
	url := fmt.Sprintf("%s/item/%d.json", h.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create hn item request: %w", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch hn item %d: %w", id, err)
	}
	defer resp.Body.Close()

	var story hnStory
	if err := json.NewDecoder(resp.Body).Decode(&story); err != nil {
		return nil, fmt.Errorf("decode hn item %d: %w", id, err)
	}

	if story.Type != "story" {
		return nil, nil
	}
	return &story, nil
}
