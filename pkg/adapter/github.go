package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"trendfeed/pkg/content"
)

const ghSearchURL = "https://api.github.com/search/repositories"

// GitHub fetches repositories created within the window, sorted by
// stars, via the search API. A source URL may carry its own q= term
// (topics, languages); the adapter appends the creation cutoff to it.
type GitHub struct {
	client *http.Client
	token  string
}

// NewGitHub creates a GitHub adapter. An empty token means
// unauthenticated requests at the public rate limit.
func NewGitHub(token string) *GitHub {
	return &GitHub{
		client: &http.Client{Timeout: 30 * time.Second},
		token:  token,
	}
}

func (g *GitHub) Fetch(ctx context.Context, src content.SourceConfig, window time.Duration) ([]content.Item, error) {
	reqURL, err := g.searchURL(src, window)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create github request: %w", err)
	}

	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", userAgent)
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch github search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github API status %d", resp.StatusCode)
	}

	var result ghSearchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode github response: %w", err)
	}

	now := time.Now().UTC()
	var items []content.Item
	for _, repo := range result.Items {
		tags := repo.Topics
		if repo.Language != "" {
			tags = append(tags, repo.Language)
		}

		items = append(items, content.Item{
			ID:          itemID(src, repo.FullName),
			SourceID:    src.ID,
			Title:       repo.FullName,
			Description: repo.Description,
			Author:      repo.Owner.Login,
			URL:         repo.HTMLURL,
			ImageURL:    repo.Owner.AvatarURL,
			Tags:        tags,
			Engagement: content.GitHubEngagement{
				Stars: repo.Stars,
				Forks: repo.Forks,
			},
			PublishedAt: repo.CreatedAt.UTC(),
			FetchedAt:   now,
		})
	}

	return items, nil
}

func (g *GitHub) searchURL(src content.SourceConfig, window time.Duration) (string, error) {
	base := src.URL
	if base == "" {
		base = ghSearchURL
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse github source url: %w", err)
	}

	since := time.Now().UTC().Add(-window).Format("2006-01-02")
	query := fmt.Sprintf("created:>%s", since)
	if scope := u.Query().Get("q"); scope != "" {
		query = scope + " " + query
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("sort", "stars")
	params.Set("order", "desc")
	params.Set("per_page", "50")
	u.RawQuery = params.Encode()

	return u.String(), nil
}

type ghSearchResult struct {
	TotalCount int      `json:"total_count"`
	Items      []ghRepo `json:"items"`
}

type ghRepo struct {
	FullName    string    `json:"full_name"`
	HTMLURL     string    `json:"html_url"`
	Description string    `json:"description"`
	Stars       int       `json:"stargazers_count"`
	Forks       int       `json:"forks_count"`
	Language    string    `json:"language"`
	Topics      []string  `json:"topics"`
	CreatedAt   time.Time `json:"created_at"`
	Owner       ghOwner   `json:"owner"`
}

type ghOwner struct {
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url"`
}
