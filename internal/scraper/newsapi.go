// Package scraper fetches articles from a NewsAPI-compatible top-headlines
// endpoint and normalizes them for storage.
package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mpetrov/newsrec/internal/storage"
	"github.com/mpetrov/newsrec/internal/textclean"
)

const (
	defaultPageSize    = 100
	maxResponseSize    = 10 << 20 // 10MB
	fetchConcurrency   = 4
	defaultHTTPTimeout = 30 * time.Second
)

// Client talks to a NewsAPI-compatible endpoint.
type Client struct {
	baseURL  string
	apiKey   string
	country  string
	pageSize int
	http     *http.Client
}

// New creates a Client. baseURL is the full top-headlines endpoint URL.
func New(baseURL, apiKey, country string, pageSize int) *Client {
	if pageSize <= 0 || pageSize > defaultPageSize {
		pageSize = defaultPageSize
	}
	return &Client{
		baseURL:  baseURL,
		apiKey:   apiKey,
		country:  country,
		pageSize: pageSize,
		http:     &http.Client{Timeout: defaultHTTPTimeout},
	}
}

type apiResponse struct {
	Status       string       `json:"status"`
	Code         string       `json:"code"`
	Message      string       `json:"message"`
	TotalResults int          `json:"totalResults"`
	Articles     []apiArticle `json:"articles"`
}

type apiArticle struct {
	Source struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"source"`
	Author      string `json:"author"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
	Content     string `json:"content"`
}

// FetchCategory fetches the current top headlines for one category.
// Returned articles are cleaned and ready for storage; entries without a
// usable title or URL are skipped.
func (c *Client) FetchCategory(ctx context.Context, category string) ([]storage.Article, error) {
	q := url.Values{}
	q.Set("apiKey", c.apiKey)
	q.Set("category", category)
	q.Set("country", c.country)
	q.Set("pageSize", strconv.Itoa(c.pageSize))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s headlines: %w", category, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("news API returned status %d for category %s", resp.StatusCode, category)
	}

	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if parsed.Status != "ok" {
		return nil, fmt.Errorf("news API error (%s): %s", parsed.Code, parsed.Message)
	}

	articles := make([]storage.Article, 0, len(parsed.Articles))
	for _, raw := range parsed.Articles {
		a, ok := parseArticle(raw, category)
		if !ok {
			continue
		}
		articles = append(articles, a)
	}
	return articles, nil
}

// FetchCategories fetches all categories concurrently (bounded) and returns
// the combined result. A failing category fails the whole batch so the job
// queue can retry it.
func (c *Client) FetchCategories(ctx context.Context, categories []string) ([]storage.Article, error) {
	if len(categories) == 0 {
		return nil, nil
	}

	var mu sync.Mutex
	var all []storage.Article

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for _, category := range categories {
		category := category
		g.Go(func() error {
			articles, err := c.FetchCategory(gCtx, category)
			if err != nil {
				return err
			}
			mu.Lock()
			all = append(all, articles...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return all, nil
}

// parseArticle converts a raw feed entry into a cleaned storage article.
// Returns false for entries that cannot be stored (no title/URL, or the
// feed's tombstone placeholder).
func parseArticle(raw apiArticle, category string) (storage.Article, bool) {
	title := textclean.Clean(raw.Title)
	if title == "" || title == "[Removed]" || raw.URL == "" {
		return storage.Article{}, false
	}

	a := storage.Article{
		Title:       title,
		Description: textclean.Clean(raw.Description),
		Content:     textclean.Clean(raw.Content),
		Category:    category,
		Source:      textclean.Clean(raw.Source.Name),
		Author:      textclean.Clean(raw.Author),
		URL:         raw.URL,
	}
	if raw.PublishedAt != "" {
		if t, err := time.Parse(time.RFC3339, raw.PublishedAt); err == nil {
			utc := t.UTC()
			a.PublishedAt = &utc
		}
	}
	return a, true
}
