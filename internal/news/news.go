// Package news fetches recent press coverage for competitors from the
// NewsAPI "everything" endpoint.
package news

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	defaultBaseURL  = "https://newsapi.org/v2"
	defaultPageSize = 10
	// DefaultDaysBack is the lookback window when the caller does not
	// specify one.
	DefaultDaysBack = 30
)

// Article is one fetched news item.
type Article struct {
	Title       string
	Source      string
	URL         string
	Content     string
	PublishedAt time.Time
}

// Fetcher retrieves recent news for a named competitor.
type Fetcher interface {
	Fetch(ctx context.Context, competitorName string, daysBack int) ([]Article, error)
}

// Client is a Fetcher backed by newsapi.org.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL. Used in tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// NewClient creates a NewsAPI client.
func NewClient(apiKey string, logger *slog.Logger, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("news: API key is required")
	}
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type newsSource struct {
	Name string `json:"name"`
}

type newsArticle struct {
	Title       string     `json:"title"`
	Source      newsSource `json:"source"`
	URL         string     `json:"url"`
	PublishedAt time.Time  `json:"publishedAt"`
	Content     string     `json:"content"`
	Description string     `json:"description"`
}

type newsResponse struct {
	Status   string        `json:"status"`
	Message  string        `json:"message"`
	Articles []newsArticle `json:"articles"`
}

// Fetch returns up to ten relevant articles mentioning the competitor
// within the lookback window, newest queries scoped to English-language
// business coverage.
func (c *Client) Fetch(ctx context.Context, competitorName string, daysBack int) ([]Article, error) {
	if daysBack <= 0 {
		daysBack = DefaultDaysBack
	}
	now := time.Now()

	q := url.Values{}
	q.Set("q", fmt.Sprintf("%q (company OR business OR industry)", competitorName))
	q.Set("from", now.AddDate(0, 0, -daysBack).Format("2006-01-02"))
	q.Set("to", now.Format("2006-01-02"))
	q.Set("language", "en")
	q.Set("sortBy", "relevancy")
	q.Set("pageSize", strconv.Itoa(defaultPageSize))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/everything?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("news: create request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("news: fetch articles for %q: %w", competitorName, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("news: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("news: API returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed newsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("news: decode response: %w", err)
	}
	if parsed.Status != "ok" {
		return nil, fmt.Errorf("news: API status %q: %s", parsed.Status, parsed.Message)
	}

	articles := make([]Article, 0, len(parsed.Articles))
	for _, a := range parsed.Articles {
		content := a.Content
		if content == "" {
			content = a.Description
		}
		source := a.Source.Name
		if source == "" {
			source = "Unknown"
		}
		articles = append(articles, Article{
			Title:       a.Title,
			Source:      source,
			URL:         a.URL,
			Content:     content,
			PublishedAt: a.PublishedAt,
		})
	}

	c.logger.Info("news: fetched articles", "competitor", competitorName, "count", len(articles))
	return articles, nil
}
