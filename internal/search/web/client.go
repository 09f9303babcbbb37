package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/aven-agent/backend/internal/llm"
	"github.com/aven-agent/backend/pkg/logger"
)

// Client performs real-time web search for queries the crawled knowledge
// base cannot answer (current status, recent changes).
type Client struct {
	serpAPIKey string
	llmClient  *llm.Client
	httpClient *http.Client
	maxResults int
}

type SearchResult struct {
	Title   string
	URL     string
	Snippet string
	Content string
}

func NewClient(serpAPIKey string, llmClient *llm.Client, maxResults int, timeout time.Duration) *Client {
	if maxResults <= 0 {
		maxResults = 3
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		serpAPIKey: serpAPIKey,
		llmClient:  llmClient,
		httpClient: &http.Client{Timeout: timeout},
		maxResults: maxResults,
	}
}

func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	if maxResults <= 0 {
		maxResults = c.maxResults
	}

	logger.Info("Performing real-time search", zap.String("query", query))

	optimizedQuery := query
	if c.llmClient != nil {
		optimized, err := c.optimizeQuery(ctx, query)
		if err != nil {
			logger.Warn("Failed to optimize query, using original", zap.Error(err))
		} else {
			optimizedQuery = optimized
		}
	}

	if c.serpAPIKey != "" {
		return c.searchWithSerpAPI(ctx, optimizedQuery, maxResults)
	}

	return c.searchSiteScoped(ctx, optimizedQuery, maxResults)
}

func (c *Client) optimizeQuery(ctx context.Context, query string) (string, error) {
	systemPrompt := `You are a search query optimizer for Aven customer support.
Transform user questions into effective web search queries about Aven's
credit card, HELOC and financial products.

Rules:
1. Add "Aven" context when missing
2. Prefer official aven.com sources
3. Keep the query short and specific

Return ONLY the optimized query, nothing else.`

	resp, err := c.llmClient.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   fmt.Sprintf("Optimize this query for web search: %s", query),
		Temperature:  0.1,
		MaxTokens:    100,
	})
	if err != nil {
		return "", err
	}

	optimized := strings.TrimSpace(resp.Content)
	logger.Debug("Query optimized", zap.String("original", query), zap.String("optimized", optimized))

	return optimized, nil
}

func (c *Client) searchWithSerpAPI(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	params := url.Values{}
	params.Add("q", query)
	params.Add("api_key", c.serpAPIKey)
	params.Add("num", fmt.Sprintf("%d", maxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		"https://serpapi.com/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var searchResp struct {
		OrganicResults []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic_results"`
	}

	if err := json.Unmarshal(body, &searchResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	results := make([]SearchResult, 0, len(searchResp.OrganicResults))
	for _, r := range searchResp.OrganicResults {
		content, err := c.scrapeContent(ctx, r.Link)
		if err != nil {
			logger.Warn("Failed to scrape content", zap.String("url", r.Link), zap.Error(err))
			content = r.Snippet
		}

		results = append(results, SearchResult{
			Title:   r.Title,
			URL:     r.Link,
			Snippet: r.Snippet,
			Content: content,
		})
	}

	logger.Info("Real-time search completed", zap.Int("results", len(results)))

	return results, nil
}

func (c *Client) searchSiteScoped(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	searchQuery := url.QueryEscape(fmt.Sprintf("site:aven.com OR site:support.aven.com %s", query))
	searchURL := fmt.Sprintf("https://www.google.com/search?q=%s&num=%d", searchQuery, maxResults)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	results := make([]SearchResult, 0)
	doc.Find("div.g").Each(func(i int, s *goquery.Selection) {
		if i >= maxResults {
			return
		}

		title := s.Find("h3").Text()
		link, _ := s.Find("a").Attr("href")
		snippet := s.Find("div.VwiC3b").Text()

		if title != "" && link != "" {
			content, err := c.scrapeContent(ctx, link)
			if err != nil {
				content = snippet
			}

			results = append(results, SearchResult{
				Title:   title,
				URL:     link,
				Snippet: snippet,
				Content: content,
			})
		}
	})

	logger.Info("Site-scoped search completed", zap.Int("results", len(results)))

	return results, nil
}

func (c *Client) scrapeContent(ctx context.Context, urlStr string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", err
	}

	doc.Find("script, style, nav, footer, header").Remove()
	text := strings.TrimSpace(doc.Find("body").Text())

	if len(text) > 5000 {
		text = text[:5000]
	}

	return text, nil
}
