package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ppiankov/veracity/internal/model"
)

const tavilyDefaultBaseURL = "https://api.tavily.com"

// Tavily calls the Tavily search API
type Tavily struct {
	APIKey    string
	BaseURL   string
	UserAgent string
	// Depth controls Tavily's search_depth parameter (basic or advanced)
	Depth  string
	client *http.Client
}

// NewTavily constructs a Tavily search provider. A nil client gets a 10s default.
func NewTavily(apiKey string, client *http.Client) *Tavily {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Tavily{APIKey: apiKey, BaseURL: tavilyDefaultBaseURL, Depth: "basic", client: client}
}

// Name returns the provider name
func (t *Tavily) Name() string { return "tavily" }

// MaxResults returns Tavily's result ceiling
func (t *Tavily) MaxResults() int { return maxProviderResults }

// Search posts one query to Tavily
func (t *Tavily) Search(ctx context.Context, query model.SearchQuery) ([]model.SearchResult, error) {
	if strings.TrimSpace(t.APIKey) == "" {
		return nil, &RequestError{Provider: t.Name(), Err: errors.New("API key is missing")}
	}

	count := query.Count
	if count <= 0 || count > maxProviderResults {
		count = maxProviderResults
	}

	payload, err := json.Marshal(map[string]any{
		"query":        query.Text,
		"api_key":      t.APIKey,
		"search_depth": t.Depth,
		"max_results":  count,
	})
	if err != nil {
		return nil, &RequestError{Provider: t.Name(), Err: fmt.Errorf("marshal request: %w", err)}
	}

	endpoint := strings.TrimRight(t.BaseURL, "/") + "/search"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &RequestError{Provider: t.Name(), Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.APIKey)
	if t.UserAgent != "" {
		req.Header.Set("User-Agent", t.UserAgent)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{
			Provider:   t.Name(),
			StatusCode: resp.StatusCode,
			RetryAfter: retryAfterHint(resp.Header, time.Now()),
			Message:    strings.TrimSpace(string(msg)),
		}
	}

	var response struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, &DecodeError{Provider: t.Name(), Err: err}
	}

	results := make([]model.SearchResult, 0, len(response.Results))
	for _, r := range response.Results {
		results = append(results, model.SearchResult{
			Title:   strings.TrimSpace(r.Title),
			URL:     r.URL,
			Snippet: cleanSnippet(r.Content),
		})
	}

	return keepResults(results, count), nil
}
