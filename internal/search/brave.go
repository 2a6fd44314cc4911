package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/veracity/internal/model"
)

const braveDefaultBaseURL = "https://api.search.brave.com"

// Brave uses the Brave Search API. An API key is required via X-Subscription-Token.
type Brave struct {
	APIKey    string
	BaseURL   string
	Lang      string
	UserAgent string
	client    *http.Client
}

// NewBrave constructs a Brave search provider. A nil client gets a 10s default.
func NewBrave(apiKey string, client *http.Client) *Brave {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Brave{APIKey: apiKey, BaseURL: braveDefaultBaseURL, client: client}
}

// Name returns the provider name
func (b *Brave) Name() string { return "brave" }

// MaxResults returns Brave's page size ceiling
func (b *Brave) MaxResults() int { return maxProviderResults }

// Search executes one Brave web search request
func (b *Brave) Search(ctx context.Context, query model.SearchQuery) ([]model.SearchResult, error) {
	if strings.TrimSpace(b.APIKey) == "" {
		return nil, &RequestError{Provider: b.Name(), Err: errors.New("API key is missing")}
	}

	count := query.Count
	if count <= 0 || count > maxProviderResults {
		count = maxProviderResults
	}

	params := url.Values{}
	params.Set("q", query.Text)
	params.Set("count", strconv.Itoa(count))
	params.Set("text_decorations", "false")
	if b.Lang != "" {
		params.Set("search_lang", b.Lang)
	}
	endpoint := strings.TrimRight(b.BaseURL, "/") + "/res/v1/web/search?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &RequestError{Provider: b.Name(), Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.APIKey)
	if b.UserAgent != "" {
		req.Header.Set("User-Agent", b.UserAgent)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{
			Provider:   b.Name(),
			StatusCode: resp.StatusCode,
			RetryAfter: retryAfterHint(resp.Header, time.Now()),
			Message:    strings.TrimSpace(string(msg)),
		}
	}

	var payload struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &DecodeError{Provider: b.Name(), Err: err}
	}

	results := make([]model.SearchResult, 0, len(payload.Web.Results))
	for _, r := range payload.Web.Results {
		results = append(results, model.SearchResult{
			Title:   cleanSnippet(r.Title),
			URL:     r.URL,
			Snippet: cleanSnippet(r.Description),
		})
	}

	return keepResults(results, count), nil
}
