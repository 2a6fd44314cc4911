package search

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/ppiankov/veracity/internal/model"
)

// maxProviderResults is the page size ceiling shared by Brave and Tavily
const maxProviderResults = 20

// Provider is a single external search backend. Implementations make exactly
// one HTTP request per call and report failures as *StatusError, *DecodeError
// or *RequestError so the client can decide what to retry.
type Provider interface {
	Name() string
	Search(ctx context.Context, query model.SearchQuery) ([]model.SearchResult, error)
	MaxResults() int
}

// NewProvider builds the provider selected in cfg
func NewProvider(cfg model.SearchConfig, userAgent string, client *http.Client) (Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%s: API key is missing", cfg.Provider)
	}

	switch cfg.Provider {
	case "brave", "":
		b := NewBrave(cfg.APIKey, client)
		b.Lang = cfg.Lang
		b.UserAgent = userAgent
		if cfg.BaseURL != "" {
			b.BaseURL = cfg.BaseURL
		}
		return b, nil
	case "tavily":
		t := NewTavily(cfg.APIKey, client)
		t.UserAgent = userAgent
		if cfg.BaseURL != "" {
			t.BaseURL = cfg.BaseURL
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unsupported search provider: %s", cfg.Provider)
	}
}

// keepResults drops results without a URL and stops at limit, preserving order
func keepResults(results []model.SearchResult, limit int) []model.SearchResult {
	out := make([]model.SearchResult, 0, len(results))
	for _, r := range results {
		r.URL = strings.TrimSpace(r.URL)
		if r.URL == "" {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}
