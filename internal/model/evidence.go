package model

import (
	"net/url"
	"strings"
)

// SearchQuery is a query string plus the number of results wanted
type SearchQuery struct {
	Text  string `json:"query"`
	Count int    `json:"count,omitempty"`
}

// SearchResult is a single ranked hit returned by a search provider.
// Slices of results keep the provider's relevance order.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// Reference is a source cited by the final verdict
type Reference struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Host returns the host portion of the reference URL
func (r Reference) Host() string {
	parsed, err := url.Parse(r.URL)
	if err != nil {
		return ""
	}
	return parsed.Host
}

// CanonicalURL normalises a URL for evidence matching: scheme and host are
// lower-cased, the fragment is dropped and a trailing slash is trimmed.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return strings.TrimRight(raw, "/")
	}
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""
	return strings.TrimRight(parsed.String(), "/")
}

// CloneResults returns a copy of results so callers cannot mutate shared slices
func CloneResults(results []SearchResult) []SearchResult {
	if results == nil {
		return nil
	}
	out := make([]SearchResult, len(results))
	copy(out, results)
	return out
}
