package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// WebSearch is the only tool the model may call
const WebSearch = "web_search"

// Result count bounds for web_search
const (
	DefaultSearchCount = 5
	MaxSearchCount     = 10
)

// Spec declares a callable tool: name, description and a JSON Schema for its arguments
type Spec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

var registry = []Spec{
	{
		Name:        WebSearch,
		Description: "Search the web for evidence about a claim. Returns ranked results with title, url and snippet.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Search query. Be specific; include names, dates and places from the claim.",
				},
				"count": map[string]any{
					"type":        "integer",
					"description": "Number of results to return",
					"minimum":     1,
					"maximum":     MaxSearchCount,
					"default":     DefaultSearchCount,
				},
			},
			"required": []string{"query"},
		},
	},
}

// Specs returns the declarations handed to the model
func Specs() []Spec {
	out := make([]Spec, len(registry))
	copy(out, registry)
	return out
}

// Lookup finds a tool by name
func Lookup(name string) (Spec, bool) {
	for _, spec := range registry {
		if spec.Name == name {
			return spec, true
		}
	}
	return Spec{}, false
}

// ArgumentError reports tool arguments the model got wrong
type ArgumentError struct {
	Tool   string
	Reason string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, e.Reason)
}

// SearchArgs are the decoded web_search arguments
type SearchArgs struct {
	Query string
	Count int
}

// ParseSearchArgs decodes web_search arguments. A missing count defaults to 5,
// a count above 10 is clamped, and a count below 1 is rejected.
func ParseSearchArgs(raw string) (SearchArgs, error) {
	var payload struct {
		Query *string          `json:"query"`
		Count *json.RawMessage `json:"count"`
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return SearchArgs{}, &ArgumentError{Tool: WebSearch, Reason: "empty arguments"}
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return SearchArgs{}, &ArgumentError{Tool: WebSearch, Reason: "arguments are not a JSON object: " + err.Error()}
	}

	if payload.Query == nil || strings.TrimSpace(*payload.Query) == "" {
		return SearchArgs{}, &ArgumentError{Tool: WebSearch, Reason: "query is required"}
	}
	args := SearchArgs{Query: strings.TrimSpace(*payload.Query), Count: DefaultSearchCount}

	if payload.Count != nil && string(*payload.Count) != "null" {
		var count float64
		if err := json.Unmarshal(*payload.Count, &count); err != nil {
			return SearchArgs{}, &ArgumentError{Tool: WebSearch, Reason: "count must be an integer"}
		}
		if math.Trunc(count) != count {
			return SearchArgs{}, &ArgumentError{Tool: WebSearch, Reason: "count must be an integer"}
		}
		switch {
		case count < 1:
			return SearchArgs{}, &ArgumentError{Tool: WebSearch, Reason: fmt.Sprintf("count must be at least 1, got %v", count)}
		case count > MaxSearchCount:
			args.Count = MaxSearchCount
		default:
			args.Count = int(count)
		}
	}

	return args, nil
}
