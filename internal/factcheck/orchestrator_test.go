package factcheck

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/veracity/internal/llm"
	"github.com/ppiankov/veracity/internal/model"
	"github.com/ppiankov/veracity/internal/search"
	"github.com/ppiankov/veracity/internal/tools"
	"github.com/ppiankov/veracity/internal/verdict"
)

// testClock is advanced by the fakes so timing is deterministic
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// step is one scripted model reply
type step struct {
	msg llm.Message
	err error
}

// scriptedModel replays steps in order; once exhausted it repeats the last one
type scriptedModel struct {
	steps    []step
	clock    *testClock
	latency  time.Duration
	requests []llm.Request
	onCall   func(n int)
}

func (m *scriptedModel) Name() string                         { return "scripted" }
func (m *scriptedModel) Model() string                        { return "scripted-1" }
func (m *scriptedModel) IsAvailable(ctx context.Context) bool { return true }

func (m *scriptedModel) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	req.Messages = append([]llm.Message(nil), req.Messages...)
	m.requests = append(m.requests, req)
	n := len(m.requests)
	if m.onCall != nil {
		m.onCall(n)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.clock != nil {
		m.clock.Advance(m.latency)
	}

	s := m.steps[len(m.steps)-1]
	if n <= len(m.steps) {
		s = m.steps[n-1]
	}
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Response{Message: s.msg}, nil
}

// fakeSearcher returns fixed results or a fixed error
type fakeSearcher struct {
	results []model.SearchResult
	err     error
	clock   *testClock
	latency time.Duration
	queries []string
	counts  []int
}

func (s *fakeSearcher) Search(ctx context.Context, query string, maxResults int) ([]model.SearchResult, error) {
	s.queries = append(s.queries, query)
	s.counts = append(s.counts, maxResults)
	if s.clock != nil {
		s.clock.Advance(s.latency)
	}
	if s.err != nil {
		return nil, s.err
	}
	if maxResults < len(s.results) {
		return s.results[:maxResults], nil
	}
	return s.results, nil
}

var franceResults = []model.SearchResult{
	{Title: "Paris - Wikipedia", URL: "https://en.wikipedia.org/wiki/Paris", Snippet: "Paris is the capital and largest city of France."},
	{Title: "France | Britannica", URL: "https://www.britannica.com/place/France", Snippet: "Capital: Paris."},
}

func searchCall(id, args string) step {
	return step{msg: llm.Message{
		Role:      llm.RoleAssistant,
		ToolCalls: []llm.ToolCall{{ID: id, Name: tools.WebSearch, Arguments: args}},
	}}
}

func answer(content string) step {
	return step{msg: llm.Message{Role: llm.RoleAssistant, Content: content}}
}

const parisAnswer = `{
  "verdict": "TRUE",
  "explanation": "Paris is the capital of France [1].",
  "context": "Paris has been the capital for most of French history.",
  "references": [{"title": "Paris - Wikipedia", "url": "https://en.wikipedia.org/wiki/Paris"}]
}`

const mixedAnswer = `{"verdict": "MIXED", "explanation": "Search was unavailable.", "context": "Evidence incomplete.", "references": []}`

// toolMessages returns the tool messages of the last request
func toolMessages(m *scriptedModel) []llm.Message {
	var out []llm.Message
	last := m.requests[len(m.requests)-1]
	for _, msg := range last.Messages {
		if msg.Role == llm.RoleTool {
			out = append(out, msg)
		}
	}
	return out
}

func TestCheck_CapitalOfFrance(t *testing.T) {
	provider := &scriptedModel{steps: []step{
		searchCall("call_1", `{"query": "capital of France"}`),
		answer("Here is my verdict:\n```json\n" + parisAnswer + "\n```"),
	}}
	searcher := &fakeSearcher{results: franceResults}

	result, err := New(provider, searcher).Check(context.Background(), "  The capital of France is Paris ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Verdict != model.VerdictTrue {
		t.Errorf("expected TRUE, got %s", result.Verdict)
	}
	if result.Claim != "The capital of France is Paris" {
		t.Errorf("expected trimmed claim, got %q", result.Claim)
	}
	if result.Turns != 2 {
		t.Errorf("expected 2 turns, got %d", result.Turns)
	}
	if len(result.References) != 1 || result.References[0].URL != "https://en.wikipedia.org/wiki/Paris" {
		t.Errorf("unexpected references: %+v", result.References)
	}
	if result.ID == "" {
		t.Error("expected a result ID")
	}
	if result.Model != "scripted-1" {
		t.Errorf("expected model name from provider, got %q", result.Model)
	}

	if len(searcher.queries) != 1 || searcher.queries[0] != "capital of France" {
		t.Errorf("unexpected queries: %v", searcher.queries)
	}
	if searcher.counts[0] != tools.DefaultSearchCount {
		t.Errorf("expected default count %d, got %d", tools.DefaultSearchCount, searcher.counts[0])
	}

	msgs := toolMessages(provider)
	if len(msgs) != 1 || msgs[0].ToolCallID != "call_1" {
		t.Fatalf("expected one tool message answering call_1, got %+v", msgs)
	}
	if !strings.Contains(msgs[0].Content, "en.wikipedia.org/wiki/Paris") {
		t.Errorf("tool message should carry results: %s", msgs[0].Content)
	}
	if msgs[0].ToolError {
		t.Error("successful search must not be flagged as a tool error")
	}

	first := provider.requests[0]
	if len(first.Tools) != 1 || first.Tools[0].Name != tools.WebSearch {
		t.Errorf("expected web_search tool to be offered, got %+v", first.Tools)
	}
	if first.Messages[0].Role != llm.RoleSystem || first.Messages[1].Role != llm.RoleUser {
		t.Errorf("expected system then user message, got %s, %s", first.Messages[0].Role, first.Messages[1].Role)
	}
}

func TestCheck_InvalidClaim(t *testing.T) {
	provider := &scriptedModel{steps: []step{answer(parisAnswer)}}

	tests := []string{"", "   ", strings.Repeat("x", model.MaxClaimLength+1)}
	for _, claim := range tests {
		_, err := New(provider, &fakeSearcher{}).Check(context.Background(), claim)
		var verr *model.ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("claim of length %d: expected ValidationError, got %v", len(claim), err)
		}
	}
	if len(provider.requests) != 0 {
		t.Errorf("invalid claims must not reach the model, got %d calls", len(provider.requests))
	}
}

func TestCheck_TurnBudgetIsExact(t *testing.T) {
	for _, maxTurns := range []int{1, 3, 6} {
		t.Run(fmt.Sprintf("max_%d", maxTurns), func(t *testing.T) {
			provider := &scriptedModel{steps: []step{searchCall("c", `{"query": "paris"}`)}}
			searcher := &fakeSearcher{results: franceResults}

			_, err := New(provider, searcher, WithMaxTurns(maxTurns)).Check(context.Background(), "claim")
			if !errors.Is(err, ErrTurnBudgetExceeded) {
				t.Fatalf("expected turn budget error, got %v", err)
			}
			if len(provider.requests) != maxTurns {
				t.Errorf("expected exactly %d model calls, got %d", maxTurns, len(provider.requests))
			}

			var oerr *OrchestrationError
			if !errors.As(err, &oerr) || oerr.Turns != maxTurns {
				t.Errorf("expected Turns=%d in error, got %+v", maxTurns, oerr)
			}
		})
	}
}

func TestCheck_SearchFailureIsReportedToModel(t *testing.T) {
	provider := &scriptedModel{steps: []step{
		searchCall("c1", `{"query": "paris"}`),
		answer(mixedAnswer),
	}}
	searcher := &fakeSearcher{err: &search.Error{
		Kind:     search.KindProviderUnavailable,
		Provider: "brave",
		Query:    "paris",
		Attempts: 3,
		Err:      errors.New("status 503"),
	}}

	result, err := New(provider, searcher).Check(context.Background(), "The capital of France is Paris")
	if err != nil {
		t.Fatalf("search failures should not fail the check: %v", err)
	}
	if result.Verdict != model.VerdictMixed {
		t.Errorf("expected MIXED, got %s", result.Verdict)
	}
	if result.References == nil {
		t.Error("references should be an empty slice, not nil")
	}

	msgs := toolMessages(provider)
	if len(msgs) != 1 {
		t.Fatalf("expected one tool message, got %d", len(msgs))
	}
	if !strings.Contains(msgs[0].Content, `"kind":"provider_unavailable"`) {
		t.Errorf("tool message should carry the error kind: %s", msgs[0].Content)
	}
	if !msgs[0].ToolError {
		t.Error("failed search should be flagged as a tool error")
	}
}

func TestCheck_ToolCallErrors(t *testing.T) {
	tests := []struct {
		name string
		call llm.ToolCall
		want string
	}{
		{"unknown tool", llm.ToolCall{ID: "a", Name: "fetch_url", Arguments: `{"url": "x"}`}, `"kind":"unknown_tool"`},
		{"missing query", llm.ToolCall{ID: "b", Name: tools.WebSearch, Arguments: `{"count": 3}`}, `"kind":"invalid_arguments"`},
		{"not json", llm.ToolCall{ID: "c", Name: tools.WebSearch, Arguments: `query=paris`}, `"kind":"invalid_arguments"`},
		{"zero count", llm.ToolCall{ID: "d", Name: tools.WebSearch, Arguments: `{"query": "paris", "count": 0}`}, `"kind":"invalid_arguments"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &scriptedModel{steps: []step{
				{msg: llm.Message{ToolCalls: []llm.ToolCall{tt.call}}},
				answer(mixedAnswer),
			}}
			searcher := &fakeSearcher{results: franceResults}

			if _, err := New(provider, searcher).Check(context.Background(), "claim"); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(searcher.queries) != 0 {
				t.Errorf("search should not run, got %v", searcher.queries)
			}
			msgs := toolMessages(provider)
			if len(msgs) != 1 || msgs[0].ToolCallID != tt.call.ID || !strings.Contains(msgs[0].Content, tt.want) || !msgs[0].ToolError {
				t.Errorf("expected tool error %s, got %+v", tt.want, msgs)
			}
		})
	}
}

func TestCheck_MultipleToolCallsRunInOrder(t *testing.T) {
	provider := &scriptedModel{steps: []step{
		{msg: llm.Message{ToolCalls: []llm.ToolCall{
			{ID: "1", Name: tools.WebSearch, Arguments: `{"query": "first", "count": 1}`},
			{ID: "2", Name: tools.WebSearch, Arguments: `{"query": "second", "count": 50}`},
		}}},
		answer(parisAnswer),
	}}
	searcher := &fakeSearcher{results: franceResults}

	if _, err := New(provider, searcher).Check(context.Background(), "claim"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Join(searcher.queries, ",") != "first,second" {
		t.Errorf("expected calls in order, got %v", searcher.queries)
	}
	if searcher.counts[1] != tools.MaxSearchCount {
		t.Errorf("expected count clamped to %d, got %d", tools.MaxSearchCount, searcher.counts[1])
	}
	msgs := toolMessages(provider)
	if len(msgs) != 2 || msgs[0].ToolCallID != "1" || msgs[1].ToolCallID != "2" {
		t.Errorf("tool messages out of order: %+v", msgs)
	}
}

func TestCheck_RepromptOnceThenFail(t *testing.T) {
	provider := &scriptedModel{steps: []step{
		answer("I think it's true."),
		answer(`{"verdict": "PROBABLY", "explanation": "x", "context": "y", "references": []}`),
	}}

	_, err := New(provider, &fakeSearcher{}).Check(context.Background(), "claim")
	if !errors.Is(err, ErrMalformedAnswer) {
		t.Fatalf("expected malformed answer, got %v", err)
	}
	if !errors.Is(err, verdict.ErrUnknownVerdict) {
		t.Errorf("expected the final parse error to be wrapped, got %v", err)
	}
	if len(provider.requests) != 2 {
		t.Fatalf("expected exactly one re-prompt, got %d calls", len(provider.requests))
	}

	second := provider.requests[1].Messages
	last := second[len(second)-1]
	if last.Role != llm.RoleUser || !strings.Contains(last.Content, "rejected") {
		t.Errorf("expected corrective user message, got %+v", last)
	}
}

func TestCheck_RepromptRecovers(t *testing.T) {
	provider := &scriptedModel{steps: []step{
		answer(`{"verdict": "TRUE"}`),
		answer(`{"verdict": "TRUE", "explanation": "x", "context": "y", "references": []}`),
	}}

	result, err := New(provider, &fakeSearcher{}).Check(context.Background(), "claim")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Turns != 2 {
		t.Errorf("expected 2 turns, got %d", result.Turns)
	}
}

func TestCheck_ReparseTurnAccounting(t *testing.T) {
	tests := []struct {
		name     string
		consumes bool
		wantErr  error
		wantCall int
	}{
		{"re-prompt consumes a turn", true, ErrTurnBudgetExceeded, 2},
		{"re-prompt is free", false, nil, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &scriptedModel{steps: []step{
				searchCall("c", `{"query": "capital of France"}`),
				answer("not json"),
				answer(parisAnswer),
			}}
			o := New(provider, &fakeSearcher{results: franceResults},
				WithMaxTurns(2), WithReparseConsumesTurn(tt.consumes))

			result, err := o.Check(context.Background(), "claim")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			} else if result.Turns != tt.wantCall {
				t.Errorf("expected %d turns, got %d", tt.wantCall, result.Turns)
			}
			if len(provider.requests) != tt.wantCall {
				t.Errorf("expected %d model calls, got %d", tt.wantCall, len(provider.requests))
			}
		})
	}
}

func TestCheck_StrictEvidence(t *testing.T) {
	invented := `{"verdict": "TRUE", "explanation": "x", "context": "y",
		"references": [{"title": "Made up", "url": "https://invented.example/paris"}]}`

	tests := []struct {
		name    string
		strict  bool
		wantErr bool
	}{
		{"strict rejects untraced URL", true, true},
		{"lenient accepts it", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &scriptedModel{steps: []step{
				searchCall("c", `{"query": "paris"}`),
				answer(invented),
			}}
			o := New(provider, &fakeSearcher{results: franceResults}, WithStrictEvidence(tt.strict))

			_, err := o.Check(context.Background(), "claim")
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedAnswer) || !errors.Is(err, verdict.ErrUntracedReference) {
					t.Fatalf("expected untraced reference failure, got %v", err)
				}
				// tool call, answer, one re-prompt
				if len(provider.requests) != 3 {
					t.Errorf("expected 3 model calls, got %d", len(provider.requests))
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestCheck_StrictEvidenceMatchesCanonicalURL(t *testing.T) {
	cited := `{"verdict": "TRUE", "explanation": "x", "context": "y",
		"references": [{"title": "Paris", "url": "HTTPS://EN.WIKIPEDIA.ORG/wiki/Paris/#History"}]}`
	provider := &scriptedModel{steps: []step{
		searchCall("c", `{"query": "paris"}`),
		answer(cited),
	}}

	if _, err := New(provider, &fakeSearcher{results: franceResults}).Check(context.Background(), "claim"); err != nil {
		t.Fatalf("canonically equal URL should be accepted: %v", err)
	}
}

func TestCheck_ModelUnavailable(t *testing.T) {
	cause := errors.New("connection refused")
	provider := &scriptedModel{steps: []step{{err: cause}}}

	_, err := New(provider, &fakeSearcher{}).Check(context.Background(), "claim")
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("expected model unavailable, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Error("expected provider error to be wrapped")
	}
}

func TestCheck_ParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider := &scriptedModel{
		steps:  []step{searchCall("c", `{"query": "paris"}`)},
		onCall: func(n int) { cancel() },
	}

	_, err := New(provider, &fakeSearcher{results: franceResults}).Check(ctx, "claim")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	var oerr *OrchestrationError
	if errors.As(err, &oerr) {
		t.Errorf("cancellation should not be an orchestration error: %v", err)
	}
	if len(provider.requests) != 1 {
		t.Errorf("expected no further calls after cancel, got %d", len(provider.requests))
	}
}

func TestCheck_DeterministicTransitions(t *testing.T) {
	runOnce := func() []Transition {
		var seen []Transition
		provider := &scriptedModel{steps: []step{
			searchCall("c1", `{"query": "capital of France"}`),
			answer("no json here"),
			answer(parisAnswer),
		}}
		o := New(provider, &fakeSearcher{results: franceResults},
			WithObserver(func(tr Transition) { seen = append(seen, tr) }))
		if _, err := o.Check(context.Background(), "The capital of France is Paris"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return seen
	}

	want := []Transition{
		{From: StateInit, To: StateAwaitingModel, Turn: 0},
		{From: StateAwaitingModel, To: StateExecutingTools, Turn: 1},
		{From: StateExecutingTools, To: StateAwaitingModel, Turn: 1},
		{From: StateAwaitingModel, To: StateAwaitingModel, Turn: 2},
		{From: StateAwaitingModel, To: StateSuccess, Turn: 3},
	}

	first, second := runOnce(), runOnce()
	if len(first) != len(want) {
		t.Fatalf("expected %d transitions, got %d: %v", len(want), len(first), first)
	}
	for i := range want {
		if first[i] != want[i] {
			t.Errorf("transition %d: expected %+v, got %+v", i, want[i], first[i])
		}
		if first[i] != second[i] {
			t.Errorf("transition %d differs between runs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestCheck_TurnObserver(t *testing.T) {
	var turns []Turn
	provider := &scriptedModel{steps: []step{
		searchCall("c1", `{"query": "capital of France"}`),
		answer(parisAnswer),
	}}
	o := New(provider, &fakeSearcher{results: franceResults},
		WithTurnObserver(func(tr Turn) { turns = append(turns, tr) }))

	if _, err := o.Check(context.Background(), "claim"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].Index != 1 || len(turns[0].Request) != 2 || len(turns[0].ToolCalls) != 1 {
		t.Errorf("unexpected first turn: %+v", turns[0])
	}
	// system, user, assistant tool call, tool result
	if turns[1].Index != 2 || len(turns[1].Request) != 4 || len(turns[1].ToolCalls) != 0 {
		t.Errorf("unexpected second turn: %+v", turns[1])
	}
}

func TestCheck_Timing(t *testing.T) {
	clock := newTestClock()
	provider := &scriptedModel{
		clock:   clock,
		latency: 700 * time.Millisecond,
		steps: []step{
			searchCall("c1", `{"query": "capital of France"}`),
			searchCall("c2", `{"query": "Paris capital history"}`),
			answer(parisAnswer),
		},
	}
	searcher := &fakeSearcher{results: franceResults, clock: clock, latency: 2 * time.Second}

	result, err := New(provider, searcher, WithClock(clock.Now)).Check(context.Background(), "claim")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Timing.Search != 4*time.Second {
		t.Errorf("expected 4s search time, got %s", result.Timing.Search)
	}
	if result.Timing.Total != 4*time.Second+2100*time.Millisecond {
		t.Errorf("expected 6.1s total, got %s", result.Timing.Total)
	}
	if result.Timing.Search+result.Timing.Analysis != result.Timing.Total {
		t.Errorf("search + analysis must equal total: %+v", result.Timing)
	}
	if !result.CheckedAt.Equal(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("expected CheckedAt to be the start time, got %s", result.CheckedAt)
	}
}

func TestSystemPrompt(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	p := systemPrompt(now, 4, true)

	for _, want := range []string{"2026-03-01", tools.WebSearch, "at most 4", "MOSTLY_FALSE", "Cite only URLs"} {
		if !strings.Contains(p, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
	if strings.Contains(systemPrompt(now, 4, false), "Cite only URLs") {
		t.Error("lenient prompt should not demand traced URLs")
	}
}

func TestOrchestrationError_Is(t *testing.T) {
	err := error(&OrchestrationError{Kind: KindTurnBudgetExceeded, Turns: 6})
	if !errors.Is(err, ErrTurnBudgetExceeded) {
		t.Error("expected match on own kind")
	}
	if errors.Is(err, ErrModelUnavailable) || errors.Is(err, ErrMalformedAnswer) {
		t.Error("matched a different kind")
	}
	if !strings.Contains(err.Error(), "turn_budget_exceeded after 6 turns") {
		t.Errorf("unexpected message: %s", err)
	}
}
