package factcheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/veracity/internal/llm"
	"github.com/ppiankov/veracity/internal/metrics"
	"github.com/ppiankov/veracity/internal/model"
	"github.com/ppiankov/veracity/internal/search"
	"github.com/ppiankov/veracity/internal/tools"
	"github.com/ppiankov/veracity/internal/verdict"
)

// Searcher runs one web search. *search.Client implements it.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]model.SearchResult, error)
}

// State is a phase of one fact-check
type State int

const (
	StateInit State = iota
	StateAwaitingModel
	StateExecutingTools
	StateSuccess
	StateFailure
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateAwaitingModel:
		return "awaiting_model"
	case StateExecutingTools:
		return "executing_tools"
	case StateSuccess:
		return "success"
	case StateFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Transition records one state change
type Transition struct {
	From State
	To   State
	Turn int // Model calls made so far
}

// Turn is one round of the conversation: the messages sent, the model's
// reply and the tool calls extracted from it
type Turn struct {
	Index     int
	Request   []llm.Message
	Response  llm.Message
	ToolCalls []llm.ToolCall
}

// Orchestrator drives the conversation between the model and the search tool
type Orchestrator struct {
	provider            llm.Provider
	searcher            Searcher
	maxTurns            int
	reparseConsumesTurn bool
	strictEvidence      bool
	modelTimeout        time.Duration
	maxTokens           int
	temperature         float32
	logger              *slog.Logger
	metrics             *metrics.Metrics
	now                 func() time.Time
	observer            func(Transition)
	turnObserver        func(Turn)
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithMaxTurns bounds the number of model calls per check
func WithMaxTurns(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxTurns = n
		}
	}
}

// WithReparseConsumesTurn controls whether the corrective re-prompt after a
// rejected answer counts against the turn budget
func WithReparseConsumesTurn(v bool) Option {
	return func(o *Orchestrator) { o.reparseConsumesTurn = v }
}

// WithStrictEvidence requires every cited URL to come from a search result of the same check
func WithStrictEvidence(v bool) Option {
	return func(o *Orchestrator) { o.strictEvidence = v }
}

// WithModelTimeout bounds each model call
func WithModelTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.modelTimeout = d
		}
	}
}

// WithGeneration sets max tokens and temperature for model calls
func WithGeneration(maxTokens int, temperature float32) Option {
	return func(o *Orchestrator) {
		o.maxTokens = maxTokens
		o.temperature = temperature
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics records fact-check metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithObserver receives every state transition
func WithObserver(fn func(Transition)) Option {
	return func(o *Orchestrator) { o.observer = fn }
}

// WithTurnObserver receives every completed model call
func WithTurnObserver(fn func(Turn)) Option {
	return func(o *Orchestrator) { o.turnObserver = fn }
}

// New creates an orchestrator. Defaults: 6 turns, re-prompt consumes a turn,
// strict evidence on, 60s model timeout.
func New(provider llm.Provider, searcher Searcher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		provider:            provider,
		searcher:            searcher,
		maxTurns:            6,
		reparseConsumesTurn: true,
		strictEvidence:      true,
		modelTimeout:        60 * time.Second,
		logger:              slog.Default(),
		now:                 time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Check fact-checks one claim. Invalid claims return *model.ValidationError
// before any external call; terminal failures are *OrchestrationError; caller
// cancellation returns the context's error.
func (o *Orchestrator) Check(ctx context.Context, raw string) (*model.FactCheckResult, error) {
	claim, err := model.NewClaim(raw)
	if err != nil {
		return nil, err
	}

	r := &run{
		o:      o,
		claim:  claim,
		state:  StateInit,
		budget: o.maxTurns,
		seen:   make(map[string]struct{}),
		start:  o.now(),
	}
	r.loop(ctx)

	total := o.now().Sub(r.start)
	if r.err != nil {
		o.metrics.FactCheck(outcomeLabel(r.err), r.turns, total)
		o.logger.Warn("fact-check failed", "claim", string(claim), "turns", r.turns, "error", r.err)
		return nil, r.err
	}

	result := &model.FactCheckResult{
		ID:          uuid.NewString(),
		Claim:       claim,
		Verdict:     r.answer.Verdict,
		Explanation: r.answer.Explanation,
		Context:     r.answer.Context,
		References:  r.answer.References,
		Timing: model.Timing{
			Search:   r.searchTime,
			Analysis: total - r.searchTime,
			Total:    total,
		},
		Turns:     r.turns,
		Model:     r.model,
		CheckedAt: r.start,
	}
	if result.References == nil {
		result.References = []model.Reference{}
	}

	o.metrics.FactCheck(string(result.Verdict), r.turns, total)
	o.logger.Info("fact-check complete", "claim", string(claim), "verdict", result.Verdict, "turns", r.turns, "total", total)

	out := result.Copy()
	return &out, nil
}

func outcomeLabel(err error) string {
	var oerr *OrchestrationError
	if errors.As(err, &oerr) {
		return oerr.Kind.String()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "cancelled"
	}
	return "error"
}

// run is the state of one invocation
type run struct {
	o     *Orchestrator
	claim model.Claim
	state State

	messages   []llm.Message
	pending    []llm.ToolCall
	turns      int
	budget     int
	reprompted bool

	seen       map[string]struct{}
	searchTime time.Duration
	start      time.Time
	model      string

	answer *verdict.Answer
	err    error
}

func (r *run) loop(ctx context.Context) {
	for r.state != StateSuccess && r.state != StateFailure {
		if err := ctx.Err(); err != nil {
			r.fail(err)
			return
		}

		switch r.state {
		case StateInit:
			r.init()
		case StateAwaitingModel:
			r.awaitModel(ctx)
		case StateExecutingTools:
			r.executeTools(ctx)
		}
	}
}

func (r *run) transition(to State) {
	t := Transition{From: r.state, To: to, Turn: r.turns}
	r.o.logger.Debug("fact-check transition", "from", t.From.String(), "to", t.To.String(), "turn", t.Turn)
	if r.o.observer != nil {
		r.o.observer(t)
	}
	r.state = to
}

func (r *run) fail(err error) {
	r.err = err
	r.transition(StateFailure)
}

func (r *run) failWith(kind Kind, cause error) {
	r.fail(&OrchestrationError{Kind: kind, Turns: r.turns, Err: cause})
}

func (r *run) init() {
	r.messages = []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt(r.o.now(), r.o.maxTurns, r.o.strictEvidence)},
		{Role: llm.RoleUser, Content: userPrompt(r.claim)},
	}
	r.transition(StateAwaitingModel)
}

func (r *run) awaitModel(ctx context.Context) {
	if r.turns >= r.budget {
		r.failWith(KindTurnBudgetExceeded, fmt.Errorf("no final answer within %d model calls", r.turns))
		return
	}

	mctx, cancel := context.WithTimeout(ctx, r.o.modelTimeout)
	resp, err := r.o.provider.Complete(mctx, llm.Request{
		Messages:    r.messages,
		Tools:       toolSpecs(),
		MaxTokens:   r.o.maxTokens,
		Temperature: r.o.temperature,
	})
	cancel()
	r.turns++

	if err != nil {
		if ctx.Err() != nil {
			r.fail(ctx.Err())
			return
		}
		r.failWith(KindModelUnavailable, err)
		return
	}

	r.model = resp.Model
	if r.model == "" {
		r.model = r.o.provider.Model()
	}

	msg := resp.Message
	msg.Role = llm.RoleAssistant
	if r.o.turnObserver != nil {
		r.o.turnObserver(Turn{
			Index:     r.turns,
			Request:   append([]llm.Message(nil), r.messages...),
			Response:  msg,
			ToolCalls: msg.ToolCalls,
		})
	}
	r.messages = append(r.messages, msg)

	if len(msg.ToolCalls) > 0 {
		r.pending = msg.ToolCalls
		r.transition(StateExecutingTools)
		return
	}

	answer, perr := verdict.Parse(msg.Content)
	if perr == nil && r.o.strictEvidence {
		perr = verdict.RequireTraced(answer, r.seen)
	}
	if perr == nil {
		r.answer = answer
		r.transition(StateSuccess)
		return
	}

	if r.reprompted {
		r.failWith(KindMalformedAnswer, perr)
		return
	}

	r.reprompted = true
	if !r.o.reparseConsumesTurn {
		r.budget++
	}
	r.o.logger.Debug("answer rejected, re-prompting", "turn", r.turns, "error", perr)
	r.messages = append(r.messages, llm.Message{Role: llm.RoleUser, Content: correctivePrompt(perr)})
	r.transition(StateAwaitingModel)
}

func (r *run) executeTools(ctx context.Context) {
	calls := r.pending
	r.pending = nil

	for _, call := range calls {
		started := r.o.now()
		content, failed, err := r.runTool(ctx, call)
		r.searchTime += r.o.now().Sub(started)
		if err != nil {
			r.fail(err)
			return
		}
		r.messages = append(r.messages, llm.Message{
			Role:       llm.RoleTool,
			ToolCallID: call.ID,
			Content:    content,
			ToolError:  failed,
		})
	}

	r.transition(StateAwaitingModel)
}

type toolResult struct {
	Query   string               `json:"query"`
	Results []model.SearchResult `json:"results"`
}

type toolError struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// runTool executes one call. Every failure except caller cancellation is
// reported back to the model as JSON content with failed set, rather than returned.
func (r *run) runTool(ctx context.Context, call llm.ToolCall) (content string, failed bool, err error) {
	if _, ok := tools.Lookup(call.Name); !ok {
		return encodeTool(toolError{Error: fmt.Sprintf("unknown tool %q; available: %s", call.Name, tools.WebSearch), Kind: "unknown_tool"}), true, nil
	}

	args, err := tools.ParseSearchArgs(call.Arguments)
	if err != nil {
		return encodeTool(toolError{Error: err.Error(), Kind: "invalid_arguments"}), true, nil
	}

	results, err := r.o.searcher.Search(ctx, args.Query, args.Count)
	if err != nil {
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		kind := "search_failed"
		var serr *search.Error
		if errors.As(err, &serr) {
			kind = serr.Kind.String()
		}
		r.o.logger.Warn("search tool failed", "query", args.Query, "turn", r.turns, "error", err)
		return encodeTool(toolError{Error: err.Error(), Kind: kind}), true, nil
	}

	for _, res := range results {
		r.seen[model.CanonicalURL(res.URL)] = struct{}{}
	}
	if results == nil {
		results = []model.SearchResult{}
	}
	r.o.logger.Debug("search tool returned", "query", args.Query, "results", len(results), "turn", r.turns)
	return encodeTool(toolResult{Query: args.Query, Results: results}), false, nil
}

func encodeTool(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	return string(data)
}

func toolSpecs() []llm.ToolSpec {
	specs := tools.Specs()
	out := make([]llm.ToolSpec, len(specs))
	for i, s := range specs {
		out[i] = llm.ToolSpec{Name: s.Name, Description: s.Description, Parameters: s.Parameters}
	}
	return out
}
