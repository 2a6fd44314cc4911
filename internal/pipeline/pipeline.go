package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ppiankov/veracity/internal/cache"
	"github.com/ppiankov/veracity/internal/factcheck"
	"github.com/ppiankov/veracity/internal/llm"
	"github.com/ppiankov/veracity/internal/metrics"
	"github.com/ppiankov/veracity/internal/model"
	"github.com/ppiankov/veracity/internal/search"
	"github.com/ppiankov/veracity/internal/util"
	"github.com/ppiankov/veracity/internal/worker"
)

var errSearchOnly = errors.New("pipeline has no model provider")

// Pipeline wires configuration into a ready-to-use fact-checker
type Pipeline struct {
	orchestrator *factcheck.Orchestrator
	search       *search.Client
	model        llm.Provider
	closers      []func() error
	config       *model.Config
	logger       *slog.Logger
}

// NewPipeline builds the cache, search client, model provider and
// orchestrator described by cfg. metrics may be nil. opts are applied
// after the options derived from cfg.
func NewPipeline(cfg *model.Config, logger *slog.Logger, m *metrics.Metrics, opts ...factcheck.Option) (*Pipeline, error) {
	p, err := NewSearchPipeline(cfg, logger, m)
	if err != nil {
		return nil, err
	}

	llmConfig := llm.ConfigFromModel(cfg.LLM)
	llmConfig.HTTPClient = util.NewHTTPClient(cfg.LLM.Timeout, p.proxy())
	p.model, err = llm.NewProvider(llmConfig)
	if err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("llm provider: %w", err)
	}

	options := []factcheck.Option{
		factcheck.WithMaxTurns(cfg.Analysis.MaxTurns),
		factcheck.WithReparseConsumesTurn(cfg.Analysis.ReparseConsumesTurn),
		factcheck.WithStrictEvidence(cfg.Analysis.StrictEvidence),
		factcheck.WithModelTimeout(cfg.LLM.Timeout),
		factcheck.WithGeneration(cfg.LLM.MaxTokens, cfg.LLM.Temperature),
		factcheck.WithLogger(p.logger),
		factcheck.WithMetrics(m),
	}
	p.orchestrator = factcheck.New(p.model, p.search, append(options, opts...)...)

	p.logger.Debug("pipeline ready",
		"search", p.search.ProviderName(),
		"llm", p.model.Name(),
		"model", p.model.Model(),
		"cache", cfg.Cache.Enabled,
		"store", cfg.Cache.Store,
	)

	return p, nil
}

// NewSearchPipeline builds only the cached, rate-limited search client.
// Check and Batch fail on a search-only pipeline.
func NewSearchPipeline(cfg *model.Config, logger *slog.Logger, m *metrics.Metrics) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{config: cfg, logger: logger}

	provider, err := search.NewProvider(cfg.Search, cfg.HTTP.UserAgent, util.NewHTTPClient(cfg.Search.Timeout, p.proxy()))
	if err != nil {
		return nil, fmt.Errorf("search provider: %w", err)
	}

	limiter := worker.NewLimiter(cfg.RateLimiting.RequestsPerSecond, cfg.RateLimiting.BurstSize)
	opts := []search.Option{
		search.WithLimiter(limiter),
		search.WithRetry(search.NewRetryPolicy(cfg.Search.Retry)),
		search.WithAttemptTimeout(cfg.Search.Timeout),
		search.WithLogger(logger),
		search.WithMetrics(m),
	}
	if cfg.Cache.Enabled {
		c, err := p.openCache(cfg.Cache)
		if err != nil {
			return nil, err
		}
		opts = append(opts, search.WithCache(c))
	}
	p.search = search.NewClient(provider, opts...)

	return p, nil
}

func (p *Pipeline) proxy() util.ProxyConfig {
	return util.ProxyConfig{
		HTTPProxy:  p.config.HTTP.HTTPProxy,
		HTTPSProxy: p.config.HTTP.HTTPSProxy,
		NoProxy:    p.config.HTTP.NoProxy,
	}
}

func (p *Pipeline) openCache(cfg model.CacheConfig) (cache.Cache, error) {
	memory := cache.NewMemory(cfg.TTL, cfg.CleanupInterval)

	switch cfg.Store {
	case "", "none":
		return memory, nil
	case "file":
		layered := cache.NewLayered(memory, cache.NewFileStore(cfg.Path, cfg.TTL, p.logger), p.logger)
		p.closers = append(p.closers, layered.Close)
		return layered, nil
	case "badger":
		store, err := cache.OpenBadgerStore(cfg.Path, cfg.TTL, p.logger)
		if err != nil {
			return nil, fmt.Errorf("cache store: %w", err)
		}
		layered := cache.NewLayered(memory, store, p.logger)
		p.closers = append(p.closers, layered.Close)
		return layered, nil
	default:
		return nil, fmt.Errorf("unsupported cache store: %s", cfg.Store)
	}
}

// Check fact-checks a single claim
func (p *Pipeline) Check(ctx context.Context, claim string) (*model.FactCheckResult, error) {
	if p.orchestrator == nil {
		return nil, errSearchOnly
	}
	return p.orchestrator.Check(ctx, claim)
}

// Search runs one query through the cached, rate-limited search client
func (p *Pipeline) Search(ctx context.Context, query string, maxResults int) ([]model.SearchResult, error) {
	return p.search.Search(ctx, query, maxResults)
}

// Batch checks claims concurrently with the configured worker count.
// Outcomes keep input order; onComplete, if set, is called as each claim finishes.
func (p *Pipeline) Batch(ctx context.Context, claims []string, onComplete func(*worker.CheckOutcome)) []*worker.CheckOutcome {
	b := worker.NewBatchProcessor(p, p.config.Concurrency.Workers)
	if onComplete != nil {
		b.OnComplete(onComplete)
	}
	return b.ProcessClaims(ctx, claims)
}

// ModelAvailable reports whether the model provider answers
func (p *Pipeline) ModelAvailable(ctx context.Context) bool {
	return p.model != nil && p.model.IsAvailable(ctx)
}

// Close releases the durable cache store, if any
func (p *Pipeline) Close() error {
	var errs []error
	for _, closeFn := range p.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	p.closers = nil
	return errors.Join(errs...)
}
