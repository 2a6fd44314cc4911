package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ppiankov/veracity/internal/cache"
	"github.com/ppiankov/veracity/internal/metrics"
	"github.com/ppiankov/veracity/internal/model"
	"github.com/ppiankov/veracity/internal/worker"
)

const defaultAttemptTimeout = 10 * time.Second

// Client runs searches through the cache, the rate limiter and the retry policy
type Client struct {
	provider       Provider
	cache          cache.Cache
	limiter        *worker.Limiter
	retry          RetryPolicy
	attemptTimeout time.Duration
	logger         *slog.Logger
	metrics        *metrics.Metrics
	inflight       singleflight.Group
}

// Option configures a Client
type Option func(*Client)

// WithCache enables result caching
func WithCache(c cache.Cache) Option {
	return func(cl *Client) { cl.cache = c }
}

// WithLimiter rate-limits provider requests, keyed by provider name
func WithLimiter(l *worker.Limiter) Option {
	return func(cl *Client) { cl.limiter = l }
}

// WithRetry sets the retry policy
func WithRetry(p RetryPolicy) Option {
	return func(cl *Client) { cl.retry = p }
}

// WithAttemptTimeout bounds each individual provider request
func WithAttemptTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.attemptTimeout = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.logger = l
		}
	}
}

// WithMetrics records search and cache metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(cl *Client) { cl.metrics = m }
}

// NewClient creates a search client over provider
func NewClient(provider Provider, opts ...Option) *Client {
	c := &Client{
		provider:       provider,
		retry:          DefaultRetryPolicy(),
		attemptTimeout: defaultAttemptTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ProviderName returns the name of the underlying provider
func (c *Client) ProviderName() string {
	return c.provider.Name()
}

// Search returns up to maxResults results for query, in provider ranking order.
// Failures are *Error; cancellation of ctx returns ctx's error while an in-flight
// fetch keeps running so its result still reaches the cache.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]model.SearchResult, error) {
	name := c.provider.Name()
	text := strings.TrimSpace(query)

	if text == "" {
		c.metrics.SearchRequest(name, KindInvalidQuery.String())
		return nil, &Error{Kind: KindInvalidQuery, Provider: name, Query: query, Err: errors.New("blank query")}
	}
	if maxResults <= 0 {
		c.metrics.SearchRequest(name, KindInvalidQuery.String())
		return nil, &Error{Kind: KindInvalidQuery, Provider: name, Query: text, Err: fmt.Errorf("result count must be positive, got %d", maxResults)}
	}
	if limit := c.provider.MaxResults(); limit > 0 && maxResults > limit {
		maxResults = limit
	}

	key := cache.NormalizeKey(text)

	if c.cache != nil {
		if entry, ok := c.cache.Lookup(key); ok && entry.Covers(maxResults) {
			c.metrics.CacheLookup(true)
			c.metrics.SearchRequest(name, "cache_hit")
			c.logger.Debug("search cache hit", "query", key, "results", len(entry.Results))
			return firstN(entry.Results, maxResults), nil
		}
		c.metrics.CacheLookup(false)
	}

	ch := c.inflight.DoChan(fmt.Sprintf("%s|%d", key, maxResults), func() (any, error) {
		// Detached so one caller giving up does not fail the others sharing this fetch
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchBudget())
		defer cancel()
		return c.fetch(fctx, text, key, maxResults)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return model.CloneResults(res.Val.([]model.SearchResult)), nil
	}
}

func (c *Client) fetch(ctx context.Context, text, key string, count int) ([]model.SearchResult, error) {
	name := c.provider.Name()
	query := model.SearchQuery{Text: text, Count: count}

	var lastErr error
	rateLimited := false

	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx, name); err != nil {
				return nil, c.fail(KindRateLimited, text, attempt-1, fmt.Errorf("rate limiter: %w", err))
			}
		}

		results, err := c.attempt(ctx, query)
		if err == nil {
			c.metrics.SearchAttempt(name, "ok")
			c.metrics.SearchRequest(name, "ok")
			if c.cache != nil {
				c.cache.Insert(cache.Entry{Query: key, Results: results, Requested: count})
			}
			c.logger.Debug("search succeeded", "query", key, "attempt", attempt, "results", len(results))
			return results, nil
		}
		lastErr = err

		var statusErr *StatusError
		var decodeErr *DecodeError
		var requestErr *RequestError
		switch {
		case errors.As(err, &requestErr):
			c.metrics.SearchAttempt(name, "fatal")
			return nil, c.fail(KindInvalidQuery, text, attempt, err)
		case errors.As(err, &decodeErr):
			c.metrics.SearchAttempt(name, "fatal")
			return nil, c.fail(KindProviderUnavailable, text, attempt, err)
		case errors.As(err, &statusErr) && !statusErr.Transient():
			c.metrics.SearchAttempt(name, "fatal")
			return nil, c.fail(KindInvalidQuery, text, attempt, err)
		case ctx.Err() != nil:
			c.metrics.SearchAttempt(name, "transient")
			return nil, c.fail(KindProviderUnavailable, text, attempt, err)
		}

		delay := c.retry.Backoff(attempt)
		rateLimited = statusErr != nil && statusErr.StatusCode == 429
		if rateLimited {
			c.metrics.SearchAttempt(name, "rate_limited")
			if statusErr.RetryAfter > delay {
				delay = min(statusErr.RetryAfter, c.retry.MaxBackoff)
			}
		} else {
			c.metrics.SearchAttempt(name, "transient")
		}

		if attempt == c.retry.MaxAttempts {
			break
		}

		c.logger.Warn("search attempt failed, retrying",
			"provider", name, "query", key, "attempt", attempt, "delay", delay, "error", err)
		if err := sleepFunc(ctx, delay); err != nil {
			return nil, c.fail(KindProviderUnavailable, text, attempt, lastErr)
		}
	}

	kind := KindProviderUnavailable
	if rateLimited {
		kind = KindRateLimited
	}
	return nil, c.fail(kind, text, c.retry.MaxAttempts, lastErr)
}

// fetchBudget bounds a detached fetch: every attempt timing out plus the longest backoff between each
func (c *Client) fetchBudget() time.Duration {
	n := time.Duration(c.retry.MaxAttempts)
	return n * (c.attemptTimeout + c.retry.MaxBackoff)
}

func (c *Client) attempt(ctx context.Context, query model.SearchQuery) ([]model.SearchResult, error) {
	actx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()
	return c.provider.Search(actx, query)
}

func (c *Client) fail(kind Kind, query string, attempts int, cause error) error {
	name := c.provider.Name()
	c.metrics.SearchRequest(name, kind.String())
	c.logger.Warn("search failed", "provider", name, "query", query, "kind", kind.String(), "attempts", attempts, "error", cause)
	return &Error{Kind: kind, Provider: name, Query: query, Attempts: attempts, Err: cause}
}

func firstN(results []model.SearchResult, n int) []model.SearchResult {
	if n < len(results) {
		results = results[:n]
	}
	return model.CloneResults(results)
}
