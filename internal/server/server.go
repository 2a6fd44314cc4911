package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/veracity/internal/factcheck"
	"github.com/ppiankov/veracity/internal/metrics"
	"github.com/ppiankov/veracity/internal/model"
	"github.com/ppiankov/veracity/internal/pipeline"
	"github.com/ppiankov/veracity/internal/worker"
)

const shutdownTimeout = 10 * time.Second

// Server exposes fact-checking over HTTP:
//
//	POST /v1/factcheck  {"claim": "..."}
//	GET  /health
//	GET  /metrics
type Server struct {
	checker        worker.Checker
	metrics        *metrics.Metrics
	logger         *slog.Logger
	requestTimeout time.Duration
	router         *gin.Engine
}

// Option configures a Server
type Option func(*Server)

// WithMetrics mounts /metrics for m's registry
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRequestTimeout bounds each fact-check request
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.requestTimeout = d
		}
	}
}

// New creates a server that delegates to checker
func New(checker worker.Checker, opts ...Option) *Server {
	s := &Server{
		checker:        checker,
		logger:         slog.Default(),
		requestTimeout: 3 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}

	router := gin.New()
	router.Use(gin.Recovery(), s.logRequests())
	router.GET("/health", s.handleHealth)
	if s.metrics != nil {
		router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
	v1 := router.Group("/v1")
	v1.POST("/factcheck", s.handleFactCheck)

	s.router = router
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

type factCheckRequest struct {
	Claim string `json:"claim"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (s *Server) handleFactCheck(c *gin.Context) {
	var req factCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "request body must be JSON with a claim field", Kind: "bad_request"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.requestTimeout)
	defer cancel()

	result, err := s.checker.Check(ctx, req.Claim)
	if err != nil {
		status, body := errorStatus(err)
		if status >= http.StatusInternalServerError {
			s.logger.Warn("fact-check request failed", "status", status, "kind", body.Kind, "error", err)
		}
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusOK, pipeline.NewReport(result))
}

// errorStatus maps a check error to an HTTP status and body
func errorStatus(err error) (int, errorResponse) {
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		return http.StatusUnprocessableEntity, errorResponse{Error: verr.Error(), Kind: "invalid_claim"}
	}

	var oerr *factcheck.OrchestrationError
	if errors.As(err, &oerr) {
		return http.StatusBadGateway, errorResponse{Error: oerr.Error(), Kind: oerr.Kind.String()}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, errorResponse{Error: "fact-check timed out", Kind: "timeout"}
	}
	if errors.Is(err, context.Canceled) {
		return http.StatusServiceUnavailable, errorResponse{Error: "request cancelled", Kind: "cancelled"}
	}

	return http.StatusInternalServerError, errorResponse{Error: err.Error(), Kind: "internal"}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
