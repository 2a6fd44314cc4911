package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/veracity/internal/metrics"
	"github.com/ppiankov/veracity/internal/pipeline"
	"github.com/ppiankov/veracity/internal/server"
)

var serveAddr string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the fact-check HTTP API",
	Long: `Serve exposes fact-checking over HTTP:

  POST /v1/factcheck   {"claim": "..."}
  GET  /health
  GET  /metrics        Prometheus metrics

Invalid claims return 422, orchestration failures 502 with the error kind,
and requests exceeding server.request_timeout return 504.

Example:
  veracity serve
  veracity serve --addr 127.0.0.1:9090 --llm-provider ollama`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	addCheckFlags(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := configFromFlags(cmd)
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.Default()
	m := metrics.New()

	p, err := pipeline.NewPipeline(cfg, logger, m)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	if !p.ModelAvailable(ctx) {
		logger.Warn("LLM provider did not answer the availability check; serving anyway", "provider", cfg.LLM.Provider)
	}

	srv := server.New(p,
		server.WithMetrics(m),
		server.WithLogger(logger),
		server.WithRequestTimeout(cfg.Server.RequestTimeout),
	)
	return srv.Run(ctx, cfg.Server.Addr)
}
