package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/veracity/internal/factcheck"
	"github.com/ppiankov/veracity/internal/model"
	"github.com/ppiankov/veracity/internal/pipeline"
	"github.com/ppiankov/veracity/internal/worker"
)

var (
	concurrency  int
	outFile      string
	batchTimeout time.Duration
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Fact-check claims from a file in parallel",
	Long: `Batch fact-checks many claims concurrently:
- Read claims from the input file (one per line)
- Blank lines, lines starting with # and duplicates are skipped
- Claims are checked in parallel with a bounded worker pool
- Results are written as JSON lines in input order

Example:
  veracity batch claims.txt
  veracity batch claims.txt --concurrency 8 --out results.jsonl
  veracity batch claims.txt --timeout 30m --llm-provider deepseek`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", 0, "number of concurrent workers (default from config)")
	batchCmd.Flags().StringVar(&outFile, "out", "", "output JSON lines path (default: stdout)")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 30*time.Minute, "total timeout for batch processing")
	addCheckFlags(batchCmd)
}

// batchLine is one line of batch output
type batchLine struct {
	Position int              `json:"position"`
	Claim    string           `json:"claim"`
	Result   *pipeline.Report `json:"result,omitempty"`
	Error    string           `json:"error,omitempty"`
	Kind     string           `json:"kind,omitempty"`
}

func runBatch(cmd *cobra.Command, args []string) (err error) {
	file := args[0]

	cfg, err := configFromFlags(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("concurrency") {
		cfg.Concurrency.Workers = concurrency
	}

	claims, err := worker.ReadClaimsFromFile(file)
	if err != nil {
		return err
	}
	if len(claims) == 0 {
		return fmt.Errorf("no claims found in %s", file)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, batchTimeout)
	defer cancel()

	p, err := pipeline.NewPipeline(cfg, slog.Default(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	out := cmd.OutOrStdout()
	if outFile != "" {
		f, err := os.Create(outFile)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer func() {
			if closeErr := f.Close(); closeErr != nil && err == nil {
				err = fmt.Errorf("close output file: %w", closeErr)
			}
		}()
		out = f
	}

	fmt.Fprintf(os.Stderr, "Checking %d claims with %d workers\n", len(claims), cfg.Concurrency.Workers)

	start := time.Now()
	outcomes := p.Batch(ctx, claims, func(o *worker.CheckOutcome) {
		if o.Error != nil {
			fmt.Fprintf(os.Stderr, "✗ [%d] %s: %v\n", o.Position+1, o.Claim, o.Error)
			return
		}
		fmt.Fprintf(os.Stderr, "✓ [%d] %s\n", o.Position+1, o.Result.Summary())
	})

	failures, err := writeOutcomes(out, outcomes)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "\nTotal: %d, succeeded: %d, failed: %d, elapsed: %s\n",
		len(outcomes), len(outcomes)-failures, failures, time.Since(start).Round(time.Millisecond))

	if failures > 0 {
		return fmt.Errorf("%d of %d claims failed", failures, len(outcomes))
	}
	return nil
}

// writeOutcomes writes one JSON line per outcome and returns the failure count
func writeOutcomes(w io.Writer, outcomes []*worker.CheckOutcome) (int, error) {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)

	failures := 0
	for _, o := range outcomes {
		line := batchLine{Position: o.Position, Claim: o.Claim}
		if o.Error != nil {
			failures++
			line.Error = o.Error.Error()
			line.Kind = errorKind(o.Error)
		} else {
			report := pipeline.NewReport(o.Result)
			line.Result = &report
		}
		if err := enc.Encode(line); err != nil {
			return failures, fmt.Errorf("write result: %w", err)
		}
	}

	if err := bw.Flush(); err != nil {
		return failures, fmt.Errorf("write results: %w", err)
	}
	return failures, nil
}

func errorKind(err error) string {
	var oerr *factcheck.OrchestrationError
	var verr *model.ValidationError
	switch {
	case errors.As(err, &oerr):
		return oerr.Kind.String()
	case errors.As(err, &verr):
		return "invalid_claim"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "internal"
	}
}
