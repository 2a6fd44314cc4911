package cli

import (
	"context"
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
	"github.com/ppiankov/veracity/internal/tools"
)

var (
	jsonOutput     bool
	maxTurns       int
	noCache        bool
	timeout        time.Duration
	searchProvider string
	llmProvider    string
	llmModel       string
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check <claim>",
	Short: "Fact-check a single claim",
	Long: `Check asks the configured model to fact-check one claim. The model searches
the web as many times as it needs within the turn budget, then returns a
verdict with explanation, context and references.

Example:
  veracity check "The capital of France is Paris"
  veracity check "The Great Wall is visible from space" --json
  veracity check "Water boils at 90C at sea level" --llm-provider anthropic --max-turns 4`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the result as JSON")
	addCheckFlags(checkCmd)
	checkCmd.Flags().DurationVar(&timeout, "timeout", 3*time.Minute, "overall fact-check timeout")
}

// addCheckFlags registers the flags shared by check, batch and serve
func addCheckFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&maxTurns, "max-turns", 0, "model call budget per claim (default from config)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the evidence cache")
	cmd.Flags().StringVar(&searchProvider, "search-provider", "", "search provider (brave, tavily)")
	cmd.Flags().StringVar(&llmProvider, "llm-provider", "", "LLM provider (openai, deepseek, ollama, anthropic)")
	cmd.Flags().StringVar(&llmModel, "llm-model", "", "LLM model name")
}

// configFromFlags loads configuration and applies command-line overrides
func configFromFlags(cmd *cobra.Command) (*model.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("max-turns") {
		cfg.Analysis.MaxTurns = maxTurns
	}
	if noCache {
		cfg.Cache.Enabled = false
	}
	if flags.Changed("search-provider") {
		cfg.Search.Provider = searchProvider
		cfg.Search.APIKey = ""
	}
	if flags.Changed("llm-provider") {
		cfg.LLM.Provider = llmProvider
		cfg.LLM.APIKey = ""
		cfg.LLM.BaseURL = ""
	}
	if flags.Changed("llm-model") {
		cfg.LLM.Model = llmModel
	}
	applyProviderEnv(cfg)

	return cfg, nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := configFromFlags(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var opts []factcheck.Option
	if verbose {
		opts = progress{w: cmd.ErrOrStderr()}.options()
	}

	p, err := pipeline.NewPipeline(cfg, slog.Default(), nil, opts...)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	if verbose {
		fmt.Fprintf(os.Stderr, "Checking: %s\n", args[0])
		fmt.Fprintf(os.Stderr, "Search: %s, LLM: %s, max turns: %d, cache: %v\n\n",
			cfg.Search.Provider, cfg.LLM.Provider, cfg.Analysis.MaxTurns, cfg.Cache.Enabled)
	}

	result, err := p.Check(ctx, args[0])
	if err != nil {
		return describeError(err)
	}

	if jsonOutput {
		return pipeline.RenderJSON(cmd.OutOrStdout(), result)
	}
	return pipeline.RenderText(cmd.OutOrStdout(), result)
}

// progress prints analysis and search steps as the check runs
type progress struct {
	w io.Writer
}

func (p progress) options() []factcheck.Option {
	return []factcheck.Option{
		factcheck.WithObserver(p.transition),
		factcheck.WithTurnObserver(p.turn),
	}
}

func (p progress) transition(t factcheck.Transition) {
	if t.To == factcheck.StateAwaitingModel {
		fmt.Fprintf(p.w, "Analyzing (model call %d)...\n", t.Turn+1)
	}
}

func (p progress) turn(t factcheck.Turn) {
	for _, call := range t.ToolCalls {
		if call.Name != tools.WebSearch {
			fmt.Fprintf(p.w, "  Unknown tool: %s\n", call.Name)
			continue
		}
		args, err := tools.ParseSearchArgs(call.Arguments)
		if err != nil {
			fmt.Fprintf(p.w, "  Search call rejected: %v\n", err)
			continue
		}
		fmt.Fprintf(p.w, "  Searching: %q\n", args.Query)
	}
}

// describeError adds a hint for the failures users can act on
func describeError(err error) error {
	switch {
	case errors.Is(err, factcheck.ErrTurnBudgetExceeded):
		return fmt.Errorf("%w (try --max-turns)", err)
	case errors.Is(err, factcheck.ErrModelUnavailable):
		return fmt.Errorf("%w (check the LLM provider, API key and base URL)", err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("fact-check timed out (try --timeout): %w", err)
	}
	return err
}
