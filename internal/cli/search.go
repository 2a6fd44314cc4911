package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/veracity/internal/pipeline"
	"github.com/ppiankov/veracity/internal/tools"
)

var searchCount int

// searchCmd runs the web_search tool directly, without a model
var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run a single web search through the evidence cache",
	Long: `Search runs one query exactly as the model's web_search tool would:
through the evidence cache, the rate limiter and the retry policy.

Example:
  veracity search "capital of France" --count 3`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := configFromFlags(cmd)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		p, err := pipeline.NewSearchPipeline(cfg, slog.Default(), nil)
		if err != nil {
			return err
		}
		defer func() { _ = p.Close() }()

		results, err := p.Search(ctx, args[0], searchCount)
		if err != nil {
			return err
		}

		if jsonOutput {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		}
		for i, r := range results {
			fmt.Fprintf(cmd.OutOrStdout(), "[%d] %s\n    %s\n    %s\n", i+1, r.Title, r.URL, r.Snippet)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().IntVar(&searchCount, "count", tools.DefaultSearchCount, "number of results")
	searchCmd.Flags().BoolVar(&jsonOutput, "json", false, "print results as JSON")
	addCheckFlags(searchCmd)
}
