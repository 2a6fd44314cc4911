package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ppiankov/veracity/internal/model"
)

// Report is the JSON rendering of a result, with durations in milliseconds
type Report struct {
	ID          string            `json:"id"`
	Claim       string            `json:"claim"`
	Verdict     model.Verdict     `json:"verdict"`
	Explanation string            `json:"explanation"`
	Context     string            `json:"context"`
	References  []model.Reference `json:"references"`
	Timing      ReportTiming      `json:"timing"`
	Turns       int               `json:"turns"`
	Model       string            `json:"model,omitempty"`
	CheckedAt   time.Time         `json:"checked_at"`
}

// ReportTiming is Timing in milliseconds
type ReportTiming struct {
	SearchMS   int64 `json:"search_ms"`
	AnalysisMS int64 `json:"analysis_ms"`
	TotalMS    int64 `json:"total_ms"`
}

// NewReport converts a result for JSON output
func NewReport(r *model.FactCheckResult) Report {
	refs := r.References
	if refs == nil {
		refs = []model.Reference{}
	}
	return Report{
		ID:          r.ID,
		Claim:       string(r.Claim),
		Verdict:     r.Verdict,
		Explanation: r.Explanation,
		Context:     r.Context,
		References:  refs,
		Timing: ReportTiming{
			SearchMS:   r.Timing.Search.Milliseconds(),
			AnalysisMS: r.Timing.Analysis.Milliseconds(),
			TotalMS:    r.Timing.Total.Milliseconds(),
		},
		Turns:     r.Turns,
		Model:     r.Model,
		CheckedAt: r.CheckedAt.UTC(),
	}
}

// RenderJSON writes the result as indented JSON
func RenderJSON(w io.Writer, r *model.FactCheckResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(NewReport(r)); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// RenderText writes a human-readable summary
func RenderText(w io.Writer, r *model.FactCheckResult) error {
	var b strings.Builder

	fmt.Fprintf(&b, "Claim:   %s\n", r.Claim)
	fmt.Fprintf(&b, "Verdict: %s\n\n", r.Verdict.Label())

	b.WriteString(wrap(r.Explanation, 78))
	b.WriteString("\n")
	if r.Context != "" {
		b.WriteString("\nContext:\n")
		b.WriteString(wrap(r.Context, 78))
		b.WriteString("\n")
	}

	if len(r.References) > 0 {
		b.WriteString("\nReferences:\n")
		for i, ref := range r.References {
			fmt.Fprintf(&b, "  [%d] %s\n      %s\n", i+1, ref.Title, ref.URL)
		}
	}

	fmt.Fprintf(&b, "\n%d turns, search %s, analysis %s, total %s",
		r.Turns,
		r.Timing.Search.Round(time.Millisecond),
		r.Timing.Analysis.Round(time.Millisecond),
		r.Timing.Total.Round(time.Millisecond))
	if r.Model != "" {
		fmt.Fprintf(&b, " (%s)", r.Model)
	}
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	return err
}

// wrap breaks text into lines of at most width runes on word boundaries
func wrap(text string, width int) string {
	var b strings.Builder
	for i, para := range strings.Split(strings.TrimSpace(text), "\n") {
		if i > 0 {
			b.WriteString("\n")
		}
		line := 0
		for _, word := range strings.Fields(para) {
			n := len([]rune(word))
			if line > 0 && line+1+n > width {
				b.WriteString("\n")
				line = 0
			}
			if line > 0 {
				b.WriteString(" ")
				line++
			}
			b.WriteString(word)
			line += n
		}
	}
	return b.String()
}
