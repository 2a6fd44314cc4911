package factcheck

import (
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/veracity/internal/model"
	"github.com/ppiankov/veracity/internal/tools"
)

func systemPrompt(now time.Time, maxTurns int, strict bool) string {
	verdicts := make([]string, len(model.Verdicts))
	for i, v := range model.Verdicts {
		verdicts[i] = string(v)
	}

	var b strings.Builder
	fmt.Fprintf(&b, `You are an expert fact-checker. The current date is %s.

Judge the user's claim using evidence from the %s tool. Search before answering; refine queries if the first results are thin. You have at most %d model turns including the final answer.

When you are done, reply with a single JSON object and no tool calls:

{
  "verdict": "%s",
  "explanation": "What the evidence shows, with inline citation markers like [1], [2]",
  "context": "Nuance, caveats or background the reader needs",
  "references": [
    {"title": "Source title", "url": "https://..."}
  ]
}

Rules:
- verdict must be exactly one of: %s.
- explanation and context are required and must not be empty.
- references is required; use an empty array only if no search returned usable evidence.
`, now.Format("2006-01-02"), tools.WebSearch, maxTurns, strings.Join(verdicts, "|"), strings.Join(verdicts, ", "))

	if strict {
		b.WriteString("- Cite only URLs that appeared in your search results. Never invent or alter a URL.\n")
	} else {
		b.WriteString("- Prefer URLs that appeared in your search results. Never invent a URL.\n")
	}
	b.WriteString("- If a search fails, say so in context and judge with what you have; lean to MIXED when evidence is incomplete.\n")

	return b.String()
}

func userPrompt(claim model.Claim) string {
	return fmt.Sprintf("Claim: %s", claim)
}

func correctivePrompt(err error) string {
	return fmt.Sprintf("Your answer was rejected: %v. Reply again with only the JSON object described in the instructions.", err)
}
