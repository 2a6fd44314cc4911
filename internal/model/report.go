package model

import (
	"fmt"
	"strings"
	"time"
)

// Verdict classifies how accurate a claim is according to the retrieved evidence
type Verdict string

const (
	VerdictTrue        Verdict = "TRUE"
	VerdictMostlyTrue  Verdict = "MOSTLY_TRUE"
	VerdictMixed       Verdict = "MIXED"
	VerdictMostlyFalse Verdict = "MOSTLY_FALSE"
	VerdictFalse       Verdict = "FALSE"
)

// Verdicts lists every verdict from most to least accurate
var Verdicts = []Verdict{VerdictTrue, VerdictMostlyTrue, VerdictMixed, VerdictMostlyFalse, VerdictFalse}

// Severity orders verdicts for display: 0 for TRUE up to 4 for FALSE, -1 if unknown
func (v Verdict) Severity() int {
	for i, known := range Verdicts {
		if v == known {
			return i
		}
	}
	return -1
}

// Valid reports whether v is one of the five canonical verdicts
func (v Verdict) Valid() bool {
	return v.Severity() >= 0
}

// Label renders the verdict for humans, e.g. "Mostly True"
func (v Verdict) Label() string {
	words := strings.Split(strings.ToLower(string(v)), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// Timing carries observability metadata for one fact-check
type Timing struct {
	Search   time.Duration `json:"search"`   // Wall time spent executing searches
	Analysis time.Duration `json:"analysis"` // Total minus search
	Total    time.Duration `json:"total"`
}

// FactCheckResult is the terminal artifact of one fact-check invocation
type FactCheckResult struct {
	ID          string      `json:"id"`
	Claim       Claim       `json:"claim"`
	Verdict     Verdict     `json:"verdict"`
	Explanation string      `json:"explanation"`
	Context     string      `json:"context"`
	References  []Reference `json:"references"`
	Timing      Timing      `json:"timing"`
	Turns       int         `json:"turns"`           // Model calls made
	Model       string      `json:"model,omitempty"` // Model that produced the verdict
	CheckedAt   time.Time   `json:"checked_at"`
}

// Copy returns a deep copy so the result can be handed off without shared state
func (r FactCheckResult) Copy() FactCheckResult {
	refs := make([]Reference, len(r.References))
	copy(refs, r.References)
	r.References = refs
	return r
}

// Summary returns a one-line description of the result
func (r FactCheckResult) Summary() string {
	return fmt.Sprintf("%s: %q (%d references, %d turns, %s)",
		r.Verdict, r.Claim, len(r.References), r.Turns, r.Timing.Total.Round(time.Millisecond))
}
