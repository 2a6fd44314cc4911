package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ppiankov/veracity/internal/model"
)

// Checker fact-checks a single claim
type Checker interface {
	Check(ctx context.Context, claim string) (*model.FactCheckResult, error)
}

// CheckJob represents one claim to check
type CheckJob struct {
	Position int
	Claim    string
	Checker  Checker
	Done     func(*CheckOutcome)
}

// Execute runs the check
func (j *CheckJob) Execute(ctx context.Context) Result {
	result, err := j.Checker.Check(ctx, j.Claim)
	outcome := &CheckOutcome{
		Position: j.Position,
		Claim:    j.Claim,
		Result:   result,
		Error:    err,
	}
	if j.Done != nil {
		j.Done(outcome)
	}
	return outcome
}

// CheckOutcome is the result of one claim, successful or not
type CheckOutcome struct {
	Position int
	Claim    string
	Result   *model.FactCheckResult
	Error    error
}

// GetError returns the check error
func (o *CheckOutcome) GetError() error {
	return o.Error
}

// Index returns the claim's position in the input
func (o *CheckOutcome) Index() int {
	return o.Position
}

// BatchProcessor checks many claims concurrently
type BatchProcessor struct {
	checker     Checker
	concurrency int
	onDone      func(*CheckOutcome)
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(checker Checker, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		checker:     checker,
		concurrency: concurrency,
	}
}

// OnComplete registers a callback invoked as each claim finishes, in completion order.
// The callback runs on worker goroutines and must be safe for concurrent use.
func (b *BatchProcessor) OnComplete(fn func(*CheckOutcome)) {
	b.onDone = fn
}

// ProcessClaims checks claims concurrently and returns outcomes in input order.
// Claims never submitted because ctx ended are reported with ctx's error.
func (b *BatchProcessor) ProcessClaims(ctx context.Context, claims []string) []*CheckOutcome {
	outcomes := make([]*CheckOutcome, len(claims))
	if len(claims) == 0 {
		return outcomes
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()

	for i, claim := range claims {
		job := &CheckJob{
			Position: i,
			Claim:    claim,
			Checker:  b.checker,
			Done:     b.onDone,
		}
		if !pool.Submit(job) {
			break
		}
	}

	for _, result := range pool.Wait() {
		outcome := result.(*CheckOutcome)
		outcomes[outcome.Position] = outcome
	}

	for i, claim := range claims {
		if outcomes[i] == nil {
			err := ctx.Err()
			if err == nil {
				err = context.Canceled
			}
			outcomes[i] = &CheckOutcome{Position: i, Claim: claim, Error: err}
		}
	}

	return outcomes
}

// ReadClaimsFromFile reads claims, one per line. Blank lines, # comments
// and repeated claims are skipped.
func ReadClaimsFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var claims []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !seen[line] {
			seen[line] = true
			claims = append(claims, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return claims, nil
}
