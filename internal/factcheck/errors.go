package factcheck

import (
	"errors"
	"fmt"
)

// Kind classifies why a fact-check ended without a verdict
type Kind int

const (
	KindTurnBudgetExceeded Kind = iota + 1
	KindModelUnavailable
	KindMalformedAnswer
)

func (k Kind) String() string {
	switch k {
	case KindTurnBudgetExceeded:
		return "turn_budget_exceeded"
	case KindModelUnavailable:
		return "model_unavailable"
	case KindMalformedAnswer:
		return "malformed_answer"
	default:
		return "unknown"
	}
}

var (
	ErrTurnBudgetExceeded = errors.New("turn budget exceeded")
	ErrModelUnavailable   = errors.New("model unavailable")
	ErrMalformedAnswer    = errors.New("malformed answer")
)

// OrchestrationError is a terminal failure of one fact-check
type OrchestrationError struct {
	Kind  Kind
	Turns int // Model calls made before failing
	Err   error
}

func (e *OrchestrationError) Error() string {
	msg := fmt.Sprintf("fact-check failed: %s after %d turns", e.Kind, e.Turns)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *OrchestrationError) Unwrap() error {
	return e.Err
}

// Is matches the package sentinels
func (e *OrchestrationError) Is(target error) bool {
	switch target {
	case ErrTurnBudgetExceeded:
		return e.Kind == KindTurnBudgetExceeded
	case ErrModelUnavailable:
		return e.Kind == KindModelUnavailable
	case ErrMalformedAnswer:
		return e.Kind == KindMalformedAnswer
	}
	return false
}
