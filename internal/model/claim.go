package model

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxClaimLength is the longest claim (in characters) accepted for checking
const MaxClaimLength = 2000

// Claim is the user-supplied statement to be fact-checked
type Claim string

// ValidationError reports input rejected before any external call is made
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewClaim trims and validates raw input. Overlong claims are rejected, never truncated.
func NewClaim(raw string) (Claim, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", &ValidationError{Field: "claim", Reason: "must not be empty"}
	}
	if n := utf8.RuneCountInString(text); n > MaxClaimLength {
		return "", &ValidationError{
			Field:  "claim",
			Reason: fmt.Sprintf("%d characters exceeds the limit of %d", n, MaxClaimLength),
		}
	}
	return Claim(text), nil
}

func (c Claim) String() string {
	return string(c)
}
