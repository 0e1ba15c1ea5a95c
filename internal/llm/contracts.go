package llm

import (
	"context"
	"fmt"
)

// Completer is a language-model provider: one prompt in, raw text out.
type Completer interface {
	Name() string
	Complete(ctx context.Context, prompt string, temperature float32) (string, error)
}

// MalformedPolicy decides what happens when the model's output violates the record schema.
type MalformedPolicy string

const (
	// PolicyNullFill repairs the output into a valid record and flags it partial.
	PolicyNullFill MalformedPolicy = "null-fill"
	// PolicyReject fails the extraction with a MalformedResponse error.
	PolicyReject MalformedPolicy = "reject"
)

func ParsePolicy(s string) (MalformedPolicy, error) {
	switch MalformedPolicy(s) {
	case "", PolicyNullFill:
		return PolicyNullFill, nil
	case PolicyReject:
		return PolicyReject, nil
	default:
		return "", fmt.Errorf("unknown malformed policy %q", s)
	}
}

// Result of one field extraction.
type Result struct {
	Record   Record
	Partial  bool     // output needed repair
	Warnings []string // one entry per repair
	Raw      string   // model output as received
	Attempts int
}

// StatusError is a non-2xx provider response.
type StatusError struct {
	Provider string
	Status   int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s status %d: %s", e.Provider, e.Status, e.Body)
}

// Retryable reports whether another attempt may succeed.
func (e *StatusError) Retryable() bool {
	return e.Status == 429 || e.Status >= 500
}
