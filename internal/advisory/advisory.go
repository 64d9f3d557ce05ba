// Package advisory enriches deterministic budget advice with text from an
// external language model. Every call is optional: gating, timeouts and
// failures all fall back to the deterministic answer.
package advisory

import (
	"context"
	"errors"
	"strings"
)

// Errors classifying external advisory failures.
var (
	ErrRateLimited       = errors.New("advisory: rate limited")
	ErrUnavailable       = errors.New("advisory: service unavailable")
	ErrMalformedResponse = errors.New("advisory: malformed response")
)

// Request is one prompt sent to an Advisor.
type Request struct {
	Prompt string
	// JSON asks the model for a JSON object instead of free text.
	JSON bool
}

// Advisor generates text for a prompt.
type Advisor interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// AdvisorFunc adapts a function to Advisor.
type AdvisorFunc func(ctx context.Context, req Request) (string, error)

func (f AdvisorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// cleanJSON strips markdown code fences and any prose around the outermost
// JSON object.
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
