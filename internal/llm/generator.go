// Package llm holds the text-generation capability shared by the
// translator and the narrator.
package llm

import (
	"context"
	"errors"
	"strings"
)

// ErrEmptyResponse is returned when a backend answers without any text.
var ErrEmptyResponse = errors.New("model returned empty response")

type Prompt struct {
	System      string
	User        string
	Temperature float64
}

// Generator produces text for a prompt. Implementations are safe for
// concurrent use.
type Generator interface {
	Generate(ctx context.Context, prompt Prompt) (string, error)
	Provider() string
	Model() string
}

func truncate(value string, maxLen int) string {
	value = strings.TrimSpace(value)
	if len(value) <= maxLen {
		return value
	}
	return value[:maxLen] + "..."
}
