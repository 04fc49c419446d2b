// Package llm wraps the completion providers used for scoring and drafting.
package llm

import (
	"context"
	"errors"
	"regexp"
)

// ErrNoJSON is returned when a completion carries no JSON object.
var ErrNoJSON = errors.New("no JSON object in completion")

type Prompt struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// Completer returns the text of a single-turn completion.
type Completer interface {
	Complete(ctx context.Context, p Prompt) (string, error)
}

var jsonObject = regexp.MustCompile(`(?s)\{.*\}`)

// ExtractJSON returns the outermost {...} span of a completion, which models
// often wrap in prose or code fences.
func ExtractJSON(text string) (string, error) {
	m := jsonObject.FindString(text)
	if m == "" {
		return "", ErrNoJSON
	}
	return m, nil
}
