// Package outreach drafts initial and follow-up emails with a completion model.
package outreach

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/unclebandit/leadhunter-backend/internal/llm"
)

// ErrInvalidOutput is returned when the model output cannot be used as a draft.
var ErrInvalidOutput = errors.New("model returned invalid JSON")

// Profile is the prospect context given to the writer.
type Profile struct {
	Name           string `json:"name"`
	Title          string `json:"title,omitempty"`
	Company        string `json:"company"`
	Industry       string `json:"industry,omitempty"`
	RecentActivity string `json:"recent_activity"`
	PainPoints     string `json:"pain_points"`
	Source         string `json:"source,omitempty"`
}

// Draft is a generated subject/body pair with the model's self-assessment.
type Draft struct {
	SubjectLines         []string
	Body                 string
	PersonalizationScore int
	ConfidenceScore      int
	Reasoning            string
}

// FollowupContext describes where the prospect is in the sequence.
type FollowupContext struct {
	Number          int
	DaysSince       int
	PreviousSubject string
	PreviousBody    string
}

// Writer is the OutreachWriter contract.
type Writer interface {
	Draft(ctx context.Context, p Profile) (*Draft, error)
	FollowUp(ctx context.Context, p Profile, fc FollowupContext) (*Draft, error)
}

// LLMWriter drafts with a completion model and validates the JSON it returns.
type LLMWriter struct {
	llm llm.Completer
}

func NewLLMWriter(c llm.Completer) *LLMWriter {
	return &LLMWriter{llm: c}
}

type initialOutput struct {
	EmailBody            *string  `json:"email_body"`
	SubjectLines         []string `json:"subject_lines"`
	PersonalizationScore float64  `json:"personalization_score"`
	ConfidenceScore      float64  `json:"confidence_score"`
	Reasoning            string   `json:"reasoning"`
}

func (w *LLMWriter) Draft(ctx context.Context, p Profile) (*Draft, error) {
	user, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	text, err := w.llm.Complete(ctx, llm.Prompt{System: initialSystemPrompt, User: string(user), Temperature: 0.4, MaxTokens: 600})
	if err != nil {
		return nil, fmt.Errorf("outreach generation: %w", err)
	}

	raw, err := llm.ExtractJSON(text)
	if err != nil {
		return nil, ErrInvalidOutput
	}
	var out initialOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, ErrInvalidOutput
	}
	if out.EmailBody == nil || strings.TrimSpace(*out.EmailBody) == "" || out.SubjectLines == nil {
		return nil, ErrInvalidOutput
	}

	subjects := cleanSubjects(out.SubjectLines)
	if len(subjects) == 0 {
		return nil, ErrInvalidOutput
	}
	return &Draft{
		SubjectLines:         subjects,
		Body:                 strings.TrimSpace(*out.EmailBody),
		PersonalizationScore: clamp(out.PersonalizationScore),
		ConfidenceScore:      clamp(out.ConfidenceScore),
		Reasoning:            strings.TrimSpace(out.Reasoning),
	}, nil
}

type followupOutput struct {
	Subject *string `json:"subject"`
	Body    *string `json:"body"`
}

// FollowUp drafts follow-up number fc.Number. The strategy shifts with the
// number so consecutive follow-ups add new material.
func (w *LLMWriter) FollowUp(ctx context.Context, p Profile, fc FollowupContext) (*Draft, error) {
	user, err := json.Marshal(map[string]any{
		"prospect":            p,
		"original_email_body": fc.PreviousBody,
		"followup_number":     fc.Number,
		"days_since_contact":  fc.DaysSince,
	})
	if err != nil {
		return nil, err
	}
	text, err := w.llm.Complete(ctx, llm.Prompt{System: followupSystemPrompt(p, fc), User: string(user), Temperature: 0.3, MaxTokens: 400})
	if err != nil {
		return nil, fmt.Errorf("follow-up generation: %w", err)
	}

	raw, err := llm.ExtractJSON(text)
	if err != nil {
		return nil, ErrInvalidOutput
	}
	var out followupOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, ErrInvalidOutput
	}
	if out.Body == nil || strings.TrimSpace(*out.Body) == "" {
		return nil, ErrInvalidOutput
	}

	var subjects []string
	if out.Subject != nil {
		subjects = cleanSubjects([]string{*out.Subject})
	}
	if len(subjects) == 0 {
		subjects = []string{FollowupSubject(p.Company)}
	}
	return &Draft{SubjectLines: subjects, Body: strings.TrimSpace(*out.Body)}, nil
}

// FollowupSubject is the subject used when the model does not supply one.
func FollowupSubject(company string) string {
	if strings.TrimSpace(company) == "" {
		company = "you"
	}
	return "Quick follow-up for " + company
}

// Strategy describes the angle of follow-up number n (1-indexed).
func Strategy(n int) string {
	switch n {
	case 1:
		return "Gentle bump, add one new insight"
	case 2:
		return "Share relevant case study or resource"
	}
	return "Final check-in, graceful close"
}

func cleanSubjects(in []string) []string {
	out := make([]string, 0, 3)
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
		if len(out) == 3 {
			break
		}
	}
	return out
}

func clamp(v float64) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return int(v)
}

var _ Writer = (*LLMWriter)(nil)
