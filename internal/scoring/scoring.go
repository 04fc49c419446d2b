// Package scoring rates how well a prospect fits, on a 0-100 scale.
package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/unclebandit/leadhunter-backend/internal/llm"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Profile is the prospect data sent for scoring.
type Profile struct {
	Name           string `json:"name"`
	Title          string `json:"title,omitempty"`
	Company        string `json:"company"`
	CompanySize    string `json:"company_size,omitempty"`
	Industry       string `json:"industry,omitempty"`
	Location       string `json:"location,omitempty"`
	RecentActivity string `json:"recent_activity,omitempty"`
	PainPoints     string `json:"pain_points,omitempty"`
	TechStack      string `json:"tech_stack,omitempty"`
	Source         string `json:"source,omitempty"`
}

type Result struct {
	Score     int      `json:"score"`
	Reasoning string   `json:"reasoning"`
	Priority  Priority `json:"priority"`
	// Fallback reports that the heuristic produced the score.
	Fallback bool `json:"fallback"`
}

// Client is the ScoringClient contract.
type Client interface {
	Score(ctx context.Context, p Profile) (Result, error)
}

const systemPrompt = "You are an AI consultant. Analyze this prospect and score AI readiness 0-100. " +
	"Consider company profile, title seniority, industry fit, and recent activity/signals. " +
	"Return JSON: { ai_score: number, reasoning: string }."

// LLMScorer asks a completion model for a score and falls back to the keyword
// heuristic whenever the model fails or answers with something unusable. It
// never returns an error.
type LLMScorer struct {
	llm llm.Completer
	log *zap.Logger
}

// NewLLMScorer accepts a nil completer, in which case every score is heuristic.
func NewLLMScorer(c llm.Completer, log *zap.Logger) *LLMScorer {
	return &LLMScorer{llm: c, log: log}
}

type modelScore struct {
	AIScore   *float64 `json:"ai_score"`
	Reasoning string   `json:"reasoning"`
}

func (s *LLMScorer) Score(ctx context.Context, p Profile) (Result, error) {
	if s.llm == nil {
		return fallback(p, "Heuristic score based on provided signals."), nil
	}
	user, err := json.Marshal(p)
	if err != nil {
		return Result{}, err
	}
	text, err := s.llm.Complete(ctx, llm.Prompt{System: systemPrompt, User: string(user), Temperature: 0, MaxTokens: 512})
	if err != nil {
		s.log.Warn("scoring model failed, using heuristic", zap.String("company", p.Company), zap.Error(err))
		return fallback(p, "Model error; used heuristic scoring."), nil
	}
	score, reasoning, err := parse(text)
	if err != nil {
		s.log.Debug("scoring model returned no usable score", zap.Error(err))
		return fallback(p, "Heuristic score based on provided signals."), nil
	}
	return Result{Score: score, Reasoning: reasoning, Priority: PriorityFor(score)}, nil
}

func parse(text string) (int, string, error) {
	raw, err := llm.ExtractJSON(text)
	if err != nil {
		return 0, "", err
	}
	var m modelScore
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return 0, "", fmt.Errorf("decode score: %w", err)
	}
	if m.AIScore == nil || math.IsNaN(*m.AIScore) || math.IsInf(*m.AIScore, 0) {
		return 0, "", fmt.Errorf("missing ai_score")
	}
	return clamp(int(math.Round(*m.AIScore))), strings.TrimSpace(m.Reasoning), nil
}

func fallback(p Profile, reasoning string) Result {
	score := Heuristic(p)
	return Result{Score: score, Reasoning: reasoning, Priority: PriorityFor(score), Fallback: true}
}

var (
	seniorTerms     = regexp.MustCompile(`(?i)(cto|chief|cso|cpo|cfo|ceo|vp|director|head)`)
	enterpriseTerms = regexp.MustCompile(`(?i)(1000\+|enterprise|global|fortune|scale|compliance|security|budget|roi)`)
	activityTerms   = regexp.MustCompile(`(?i)(launched|pilot|poc|production|ml|ai|llm|agent|vector|embedding|architecture|kubernetes)`)
	urgencyTerms    = regexp.MustCompile(`(?i)(timeline|deadline|soon|asap|q[1-4]|this quarter|next quarter)`)
)

// Heuristic is the deterministic keyword score: seniority 25/5, enterprise
// 30/10, activity 25/5, urgency 20/5.
func Heuristic(p Profile) int {
	var parts []string
	for _, s := range []string{p.Title, p.Company, p.Industry, p.RecentActivity, p.PainPoints, p.TechStack} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	text := strings.Join(parts, "\n")

	score := pick(seniorTerms, text, 25, 5) +
		pick(enterpriseTerms, text, 30, 10) +
		pick(activityTerms, text, 25, 5) +
		pick(urgencyTerms, text, 20, 5)
	return clamp(score)
}

func pick(re *regexp.Regexp, text string, hit, miss int) int {
	if re.MatchString(text) {
		return hit
	}
	return miss
}

// PriorityFor buckets a score: 80+ high, 50+ medium.
func PriorityFor(score int) Priority {
	switch {
	case score >= 80:
		return PriorityHigh
	case score >= 50:
		return PriorityMedium
	}
	return PriorityLow
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

var _ Client = (*LLMScorer)(nil)
