package outreach

import (
	"fmt"
	"strings"
)

const initialSystemPrompt = `You are an expert at writing personalized cold outreach emails for enterprise AI sales.

Rules:
- Reference something SPECIFIC about their company or recent activity
- Identify a likely pain point for their role/industry
- Soft CTA: offer value first (assessment, insights, resource)
- Tone: Peer-to-peer consultant, NOT salesperson
- Length: 70-100 words MAX
- No buzzwords or hype
- Sound human and thoughtful

Email structure:
1) Specific observation about them/company
2-3) Relevant challenge/opportunity
4) Brief credibility (case study)
5) Soft ask with value offer

Subject lines:
- Insight-based: "[Insight] about [their company]'s AI strategy"
- Question-based: "Quick question about [specific challenge]"
- Value-based: "[Resource] for [their role] at [company]"

Return JSON only: { "email_body": string, "subject_lines": string[], "personalization_score": number, "confidence_score": number, "reasoning": string }`

func followupSystemPrompt(p Profile, fc FollowupContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate follow-up email #%d for B2B prospect.\n\n", fc.Number)
	fmt.Fprintf(&b, "Original email sent %d days ago.\n", fc.DaysSince)
	fmt.Fprintf(&b, "Prospect: %s, %s at %s\n", p.Name, p.Title, p.Company)
	fmt.Fprintf(&b, "Industry: %s\n", p.Industry)
	fmt.Fprintf(&b, "Original subject: %s\n\n", truncate(fc.PreviousSubject, 120))
	fmt.Fprintf(&b, "Strategy for this follow-up: %s.\n", Strategy(fc.Number))
	b.WriteString("Tone: Helpful consultant, not pushy salesperson.\n")
	b.WriteString("Length: 60-80 words.\n\n")
	b.WriteString("DO NOT repeat previous email content.\n")
	b.WriteString("Add NEW value each time.\n\n")
	b.WriteString(`Return JSON only: { "subject": string, "body": string }`)
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
