package matcher

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/david/grantmatch/internal/ai"
	"github.com/david/grantmatch/internal/metrics"
	"github.com/david/grantmatch/internal/models"
)

const (
	minReasonLen     = 10
	maxGrantTerms    = 5
	excerptLen       = 120
	sentenceSearchIn = 200
)

var placeholderMarkers = []string{"[insert", "[your", "<insert", "{{"}

// ValidReason reports whether a generated reason can be shown to the user.
func ValidReason(reason string) bool {
	trimmed := strings.TrimSpace(reason)
	if utf8.RuneCountInString(trimmed) < minReasonLen {
		return false
	}
	lower := strings.ToLower(trimmed)
	for _, m := range placeholderMarkers {
		if strings.Contains(lower, m) {
			return false
		}
	}
	return true
}

func reasonPrompt(query string, g models.Grant) string {
	return fmt.Sprintf(`A founder describes their project as: %q

Grant: %s
Organization: %s
Description: %s
Tags: %s

In one or two specific sentences, explain why this grant is a good match for the project. Refer to the project and the grant directly. Do not use placeholders.`,
		query, g.Title, g.Organization, g.Description, strings.Join(g.Tags, ", "))
}

type reasonOutcome struct {
	reason string
	cause  string // empty when the generated reason was used
}

type synthesizer struct {
	gen        ai.Generator
	vocabulary []string
}

// explain produces one reason per grant, concurrently, in input order.
func (s *synthesizer) explain(ctx context.Context, q Query, grants []models.Grant) []models.MatchResult {
	outcomes := make([]reasonOutcome, len(grants))

	g, gctx := errgroup.WithContext(ctx)
	for i := range grants {
		g.Go(func() error {
			outcomes[i] = s.reasonFor(gctx, q, grants[i])
			return nil
		})
	}
	_ = g.Wait()

	results := make([]models.MatchResult, len(grants))
	for i, grant := range grants {
		if outcomes[i].cause != "" {
			metrics.RecordReasonFallback(outcomes[i].cause)
		}
		results[i] = toResult(grant, outcomes[i].reason)
	}
	return results
}

func (s *synthesizer) reasonFor(ctx context.Context, q Query, g models.Grant) reasonOutcome {
	resp, err := s.gen.GenerateCompletion(ctx, reasonPrompt(q.Raw, g), false)
	if err != nil {
		log.Printf("[matcher] reason generation failed for %q (status %d): %v", g.Title, ai.StatusCode(err), err)
		return reasonOutcome{reason: FallbackReason(g, q.Lowered, s.vocabulary), cause: "error"}
	}

	reason := strings.TrimSpace(ai.CleanResponse(resp))
	if !ValidReason(reason) {
		return reasonOutcome{reason: FallbackReason(g, q.Lowered, s.vocabulary), cause: "rejected"}
	}
	return reasonOutcome{reason: reason}
}

// FallbackReason builds a deterministic reason from the terms a grant shares
// with the query, followed by an excerpt of the grant description.
func FallbackReason(g models.Grant, loweredQuery string, vocabulary []string) string {
	text := g.SearchableText()

	var common, grantOnly []string
	for _, term := range vocabulary {
		if !strings.Contains(text, term) {
			continue
		}
		if strings.Contains(loweredQuery, term) {
			common = append(common, term)
		} else if len(grantOnly) < maxGrantTerms {
			grantOnly = append(grantOnly, term)
		}
	}

	var lead string
	switch {
	case len(common) > 0:
		lead = "Your project matches because it focuses on: " + strings.Join(common, ", ") + "."
	case len(grantOnly) > 0:
		lead = "This grant supports: " + strings.Join(grantOnly, ", ") + "."
	default:
		lead = "This grant is open to projects like yours."
	}

	if excerpt := descriptionExcerpt(g.Description); excerpt != "" {
		if withExcerpt := lead + " " + excerpt; ValidReason(withExcerpt) {
			return withExcerpt
		}
	}
	return lead
}

// descriptionExcerpt returns the first sentence of desc, or its first 120
// characters with an ellipsis when no sentence ends early enough.
func descriptionExcerpt(desc string) string {
	desc = strings.Join(strings.Fields(desc), " ")
	if desc == "" {
		return ""
	}

	if end := sentenceEnd(desc, 0); end > 0 && utf8.RuneCountInString(desc[:end]) <= sentenceSearchIn {
		return desc[:end]
	}

	runes := []rune(desc)
	if len(runes) <= excerptLen {
		return desc
	}
	return strings.TrimSpace(string(runes[:excerptLen])) + "..."
}

// sentenceEnd returns the byte offset just past the first sentence terminator
// at or after from that is followed by whitespace or the end of s, or -1.
func sentenceEnd(s string, from int) int {
	for i := from; i < len(s); i++ {
		switch s[i] {
		case '.', '!', '?':
			if i+1 == len(s) || s[i+1] == ' ' || s[i+1] == '\n' || s[i+1] == '\t' {
				return i + 1
			}
		}
	}
	return -1
}

func toResult(g models.Grant, reason string) models.MatchResult {
	res := models.MatchResult{
		Title:        g.Title,
		Organization: g.Organization,
		Reason:       reason,
		ID:           g.ID,
	}
	if g.URL != "" {
		url := g.URL
		res.URL = &url
	}
	return res
}
