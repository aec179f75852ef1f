package matcher

import (
	"fmt"
	"strings"

	"github.com/david/grantmatch/internal/models"
)

const (
	NoMatchesMessage = "No relevant grants found."
	matchesHeader    = "Top matching grants with reasons:\n"
)

// Format renders the final response. Results with unusable reasons are
// dropped; if none remain the fixed no-match message is returned.
func Format(results []models.MatchResult) models.MatchResponse {
	kept := make([]models.MatchResult, 0, len(results))
	for _, r := range results {
		if ValidReason(r.Reason) {
			kept = append(kept, r)
		}
	}

	if len(kept) == 0 {
		return models.MatchResponse{Message: NoMatchesMessage, Grants: []models.MatchResult{}}
	}

	items := make([]string, len(kept))
	for i, r := range kept {
		items[i] = fmt.Sprintf("- %s (%s): %s", r.Title, r.Organization, firstSentences(r.Reason, 2))
	}

	return models.MatchResponse{
		Message: matchesHeader + strings.Join(items, "\n\n"),
		Grants:  kept,
	}
}

// firstSentences returns at most n leading sentences of s.
func firstSentences(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	end := 0
	for i := 0; i < n; i++ {
		next := sentenceEnd(s, end)
		if next < 0 {
			return s
		}
		end = next
	}
	return s[:end]
}
