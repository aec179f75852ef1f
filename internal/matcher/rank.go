package matcher

import (
	"sort"
	"strings"

	"github.com/david/grantmatch/internal/models"
)

// Score counts the signals present in both the grant's searchable text and the
// lowered query.
func Score(g models.Grant, loweredQuery string, signals []string) int {
	text := g.SearchableText()
	score := 0
	for _, s := range signals {
		if strings.Contains(text, s) && strings.Contains(loweredQuery, s) {
			score++
		}
	}
	return score
}

// Rank orders grants by descending score. Ties keep their filter order.
func Rank(grants []models.Grant, loweredQuery string, signals []string) []models.Grant {
	type scored struct {
		grant models.Grant
		score int
	}

	items := make([]scored, len(grants))
	for i, g := range grants {
		items[i] = scored{grant: g, score: Score(g, loweredQuery, signals)}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].score > items[j].score
	})

	out := make([]models.Grant, len(items))
	for i, it := range items {
		out[i] = it.grant
	}
	return out
}
