package matcher

import (
	"strings"

	"github.com/david/grantmatch/internal/models"
)

// defaultRuleName labels queries matched on extracted keywords.
const defaultRuleName = "keywords"

// Filter keeps the grants relevant to q. If an override fires, a grant is kept
// when its searchable text contains any of the override's terms; otherwise when
// it contains any extracted keyword. Input order is preserved. The second return
// value names the rule that was applied.
func Filter(grants []models.Grant, q Query, keywords []string, rules *Rules) ([]models.Grant, string) {
	terms := keywords
	ruleName := defaultRuleName
	if o := rules.Select(q); o != nil {
		terms = o.Terms
		ruleName = o.Name
	}

	if len(terms) == 0 {
		return nil, ruleName
	}

	var out []models.Grant
	for _, g := range grants {
		text := g.SearchableText()
		if containsAny(text, terms) {
			out = append(out, g)
		}
	}
	return out, ruleName
}

func containsAny(text string, terms []string) bool {
	for _, t := range terms {
		if t != "" && strings.Contains(text, t) {
			return true
		}
	}
	return false
}
