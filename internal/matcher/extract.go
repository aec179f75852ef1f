package matcher

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/david/grantmatch/internal/ai"
	"github.com/david/grantmatch/internal/metrics"
)

// maxKeywordLen drops entries that are really sentences.
const maxKeywordLen = 64

func keywordPrompt(query string) string {
	return fmt.Sprintf("Extract a comma-separated list of keywords (no sentences, just words) from this user query for grant matching: %s", query)
}

// ExtractKeywords asks the generator for keywords describing the query. It never
// fails: any error or unusable reply yields an empty list.
func ExtractKeywords(ctx context.Context, gen ai.Generator, query string) []string {
	resp, err := gen.GenerateCompletion(ctx, keywordPrompt(query), false)
	if err != nil {
		log.Printf("[matcher] keyword extraction failed (status %d): %v", ai.StatusCode(err), err)
		metrics.RecordKeywordFailure()
		return nil
	}

	keywords := ParseKeywords(resp)
	if len(keywords) == 0 {
		log.Printf("[matcher] keyword extraction returned no usable keywords")
		metrics.RecordKeywordFailure()
	}
	return keywords
}

// ParseKeywords splits a model reply on commas and newlines. Entries are trimmed
// of quotes, bullets and trailing punctuation and lowercased; empty entries are
// dropped. Order and duplicates are preserved.
func ParseKeywords(resp string) []string {
	cleaned := ai.CleanResponse(resp)
	if cleaned == "" {
		return nil
	}

	parts := strings.FieldsFunc(cleaned, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r'
	})

	var out []string
	for _, p := range parts {
		kw := strings.TrimSpace(p)
		kw = stripListMarker(kw)
		kw = strings.Trim(kw, "\"'`“”‘’ \t")
		kw = strings.TrimRight(kw, ".;:!? ")
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" || len(kw) > maxKeywordLen {
			continue
		}
		out = append(out, kw)
	}
	return out
}

// stripListMarker removes a leading bullet or "1." / "2)" numbering.
func stripListMarker(s string) string {
	s = strings.TrimLeft(s, "-*• \t")
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i > 0 && i < len(s) && (s[i] == '.' || s[i] == ')') &&
		(i+1 == len(s) || s[i+1] == ' ' || s[i+1] == '\t') {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
