package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

type tagResult struct {
	Tags []string `json:"tags"`
}

// SuggestTags asks the model to pick tags for a grant from a fixed vocabulary.
// Tags outside the vocabulary are dropped; the canonical spelling is returned.
func SuggestTags(ctx context.Context, gen Generator, title, description string, allowed []string) ([]string, error) {
	prompt := fmt.Sprintf(`You are an expert grant classifier. Tag the following grant based on its title and description.

GRANT TITLE: %s
GRANT DESCRIPTION: %s

Select up to 4 tags from this EXACT list. Do not invent new tags.
AVAILABLE TAGS: %s

Return a JSON object with this format:
{
  "tags": ["tag1", "tag2"]
}

If no tags apply, return an empty array. RESPOND ONLY WITH JSON.`, title, description, strings.Join(allowed, ", "))

	resp, err := gen.GenerateCompletion(ctx, prompt, true)
	if err != nil {
		return nil, err
	}

	cleaned := CleanResponse(resp)
	if obj, ok := extractFirstJSONObject(cleaned); ok {
		cleaned = obj
	}

	var result tagResult
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		return nil, fmt.Errorf("failed to parse tag json: %w. Response: %s", err, resp)
	}

	return filterValid(result.Tags, allowed), nil
}

func filterValid(tags []string, allowed []string) []string {
	valid := make([]string, 0, len(tags))
	seen := make(map[string]bool)
	for _, t := range tags {
		for _, a := range allowed {
			if strings.EqualFold(a, strings.TrimSpace(t)) && !seen[a] {
				valid = append(valid, a)
				seen[a] = true
				break
			}
		}
	}
	return valid
}
