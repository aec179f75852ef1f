package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Grant struct {
	ID           uuid.UUID  `json:"id"`
	Title        string     `json:"title"`
	Organization string     `json:"organization"`
	Description  string     `json:"description"`
	Tags         []string   `json:"tags"`
	URL          string     `json:"url,omitempty"`
	Amount       *float64   `json:"amount,omitempty"`
	Currency     string     `json:"currency,omitempty"`
	Deadline     *time.Time `json:"deadline,omitempty"`
	Requirements []string   `json:"requirements,omitempty"`
	SourceID     string     `json:"source_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// SearchableText is the lowercased concatenation of title, description and
// tags that keyword filtering and ranking run against.
func (g Grant) SearchableText() string {
	return strings.ToLower(g.Title + " " + g.Description + " " + strings.Join(g.Tags, " "))
}

// MatchResult is one explained match returned to the caller.
type MatchResult struct {
	Title        string    `json:"title"`
	Organization string    `json:"organization"`
	Reason       string    `json:"reason"`
	ID           uuid.UUID `json:"id"`
	URL          *string   `json:"url"`
}

type MatchResponse struct {
	Message string        `json:"message"`
	Grants  []MatchResult `json:"grants"`
}
