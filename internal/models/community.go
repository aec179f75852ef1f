package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleFounder   = "founder"
	RoleDAOFunder = "dao_funder"
)

type Profile struct {
	UserID        uuid.UUID `json:"user_id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	Role          string    `json:"role"`
	Region        string    `json:"region,omitempty"`
	Mission       string    `json:"mission,omitempty"`
	WalletAddress *string   `json:"wallet_address"`
	CreatedAt     time.Time `json:"created_at"`
}

type Proposal struct {
	ID          uuid.UUID  `json:"id"`
	ProposerID  uuid.UUID  `json:"proposer_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"` // active, passed, rejected
	EndsAt      *time.Time `json:"ends_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type VoteTally struct {
	For     int `json:"for"`
	Against int `json:"against"`
	Abstain int `json:"abstain"`
}

func (t VoteTally) Total() int {
	return t.For + t.Against + t.Abstain
}

// Percent returns the share of n in the tally, rounded down to a whole percent.
func (t VoteTally) Percent(n int) int {
	total := t.Total()
	if total == 0 {
		return 0
	}
	return n * 100 / total
}

type ProposalDetail struct {
	Proposal
	ProposerName string    `json:"proposer_name"`
	Votes        VoteTally `json:"votes"`
}

type GrantApplication struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	GrantID    uuid.UUID `json:"grant_id"`
	ProposalID uuid.UUID `json:"proposal_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// AppliedProposal is a proposal listed under a grant's applications.
type AppliedProposal struct {
	ProposalID   uuid.UUID `json:"proposal_id"`
	Title        string    `json:"title"`
	ProposerName string    `json:"proposer_name"`
	AppliedAt    time.Time `json:"applied_at"`
}

type LeaderboardEntry struct {
	UserID    uuid.UUID `json:"user_id"`
	Name      string    `json:"name"`
	VoteCount int       `json:"vote_count"`
}
