package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/david/grantmatch/internal/models"
)

var (
	ErrDuplicateApplication = errors.New("already applied for this grant")
	ErrProposalNotOwned     = errors.New("proposal does not belong to the applicant")
	ErrWalletTaken          = errors.New("wallet already linked to another account")
	ErrInvalidVote          = errors.New("vote must be one of for, against, abstain")
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// Profiles

func (s *Store) GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	var p models.Profile
	var region, mission *string
	err := s.pool.QueryRow(ctx, `
		SELECT id, email, name, role, region, mission, wallet_address, created_at
		FROM users WHERE id = $1
	`, userID).Scan(&p.UserID, &p.Email, &p.Name, &p.Role, &region, &mission, &p.WalletAddress, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	if region != nil {
		p.Region = *region
	}
	if mission != nil {
		p.Mission = *mission
	}
	return &p, nil
}

// LinkWallet attaches address to the user's profile. Addresses are compared
// case-insensitively; an address owned by someone else yields ErrWalletTaken.
func (s *Store) LinkWallet(ctx context.Context, userID uuid.UUID, address string) error {
	address = strings.TrimSpace(address)

	var owner uuid.UUID
	err := s.pool.QueryRow(ctx, "SELECT id FROM users WHERE lower(wallet_address) = lower($1)", address).Scan(&owner)
	switch {
	case err == nil && owner != userID:
		return ErrWalletTaken
	case err != nil && !errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("check wallet owner: %w", err)
	}

	tag, err := s.pool.Exec(ctx, "UPDATE users SET wallet_address = $1 WHERE id = $2", address, userID)
	if isUniqueViolation(err) {
		return ErrWalletTaken
	}
	if err != nil {
		return fmt.Errorf("link wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Proposals

func (s *Store) CreateProposal(ctx context.Context, p *models.Proposal) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO proposals (proposer_id, title, description, ends_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, status, created_at
	`, p.ProposerID, p.Title, p.Description, p.EndsAt).Scan(&p.ID, &p.Status, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("create proposal: %w", err)
	}
	return nil
}

func (s *Store) ListProposalsByUser(ctx context.Context, userID uuid.UUID) ([]models.Proposal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, proposer_id, title, description, status, ends_at, created_at
		FROM proposals WHERE proposer_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	defer rows.Close()

	proposals := []models.Proposal{}
	for rows.Next() {
		var p models.Proposal
		if err := rows.Scan(&p.ID, &p.ProposerID, &p.Title, &p.Description, &p.Status, &p.EndsAt, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan proposal: %w", err)
		}
		proposals = append(proposals, p)
	}
	return proposals, rows.Err()
}

// GetProposal returns the proposal with its proposer's name and vote tally.
// Proposals past their end date are reported as passed or rejected.
func (s *Store) GetProposal(ctx context.Context, id uuid.UUID) (*models.ProposalDetail, error) {
	var d models.ProposalDetail
	err := s.pool.QueryRow(ctx, `
		SELECT p.id, p.proposer_id, p.title, p.description, p.status, p.ends_at, p.created_at, u.name,
			COUNT(*) FILTER (WHERE v.choice = 'for'),
			COUNT(*) FILTER (WHERE v.choice = 'against'),
			COUNT(*) FILTER (WHERE v.choice = 'abstain')
		FROM proposals p
		JOIN users u ON u.id = p.proposer_id
		LEFT JOIN votes v ON v.proposal_id = p.id
		WHERE p.id = $1
		GROUP BY p.id, u.name
	`, id).Scan(&d.ID, &d.ProposerID, &d.Title, &d.Description, &d.Status, &d.EndsAt, &d.CreatedAt, &d.ProposerName,
		&d.Votes.For, &d.Votes.Against, &d.Votes.Abstain)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get proposal: %w", err)
	}
	d.Status = EffectiveStatus(d.Proposal, d.Votes, time.Now())
	return &d, nil
}

// EffectiveStatus resolves an active proposal whose voting window has closed.
func EffectiveStatus(p models.Proposal, tally models.VoteTally, now time.Time) string {
	if p.Status != "active" || p.EndsAt == nil || now.Before(*p.EndsAt) {
		return p.Status
	}
	if tally.For > tally.Against {
		return "passed"
	}
	return "rejected"
}

// Votes

// CastVote records the voter's choice, replacing any earlier vote on the same
// proposal.
func (s *Store) CastVote(ctx context.Context, proposalID, voterID uuid.UUID, choice string) error {
	choice = strings.ToLower(strings.TrimSpace(choice))
	if choice != "for" && choice != "against" && choice != "abstain" {
		return ErrInvalidVote
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO votes (proposal_id, voter_id, choice)
		SELECT $1, $2, $3
		WHERE EXISTS (SELECT 1 FROM proposals WHERE id = $1)
		ON CONFLICT (proposal_id, voter_id) DO UPDATE SET choice = EXCLUDED.choice, created_at = NOW()
	`, proposalID, voterID, choice)
	if err != nil {
		return fmt.Errorf("cast vote: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) CountVotesByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM votes WHERE voter_id = $1", userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count votes: %w", err)
	}
	return n, nil
}

// Leaderboard lists voters by number of votes cast, most active first.
func (s *Store) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT u.id, u.name, COUNT(*) AS vote_count
		FROM votes v
		JOIN users u ON u.id = v.voter_id
		GROUP BY u.id, u.name
		ORDER BY vote_count DESC, u.name ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	defer rows.Close()

	entries := []models.LeaderboardEntry{}
	for rows.Next() {
		var e models.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.Name, &e.VoteCount); err != nil {
			return nil, fmt.Errorf("scan leaderboard: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Applications

// ApplyToGrant links one of the user's proposals to a grant. A user may apply
// to each grant once.
func (s *Store) ApplyToGrant(ctx context.Context, userID, grantID, proposalID uuid.UUID) (*models.GrantApplication, error) {
	var owner uuid.UUID
	err := s.pool.QueryRow(ctx, "SELECT proposer_id FROM proposals WHERE id = $1", proposalID).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load proposal: %w", err)
	}
	if owner != userID {
		return nil, ErrProposalNotOwned
	}

	app := models.GrantApplication{UserID: userID, GrantID: grantID, ProposalID: proposalID}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO grant_applications (user_id, grant_id, proposal_id)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, userID, grantID, proposalID).Scan(&app.ID, &app.CreatedAt)
	if isUniqueViolation(err) {
		return nil, ErrDuplicateApplication
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("apply to grant: %w", err)
	}
	return &app, nil
}

// ListApplications returns the proposals applied to a grant, newest first.
func (s *Store) ListApplications(ctx context.Context, grantID uuid.UUID) ([]models.AppliedProposal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.id, p.title, u.name, a.created_at
		FROM grant_applications a
		JOIN proposals p ON p.id = a.proposal_id
		JOIN users u ON u.id = a.user_id
		WHERE a.grant_id = $1
		ORDER BY a.created_at DESC
	`, grantID)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	out := []models.AppliedProposal{}
	for rows.Next() {
		var a models.AppliedProposal
		if err := rows.Scan(&a.ProposalID, &a.Title, &a.ProposerName, &a.AppliedAt); err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
