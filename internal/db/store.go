package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/david/grantmatch/internal/models"
)

var ErrNotFound = errors.New("not found")

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

type GrantListParams struct {
	Query          string
	QueryEmbedding []float32
	Tags           []string
	SortBy         string // relevance (default), deadline, amount_desc, newest
	Limit          int
	Offset         int
}

type GrantListResult struct {
	Grants []models.Grant `json:"grants"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

const grantCols = `id, title, organization, description, tags, url, amount, currency,
	deadline, requirements, source_id, created_at, updated_at`

func scanGrant(scan func(dest ...any) error) (models.Grant, error) {
	var g models.Grant
	var url, currency, sourceID *string

	err := scan(
		&g.ID, &g.Title, &g.Organization, &g.Description, &g.Tags, &url, &g.Amount, &currency,
		&g.Deadline, &g.Requirements, &sourceID, &g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		return g, err
	}

	if url != nil {
		g.URL = *url
	}
	if currency != nil {
		g.Currency = *currency
	}
	if sourceID != nil {
		g.SourceID = *sourceID
	}
	return g, nil
}

// AllGrants returns the full grant snapshot used by the matcher.
func (s *Store) AllGrants(ctx context.Context) ([]models.Grant, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+grantCols+" FROM grants ORDER BY created_at DESC, id")
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()
	return collectGrants(rows)
}

// buildGrantFilter returns the WHERE clause for params and its positional args.
func buildGrantFilter(params GrantListParams) (string, []any) {
	where := "WHERE 1=1"
	var args []any
	argIdx := 1

	if q := strings.TrimSpace(params.Query); q != "" {
		where += fmt.Sprintf(" AND (title ILIKE $%d OR description ILIKE $%d OR organization ILIKE $%d)", argIdx, argIdx, argIdx)
		args = append(args, containsPattern(q))
		argIdx++
	}

	if tags := sanitizeStringSlice(params.Tags); len(tags) > 0 {
		where += fmt.Sprintf(" AND tags && $%d", argIdx)
		args = append(args, tags)
	}

	return where, args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// containsPattern turns q into an ILIKE pattern matching it literally anywhere.
func containsPattern(q string) string {
	return "%" + likeEscaper.Replace(q) + "%"
}

// buildGrantOrder returns the ORDER BY clause, appending any args it needs.
func buildGrantOrder(params GrantListParams, args []any) (string, []any) {
	switch params.SortBy {
	case "deadline":
		return " ORDER BY deadline ASC NULLS LAST, created_at DESC", args
	case "amount_desc":
		return " ORDER BY amount DESC NULLS LAST, created_at DESC", args
	case "newest":
		return " ORDER BY created_at DESC", args
	}

	if len(params.QueryEmbedding) > 0 {
		args = append(args, pgvector.NewVector(params.QueryEmbedding))
		return fmt.Sprintf(`
			ORDER BY
				CASE WHEN embedding IS NULL THEN 1 ELSE 0 END ASC,
				COALESCE(1 - (embedding <=> $%d), -1) DESC,
				created_at DESC`, len(args)), args
	}
	if strings.TrimSpace(params.Query) != "" {
		// the query is always $1 when present
		return " ORDER BY (title ILIKE $1) DESC, created_at DESC", args
	}
	return " ORDER BY created_at DESC", args
}

func (s *Store) ListGrants(ctx context.Context, params GrantListParams) (*GrantListResult, error) {
	where, args := buildGrantFilter(params)

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM grants "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count failed: %w", err)
	}

	order, args := buildGrantOrder(params, args)
	selectSQL := "SELECT " + grantCols + " FROM grants " + where + order
	selectSQL += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, params.Limit, params.Offset)

	rows, err := s.pool.Query(ctx, selectSQL, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	grants, err := collectGrants(rows)
	if err != nil {
		return nil, err
	}

	return &GrantListResult{
		Grants: grants,
		Total:  total,
		Limit:  params.Limit,
		Offset: params.Offset,
	}, nil
}

func (s *Store) GetGrant(ctx context.Context, id uuid.UUID) (*models.Grant, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+grantCols+" FROM grants WHERE id = $1", id)
	g, err := scanGrant(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get grant: %w", err)
	}
	return &g, nil
}

// UpsertGrant inserts g, or updates the existing row with the same URL. The
// stored ID is written back into g. A nil embedding leaves the column untouched.
func (s *Store) UpsertGrant(ctx context.Context, g *models.Grant, embedding []float32) error {
	var vec *pgvector.Vector
	if len(embedding) > 0 {
		v := pgvector.NewVector(embedding)
		vec = &v
	}

	var url *string
	if g.URL != "" {
		url = &g.URL
	}
	var currency, sourceID *string
	if g.Currency != "" {
		currency = &g.Currency
	}
	if g.SourceID != "" {
		sourceID = &g.SourceID
	}

	tags := sanitizeStringSlice(g.Tags)
	if tags == nil {
		tags = []string{}
	}
	requirements := sanitizeStringSlice(g.Requirements)
	if requirements == nil {
		requirements = []string{}
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO grants (title, organization, description, tags, url, amount, currency, deadline, requirements, source_id, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (url) DO UPDATE SET
			title = EXCLUDED.title,
			organization = EXCLUDED.organization,
			description = EXCLUDED.description,
			tags = EXCLUDED.tags,
			amount = COALESCE(EXCLUDED.amount, grants.amount),
			currency = COALESCE(EXCLUDED.currency, grants.currency),
			deadline = COALESCE(EXCLUDED.deadline, grants.deadline),
			requirements = EXCLUDED.requirements,
			source_id = COALESCE(EXCLUDED.source_id, grants.source_id),
			embedding = COALESCE(EXCLUDED.embedding, grants.embedding),
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`, g.Title, g.Organization, g.Description, tags, url, g.Amount, currency, g.Deadline, requirements, sourceID, vec,
	).Scan(&g.ID, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert grant %q: %w", g.Title, err)
	}
	return nil
}

func (s *Store) Tags(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, "SELECT DISTINCT unnest(tags) AS tag FROM grants ORDER BY tag")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tags := []string{}
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// GrantStats counts how complete the grant data is.
type GrantStats struct {
	Total          int
	WithTags       int
	WithURL        int
	WithDeadline   int
	WithEmbeddings int
}

func (s *Store) GrantStats(ctx context.Context) (GrantStats, error) {
	var st GrantStats
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE cardinality(tags) > 0),
			COUNT(url),
			COUNT(deadline),
			COUNT(embedding)
		FROM grants
	`).Scan(&st.Total, &st.WithTags, &st.WithURL, &st.WithDeadline, &st.WithEmbeddings)
	if err != nil {
		return st, fmt.Errorf("grant stats: %w", err)
	}
	return st, nil
}

func collectGrants(rows pgx.Rows) ([]models.Grant, error) {
	grants := []models.Grant{}
	for rows.Next() {
		g, err := scanGrant(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return grants, nil
}

func sanitizeStringSlice(values []string) []string {
	if len(values) == 0 {
		return nil
	}

	clean := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			clean = append(clean, trimmed)
		}
	}
	if len(clean) == 0 {
		return nil
	}
	return clean
}
