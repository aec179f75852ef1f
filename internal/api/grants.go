package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/david/grantmatch/internal/db"
	"github.com/david/grantmatch/internal/importer"
	"github.com/david/grantmatch/internal/models"
)

// splitCSV splits a comma-separated query parameter into trimmed non-empty strings.
func splitCSV(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}

// queryInt reads a positive integer query parameter, capped at max.
func queryInt(c echo.Context, name string, def, max int) int {
	if v, err := strconv.Atoi(c.QueryParam(name)); err == nil && v > 0 && v <= max {
		return v
	}
	return def
}

func parseIDParam(c echo.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	return id, err == nil
}

func (s *Server) handleListGrants(c echo.Context) error {
	q := strings.TrimSpace(c.QueryParam("q"))
	offset := 0
	if o, err := strconv.Atoi(c.QueryParam("offset")); err == nil && o >= 0 {
		offset = o
	}

	// Generate embedding for semantic search
	var queryEmbedding []float32
	if q != "" && s.AI != nil {
		aiCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		vec, err := s.AI.GenerateEmbedding(aiCtx, q)
		if err != nil {
			// keyword ordering still applies without an embedding
			c.Logger().Errorf("Failed to generate query embedding: %v", err)
		} else {
			queryEmbedding = vec
		}
	}

	result, err := s.Store.ListGrants(c.Request().Context(), db.GrantListParams{
		Query:          q,
		QueryEmbedding: queryEmbedding,
		Tags:           splitCSV(c.QueryParam("tags")),
		SortBy:         c.QueryParam("sort"),
		Limit:          queryInt(c, "limit", 20, 100),
		Offset:         offset,
	})
	if err != nil {
		c.Logger().Errorf("Failed to list grants: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}

	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleGetGrant(c echo.Context) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid grant ID"})
	}

	g, err := s.Store.GetGrant(c.Request().Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Not found"})
	}
	if err != nil {
		c.Logger().Errorf("Failed to get grant: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}
	return c.JSON(http.StatusOK, g)
}

func (s *Server) handleListApplications(c echo.Context) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid grant ID"})
	}

	apps, err := s.Store.ListApplications(c.Request().Context(), id)
	if err != nil {
		c.Logger().Errorf("Failed to list applications: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"count":        len(apps),
		"applications": apps,
	})
}

func (s *Server) handleListTags(c echo.Context) error {
	tags, err := s.Store.Tags(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, tags)
}

func (s *Server) handleLeaderboard(c echo.Context) error {
	entries, err := s.Store.Leaderboard(c.Request().Context(), queryInt(c, "limit", 10, 100))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, entries)
}

type grantRequest struct {
	Title        string     `json:"title"`
	Organization string     `json:"organization"`
	Description  string     `json:"description"`
	Tags         []string   `json:"tags"`
	URL          string     `json:"url"`
	Amount       *float64   `json:"amount"`
	Currency     string     `json:"currency"`
	Deadline     *time.Time `json:"deadline"`
	Requirements []string   `json:"requirements"`
}

// toGrant validates the request and strips markup from the description.
func (r grantRequest) toGrant() (models.Grant, error) {
	g := models.Grant{
		Title:        strings.TrimSpace(r.Title),
		Organization: strings.TrimSpace(r.Organization),
		Description:  importer.HTMLToText(importer.SanitizeHTML(r.Description)),
		URL:          strings.TrimSpace(r.URL),
		Amount:       r.Amount,
		Currency:     strings.ToUpper(strings.TrimSpace(r.Currency)),
		Deadline:     r.Deadline,
		Requirements: r.Requirements,
		SourceID:     "manual",
	}
	for _, t := range r.Tags {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			g.Tags = append(g.Tags, t)
		}
	}
	if g.URL != "" {
		g.URL = importer.CanonicalizeURL(g.URL)
	}
	if g.Title == "" || g.Organization == "" {
		return g, errors.New("title and organization are required")
	}
	return g, nil
}

func (s *Server) handleCreateGrant(c echo.Context) error {
	var req grantRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	g, err := req.toGrant()
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	ctx := c.Request().Context()
	if err := s.Store.UpsertGrant(ctx, &g, s.embedGrant(ctx, g)); err != nil {
		c.Logger().Errorf("Failed to save grant: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to save grant"})
	}
	return c.JSON(http.StatusCreated, g)
}

// embedGrant returns the grant's embedding, or nil when none can be made.
func (s *Server) embedGrant(ctx context.Context, g models.Grant) []float32 {
	if s.AI == nil {
		return nil
	}
	vec, err := s.AI.GenerateEmbedding(ctx, g.Title+"\n"+g.Description)
	if err != nil {
		return nil
	}
	return vec
}

func (s *Server) handleSeed(c echo.Context) error {
	ctx := c.Request().Context()

	count := 0
	for _, g := range seedGrants() {
		if err := s.Store.UpsertGrant(ctx, &g, s.embedGrant(ctx, g)); err != nil {
			c.Logger().Errorf("Failed to seed: %v", err)
			continue
		}
		count++
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "Seed complete",
		"count":   count,
	})
}

func seedGrants() []models.Grant {
	return []models.Grant{
		{
			Title:        "Women in Fintech Accelerator Grant",
			Organization: "Global Fund for Women",
			Description:  "Equity-free funding for women-led fintech startups expanding access to financial services. Recipients join a six-month mentorship program.",
			Tags:         []string{"women", "fintech", "empowerment"},
			URL:          "https://www.globalfundforwomen.org/grants/fintech-accelerator",
			Amount:       floatPtr(50000),
			Currency:     "USD",
			Deadline:     timePtr(time.Date(2027, 3, 31, 23, 59, 0, 0, time.UTC)),
			Requirements: []string{"Woman founder or co-founder", "Operating product"},
		},
		{
			Title:        "Gender Equality Innovation Fund",
			Organization: "UN Women",
			Description:  "Supports projects that advance gender equality through technology, education and economic empowerment.",
			Tags:         []string{"gender", "equality", "education"},
			URL:          "https://www.unwomen.org/en/grants/innovation-fund",
			Amount:       floatPtr(100000),
			Currency:     "USD",
		},
		{
			Title:        "Web3 Foundation Open Grants",
			Organization: "Web3 Foundation",
			Description:  "Funding for software development and research in the decentralized web. Projects must be open source.",
			Tags:         []string{"web3", "blockchain", "decentralized"},
			URL:          "https://grants.web3.foundation/",
			Amount:       floatPtr(30000),
			Currency:     "USD",
			Requirements: []string{"Open source license"},
		},
		{
			Title:        "DAO Tooling Builders Round",
			Organization: "Gitcoin",
			Description:  "Quadratic funding round for DAO governance tooling, treasury management and on-chain voting infrastructure.",
			Tags:         []string{"dao", "web3", "public goods"},
			URL:          "https://www.gitcoin.co/rounds/dao-tooling",
			Amount:       floatPtr(25000),
			Currency:     "USD",
			Deadline:     timePtr(time.Date(2027, 1, 15, 23, 59, 0, 0, time.UTC)),
		},
		{
			Title:        "Climate Tech Seed Grant",
			Organization: "Climate Ventures Trust",
			Description:  "Early-stage grants for startups reducing carbon emissions in agriculture, energy and transport.",
			Tags:         []string{"climate", "sustainability", "energy"},
			URL:          "https://climateventures.example.org/seed-grant",
			Amount:       floatPtr(75000),
			Currency:     "USD",
		},
		{
			Title:        "Digital Health Innovation Award",
			Organization: "Wellcome Trust",
			Description:  "Supports digital tools that improve access to healthcare in low-income communities. Awards cover pilots and evaluation.",
			Tags:         []string{"health", "ai", "education"},
			URL:          "https://wellcome.org/grant-funding/digital-health-award",
			Amount:       floatPtr(250000),
			Currency:     "GBP",
		},
	}
}

func floatPtr(v float64) *float64 {
	return &v
}

func timePtr(t time.Time) *time.Time {
	return &t
}
