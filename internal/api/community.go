package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/david/grantmatch/internal/auth"
	"github.com/david/grantmatch/internal/db"
	"github.com/david/grantmatch/internal/models"
)

func (s *Server) handleGetMe(c echo.Context) error {
	ctx := c.Request().Context()
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	profile, err := s.Store.GetProfile(ctx, userID)
	if errors.Is(err, db.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Profile not found"})
	}
	if err != nil {
		c.Logger().Errorf("Failed to load profile: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}

	votes, err := s.Store.CountVotesByUser(ctx, userID)
	if err != nil {
		c.Logger().Errorf("Failed to count votes: %v", err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"profile":    profile,
		"vote_count": votes,
	})
}

type walletRequest struct {
	Address string `json:"address"`
}

func (s *Server) handleLinkWallet(c echo.Context) error {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	var req walletRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	address := strings.TrimSpace(req.Address)
	if address == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Wallet address is required"})
	}

	err = s.Store.LinkWallet(c.Request().Context(), userID, address)
	switch {
	case errors.Is(err, db.ErrWalletTaken):
		return c.JSON(http.StatusConflict, map[string]string{"error": "Wallet already linked to another account."})
	case errors.Is(err, db.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Profile not found"})
	case err != nil:
		c.Logger().Errorf("Failed to link wallet: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to link wallet"})
	}

	return c.JSON(http.StatusOK, map[string]string{"wallet_address": address})
}

type proposalRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	EndsAt      *time.Time `json:"ends_at"`
}

func (s *Server) handleCreateProposal(c echo.Context) error {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	var req proposalRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if strings.TrimSpace(req.Title) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Title is required"})
	}

	p := models.Proposal{
		ProposerID:  userID,
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		EndsAt:      req.EndsAt,
	}
	if err := s.Store.CreateProposal(c.Request().Context(), &p); err != nil {
		c.Logger().Errorf("Failed to create proposal: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to create proposal"})
	}
	return c.JSON(http.StatusCreated, p)
}

func (s *Server) handleListMyProposals(c echo.Context) error {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	proposals, err := s.Store.ListProposalsByUser(c.Request().Context(), userID)
	if err != nil {
		c.Logger().Errorf("Failed to list proposals: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to fetch proposals"})
	}
	return c.JSON(http.StatusOK, proposals)
}

type proposalResponse struct {
	*models.ProposalDetail
	Percent map[string]int `json:"percent"`
}

func newProposalResponse(d *models.ProposalDetail) proposalResponse {
	return proposalResponse{
		ProposalDetail: d,
		Percent: map[string]int{
			"for":     d.Votes.Percent(d.Votes.For),
			"against": d.Votes.Percent(d.Votes.Against),
			"abstain": d.Votes.Percent(d.Votes.Abstain),
		},
	}
}

func (s *Server) handleGetProposal(c echo.Context) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid proposal ID"})
	}

	d, err := s.Store.GetProposal(c.Request().Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Not found"})
	}
	if err != nil {
		c.Logger().Errorf("Failed to get proposal: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}
	return c.JSON(http.StatusOK, newProposalResponse(d))
}

type voteRequest struct {
	Choice string `json:"choice"`
}

func (s *Server) handleCastVote(c echo.Context) error {
	ctx := c.Request().Context()
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	proposalID, ok := parseIDParam(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid proposal ID"})
	}

	var req voteRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	err = s.Store.CastVote(ctx, proposalID, userID, req.Choice)
	switch {
	case errors.Is(err, db.ErrInvalidVote):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, db.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Proposal not found"})
	case err != nil:
		c.Logger().Errorf("Failed to cast vote: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to cast vote"})
	}

	d, err := s.Store.GetProposal(ctx, proposalID)
	if err != nil {
		c.Logger().Errorf("Failed to reload proposal: %v", err)
		return c.NoContent(http.StatusOK)
	}
	return c.JSON(http.StatusOK, newProposalResponse(d))
}

type applyRequest struct {
	ProposalID string `json:"proposal_id"`
}

func (s *Server) handleApply(c echo.Context) error {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	grantID, ok := parseIDParam(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid grant ID"})
	}

	var req applyRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	proposalID, err := uuid.Parse(req.ProposalID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Select a proposal to apply with"})
	}

	app, err := s.Store.ApplyToGrant(c.Request().Context(), userID, grantID, proposalID)
	switch {
	case errors.Is(err, db.ErrDuplicateApplication):
		return c.JSON(http.StatusConflict, map[string]string{"error": "You have already applied for this grant."})
	case errors.Is(err, db.ErrProposalNotOwned):
		return c.JSON(http.StatusForbidden, map[string]string{"error": "You can only apply with your own proposals."})
	case errors.Is(err, db.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Grant or proposal not found"})
	case err != nil:
		c.Logger().Errorf("Failed to apply: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to submit application"})
	}
	return c.JSON(http.StatusCreated, app)
}
