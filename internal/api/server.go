package api

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/david/grantmatch/internal/ai"
	"github.com/david/grantmatch/internal/auth"
	"github.com/david/grantmatch/internal/config"
	"github.com/david/grantmatch/internal/db"
	"github.com/david/grantmatch/internal/importer"
	"github.com/david/grantmatch/internal/matcher"
	"github.com/david/grantmatch/internal/metrics"
)

type Server struct {
	Store       *db.Store
	AuthService *auth.Service
	Echo        *echo.Echo
	AI          ai.Provider // nil when no provider is configured
	Matcher     *matcher.Matcher
	Importer    *importer.Importer

	limiter *rateLimiter

	// Background import tracking
	jobMu      sync.Mutex
	runningJob *backgroundJob
}

type backgroundJob struct {
	ID        string             `json:"id"`
	Source    string             `json:"source"`
	Status    string             `json:"status"` // running, completed, failed
	StartedAt time.Time          `json:"started_at"`
	EndedAt   time.Time          `json:"ended_at,omitempty"`
	Result    any                `json:"result,omitempty"`
	Error     string             `json:"error,omitempty"`
	Cancel    context.CancelFunc `json:"-"`
}

var (
	adminSecretOnce    sync.Once
	adminSecretRuntime string
	adminSecretErr     error
)

// NewServer wires the store, AI provider, matcher and importer behind the
// HTTP API. provider may be nil; matching then answers 500 and search falls
// back to text ordering.
func NewServer(cfg config.Config, pool *pgxpool.Pool, provider ai.Provider) (*Server, error) {
	store := db.NewStore(pool)
	provider = ai.WithTimeout(provider, cfg.AI.Timeout)

	rules, err := matcher.DefaultRules()
	if err != nil {
		return nil, fmt.Errorf("load match rules: %w", err)
	}

	var gen ai.Generator
	importOpts := []importer.Option{}
	if provider != nil {
		gen = provider
		importOpts = append(importOpts,
			importer.WithEmbedder(provider),
			importer.WithTagger(provider, rules.Vocabulary()),
		)
	}

	m, err := matcher.New(store, gen, matcher.WithTopK(cfg.Match.TopK), matcher.WithRules(rules))
	if err != nil {
		return nil, err
	}
	im, err := importer.New(store, importOpts...)
	if err != nil {
		return nil, err
	}

	s := newServer(cfg, m)
	s.Store = store
	s.AuthService = auth.NewService(pool)
	s.AI = provider
	s.Importer = im
	return s, nil
}

// newServer builds the Echo instance and routes around m. Store-backed
// handlers need the remaining fields set by NewServer.
func newServer(cfg config.Config, m *matcher.Matcher) *Server {
	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(metrics.Middleware)

	// CORS: allow frontend origins from config, plus local development
	allowedOrigins := append([]string{"http://localhost:4200"}, cfg.CORSOrigins...)
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "X-Admin-Secret"},
	}))

	s := &Server{
		Echo:    e,
		Matcher: m,
		limiter: newRateLimiter(cfg.Match.RateRPS, cfg.Match.RateBurst),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)
	s.Echo.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	api := s.Echo.Group("/api/v1")
	api.POST("/match", s.handleMatch, s.limiter.middleware)

	api.GET("/grants", s.handleListGrants)
	api.GET("/grants/:id", s.handleGetGrant)
	api.GET("/grants/:id/applications", s.handleListApplications)
	api.GET("/tags", s.handleListTags)
	api.GET("/leaderboard", s.handleLeaderboard)
	api.GET("/proposals/:id", s.handleGetProposal)

	// Auth Routes
	api.POST("/auth/signup", s.handleSignup)
	api.POST("/auth/login", s.handleLogin)

	// Protected Routes
	user := api.Group("")
	user.Use(auth.Middleware)
	user.GET("/me", s.handleGetMe)
	user.POST("/me/wallet", s.handleLinkWallet)
	user.POST("/proposals", s.handleCreateProposal)
	user.GET("/proposals", s.handleListMyProposals)
	user.POST("/proposals/:id/votes", s.handleCastVote)
	user.POST("/grants/:id/apply", s.handleApply)

	// Admin Routes (Import & Seed)
	admin := api.Group("")
	admin.Use(s.adminMiddleware)
	admin.POST("/grants", s.handleCreateGrant)
	admin.POST("/seed", s.handleSeed)
	admin.POST("/import/:source", s.handleImport)
	admin.GET("/import/jobs/:id", s.handleJobStatus)
	admin.GET("/import/runs", s.handleListImportRuns)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

type matchRequest struct {
	Query string `json:"query"`
}

func (s *Server) handleMatch(c echo.Context) error {
	var req matchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	resp, err := s.Matcher.Match(c.Request().Context(), req.Query)
	switch {
	case errors.Is(err, matcher.ErrEmptyQuery):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "query is required"})
	case errors.Is(err, ai.ErrMissingAPIKey):
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "AI API key not set"})
	case errors.Is(err, matcher.ErrGrantSource):
		c.Logger().Errorf("Match failed: %v", err)
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "Failed to fetch grants"})
	case err != nil:
		c.Logger().Errorf("Match failed: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSignup(c echo.Context) error {
	var req auth.SignupRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	resp, err := s.AuthService.Signup(c.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidInput):
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		case errors.Is(err, auth.ErrUserExists):
			return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
		}
		c.Logger().Errorf("Signup failed: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}

	return c.JSON(http.StatusCreated, resp)
}

func (s *Server) handleLogin(c echo.Context) error {
	var req auth.LoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	resp, err := s.AuthService.Login(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCreds) {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
		}
		c.Logger().Errorf("Login failed: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}

	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleImport(c echo.Context) error {
	sourceID := c.Param("source")
	if !contains(s.Importer.Sources(), sourceID) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": fmt.Sprintf("unknown import source %q", sourceID)})
	}

	s.jobMu.Lock()
	if s.runningJob != nil && s.runningJob.Status == "running" {
		job := s.runningJob
		s.jobMu.Unlock()
		return c.JSON(http.StatusConflict, map[string]interface{}{
			"error":  "An import job is already running",
			"job_id": job.ID,
		})
	}

	// Detached from the request so the import outlives it.
	jobCtx, jobCancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), 30*time.Minute)

	jobID := uuid.New().String()[:8]
	job := &backgroundJob{
		ID:        jobID,
		Source:    sourceID,
		Status:    "running",
		StartedAt: time.Now(),
		Cancel:    jobCancel,
	}
	s.runningJob = job
	s.jobMu.Unlock()

	go func() {
		defer jobCancel()
		stats, err := s.Importer.Run(jobCtx, sourceID)

		s.jobMu.Lock()
		defer s.jobMu.Unlock()
		job.EndedAt = time.Now()
		job.Result = stats
		if err != nil {
			job.Status = "failed"
			job.Error = err.Error()
			log.Printf("[import-job %s] %s failed: %v", jobID, sourceID, err)
			return
		}
		job.Status = "completed"
		log.Printf("[import-job %s] %s completed: saved=%d", jobID, sourceID, stats.Saved)
	}()

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"message": fmt.Sprintf("%s import started", sourceID),
		"job_id":  jobID,
		"poll":    fmt.Sprintf("/api/v1/import/jobs/%s", jobID),
	})
}

func (s *Server) handleJobStatus(c echo.Context) error {
	queried := c.Param("id")

	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	job := s.runningJob
	if job == nil || job.ID != queried {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "job not found"})
	}

	resp := map[string]interface{}{
		"id":         job.ID,
		"source":     job.Source,
		"status":     job.Status,
		"started_at": job.StartedAt,
	}
	if !job.EndedAt.IsZero() {
		resp["ended_at"] = job.EndedAt
		resp["duration"] = job.EndedAt.Sub(job.StartedAt).String()
	}
	if job.Result != nil {
		resp["result"] = job.Result
	}
	if job.Error != "" {
		resp["error"] = job.Error
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleListImportRuns(c echo.Context) error {
	runs, err := s.Store.ListImportRuns(c.Request().Context(), queryInt(c, "limit", 20, 100))
	if err != nil {
		c.Logger().Errorf("Failed to list import runs: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}
	return c.JSON(http.StatusOK, runs)
}

func (s *Server) Start(port string) error {
	return s.Echo.Start(":" + port)
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.jobMu.Lock()
	if s.runningJob != nil && s.runningJob.Cancel != nil {
		s.runningJob.Cancel()
	}
	s.jobMu.Unlock()
	return s.Echo.Shutdown(ctx)
}

func (s *Server) adminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		secret, err := adminSecret()
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Server admin configuration error"})
		}

		// Check X-Admin-Secret header or Bearer token
		authHeader := c.Request().Header.Get("Authorization")
		adminHeader := c.Request().Header.Get("X-Admin-Secret")

		if adminHeader == secret {
			return next(c)
		}
		if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") && authHeader[7:] == secret {
			return next(c)
		}

		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized admin access"})
	}
}

func adminSecret() (string, error) {
	adminSecretOnce.Do(func() {
		secret := strings.TrimSpace(os.Getenv("ADMIN_SECRET"))
		if secret != "" {
			adminSecretRuntime = secret
			return
		}

		buf := make([]byte, 48)
		if _, err := rand.Read(buf); err != nil {
			adminSecretErr = fmt.Errorf("failed to generate ADMIN_SECRET fallback: %w", err)
			return
		}

		adminSecretRuntime = base64.RawURLEncoding.EncodeToString(buf)
		log.Print("ADMIN_SECRET is not set; using ephemeral in-memory fallback secret")
	})

	if adminSecretErr != nil {
		return "", adminSecretErr
	}
	if adminSecretRuntime == "" {
		return "", fmt.Errorf("admin secret unavailable")
	}

	return adminSecretRuntime, nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
