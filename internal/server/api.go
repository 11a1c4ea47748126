package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/aimerfeng/ContribChain/internal/auth"
	"github.com/aimerfeng/ContribChain/internal/badge"
	"github.com/aimerfeng/ContribChain/internal/config"
	"github.com/aimerfeng/ContribChain/internal/contribution"
	apierrors "github.com/aimerfeng/ContribChain/internal/errors"
	"github.com/aimerfeng/ContribChain/internal/logging"
	"github.com/aimerfeng/ContribChain/internal/middleware"
	"github.com/aimerfeng/ContribChain/internal/monitoring"
	"github.com/aimerfeng/ContribChain/internal/project"
	"github.com/aimerfeng/ContribChain/internal/reward"
	"github.com/aimerfeng/ContribChain/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services are the collaborators the HTTP handlers call into
type Services struct {
	Store         store.Store
	Auth          *auth.Service
	Contributions *contribution.Manager
	Rewards       *reward.Engine
	Badges        *badge.Service
	Projects      *project.Service
	Guard         *middleware.Guard
	LoginLimiter  *middleware.RateLimiter
	// Ledger and Scheduler are nil when no ledger queue is configured
	Ledger    Pinger
	Scheduler *reward.Scheduler
}

// APIServer represents the main API server
type APIServer struct {
	config *config.Config
	router *gin.Engine
	svc    Services
}

// NewAPIServer creates a new API server instance
func NewAPIServer(cfg *config.Config, svc Services) *APIServer {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Add middleware in order
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.CORS(cfg.CORS.AllowedOrigins))
	router.Use(monitoring.MetricsMiddleware())
	router.Use(logging.RequestLogger())

	srv := &APIServer{
		config: cfg,
		router: router,
		svc:    svc,
	}

	srv.setupRoutes()
	return srv
}

// Router returns the gin router
func (s *APIServer) Router() http.Handler {
	return s.router
}

// setupRoutes configures all API routes
func (s *APIServer) setupRoutes() {
	s.router.GET("/health", s.healthCheck)
	if s.config.Monitoring.Enabled {
		s.router.GET(s.config.Monitoring.MetricsPath, monitoring.GinHandler())
	}

	requireIdentity := s.svc.Guard.RequireIdentity()

	v1 := s.router.Group("/api/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", s.handleRegister)
			if s.svc.LoginLimiter != nil {
				authGroup.POST("/login", middleware.LoginRateLimit(s.svc.LoginLimiter), s.handleLogin)
			} else {
				authGroup.POST("/login", s.handleLogin)
			}
			authGroup.GET("/me", requireIdentity, s.handleMe)
			authGroup.PUT("/password", requireIdentity, s.handleChangePassword)
			authGroup.DELETE("/me", requireIdentity, s.handleDeactivate)
		}

		projects := v1.Group("/projects")
		{
			projects.GET("", s.handleListProjects)
			projects.POST("", requireIdentity, s.handleCreateProject)
			projects.GET("/:id", s.handleGetProject)
			projects.PUT("/:id", requireIdentity, s.handleUpdateProject)
			projects.GET("/:id/tasks", s.handleListTasks)
			projects.POST("/:id/tasks", requireIdentity, s.handleCreateTask)
			projects.PUT("/:id/tasks/:task_id", requireIdentity, s.handleUpdateTask)
			projects.GET("/:id/contributions", s.handleListProjectContributions)
		}
		v1.GET("/tasks/:id", s.handleGetTask)

		contributions := v1.Group("/contributions")
		{
			contributions.GET("", s.handleListContributions)
			contributions.POST("", requireIdentity, s.handleCreateContribution)
			contributions.GET("/:id", s.handleGetContribution)
			contributions.POST("/:id/verify", requireIdentity, s.handleVerifyContribution)
			contributions.POST("/:id/reject", requireIdentity, s.handleRejectContribution)
			contributions.PATCH("/:id/status", requireIdentity, s.handleTransitionContribution)
		}

		tokens := v1.Group("/tokens")
		{
			tokens.GET("", s.handleListTokens)
			tokens.GET("/:id", s.handleGetToken)
			tokens.POST("/:id/outcome", requireIdentity, s.handleRecordOutcome)
		}

		badges := v1.Group("/badges")
		{
			badges.GET("", s.handleListBadges)
			badges.POST("", requireIdentity, s.handleCreateBadge)
			badges.GET("/:id", s.handleGetBadge)
			badges.PUT("/:id", requireIdentity, s.handleUpdateBadge)
			badges.GET("/slug/:slug", s.handleGetBadgeBySlug)
			badges.POST("/:id/award", requireIdentity, s.handleAwardBadge)
		}

		userBadges := v1.Group("/user-badges")
		userBadges.Use(requireIdentity)
		{
			userBadges.PUT("/:id/issuance", s.handleRecordIssuance)
			userBadges.PATCH("/:id/visibility", s.handleSetVisibility)
		}

		users := v1.Group("/users")
		{
			users.GET("", s.handleListUsers)
			users.PUT("/me", requireIdentity, s.handleUpdateProfile)
			users.GET("/:id", s.handleGetUser)
			users.GET("/:id/contributions", s.handleListUserContributions)
			users.GET("/:id/tokens", s.handleListUserTokens)
			users.GET("/:id/badges", s.handleListUserBadges)
		}
	}
}

// healthCheck reports database and ledger reachability
func (s *APIServer) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	body := gin.H{
		"status":   "healthy",
		"service":  "api",
		"database": "ok",
		"ledger":   "disabled",
	}

	if err := s.svc.Store.Ping(ctx); err != nil {
		logging.LogError(err, middleware.GetRequestIDFromContext(c), "api", "health_database")
		status = http.StatusServiceUnavailable
		body["status"] = "unhealthy"
		body["database"] = "unreachable"
	}

	if s.svc.Ledger != nil {
		body["ledger"] = "ok"
		if err := s.svc.Ledger.Ping(ctx); err != nil {
			// mint requests are redispatched later, so the API stays up
			body["ledger"] = "unreachable"
			if status == http.StatusOK {
				body["status"] = "degraded"
			}
		}
	}

	if s.svc.Scheduler != nil {
		body["redispatch"] = s.svc.Scheduler.GetStatus()
	}

	c.JSON(status, body)
}

// handleRegister handles user registration
func (s *APIServer) handleRegister(c *gin.Context) {
	var req auth.RegisterRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := s.svc.Auth.Register(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err, "register")
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// handleLogin handles user login
func (s *APIServer) handleLogin(c *gin.Context) {
	var req auth.LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := s.svc.Auth.Login(c.Request.Context(), &req)
	if err != nil {
		logging.LogSecurityEvent("login_failed", "", c.ClientIP(), logging.SanitizeForLog(req.Username, 64))
		respondError(c, err, "login")
		return
	}

	c.JSON(http.StatusOK, resp)
}

// handleMe returns the authenticated user
func (s *APIServer) handleMe(c *gin.Context) {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		middleware.RespondWithError(c, apierrors.ErrUnauthorizedError)
		return
	}

	user, err := s.svc.Auth.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "get_me")
		return
	}

	c.JSON(http.StatusOK, user)
}

// handleUpdateProfile changes the caller's profile fields
func (s *APIServer) handleUpdateProfile(c *gin.Context) {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		middleware.RespondWithError(c, apierrors.ErrUnauthorizedError)
		return
	}

	var req auth.UpdateProfileRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := s.svc.Auth.UpdateProfile(c.Request.Context(), userID, &req)
	if err != nil {
		respondError(c, err, "update_profile")
		return
	}

	c.JSON(http.StatusOK, user)
}

func (s *APIServer) handleListUsers(c *gin.Context) {
	skip, limit, ok := page(c)
	if !ok {
		return
	}

	users, err := s.svc.Auth.ListUsers(c.Request.Context(), skip, limit)
	if err != nil {
		respondError(c, err, "list_users")
		return
	}

	c.JSON(http.StatusOK, users)
}

func (s *APIServer) handleGetUser(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	user, err := s.svc.Auth.GetUserByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "get_user")
		return
	}

	c.JSON(http.StatusOK, user)
}

// handleChangePassword replaces the caller's password
func (s *APIServer) handleChangePassword(c *gin.Context) {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		middleware.RespondWithError(c, apierrors.ErrUnauthorizedError)
		return
	}

	var req auth.ChangePasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := s.svc.Auth.ChangePassword(c.Request.Context(), userID, &req); err != nil {
		respondError(c, err, "change_password")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Password updated"})
}

// handleDeactivate disables the caller's account. Existing tokens stop
// resolving on their next use.
func (s *APIServer) handleDeactivate(c *gin.Context) {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		middleware.RespondWithError(c, apierrors.ErrUnauthorizedError)
		return
	}

	if err := s.svc.Auth.Deactivate(c.Request.Context(), userID); err != nil {
		respondError(c, err, "deactivate")
		return
	}

	logging.LogSecurityEvent("account_deactivated", userID.String(), c.ClientIP(), "")
	c.Status(http.StatusNoContent)
}

// respondError maps a service error onto the error envelope. Server side
// failures are logged with the request id.
func respondError(c *gin.Context, err error, operation string) {
	apiErr := apierrors.FromError(err)
	if apierrors.IsServerError(apiErr) {
		logging.LogError(err, middleware.GetRequestIDFromContext(c), "api", operation)
	}
	_ = c.Error(err)
	middleware.RespondWithError(c, apiErr)
}

func bindJSON(c *gin.Context, dest any) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		middleware.RespondWithError(c, apierrors.NewInvalidRequestError("Invalid request body"))
		return false
	}
	return true
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		middleware.RespondWithError(c, apierrors.NewValidationError(map[string]string{name: "must be a valid UUID"}))
		return uuid.Nil, false
	}
	return id, true
}

func queryUUID(c *gin.Context, name string) (*uuid.UUID, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		middleware.RespondWithError(c, apierrors.NewValidationError(map[string]string{name: "must be a valid UUID"}))
		return nil, false
	}
	return &id, true
}

// page reads skip and limit. Limit is clamped by the store.
func page(c *gin.Context) (int, int, bool) {
	skip, limit := 0, store.MaxPageSize
	fields := map[string]string{}

	if raw := c.Query("skip"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			fields["skip"] = "must be a non-negative integer"
		}
		skip = v
	}
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			fields["limit"] = "must be an integer"
		}
		limit = v
	}

	if len(fields) > 0 {
		middleware.RespondWithError(c, apierrors.NewValidationError(fields))
		return 0, 0, false
	}
	return skip, limit, true
}
