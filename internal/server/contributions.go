package server

import (
	"net/http"

	"github.com/aimerfeng/ContribChain/internal/contribution"
	apierrors "github.com/aimerfeng/ContribChain/internal/errors"
	"github.com/aimerfeng/ContribChain/internal/middleware"
	"github.com/aimerfeng/ContribChain/internal/models"
	"github.com/aimerfeng/ContribChain/internal/reward"
	"github.com/aimerfeng/ContribChain/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// handleCreateContribution submits a contribution on behalf of the caller
func (s *APIServer) handleCreateContribution(c *gin.Context) {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		middleware.RespondWithError(c, apierrors.ErrUnauthorizedError)
		return
	}

	var req contribution.CreateRequest
	if !bindJSON(c, &req) {
		return
	}
	req.UserID = userID

	created, err := s.svc.Contributions.Create(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err, "create_contribution")
		return
	}

	c.JSON(http.StatusCreated, created)
}

// handleListContributions lists contributions filtered by query parameters
func (s *APIServer) handleListContributions(c *gin.Context) {
	userID, ok := queryUUID(c, "user_id")
	if !ok {
		return
	}
	projectID, ok := queryUUID(c, "project_id")
	if !ok {
		return
	}
	s.listContributions(c, contribution.Filter{UserID: userID, ProjectID: projectID})
}

func (s *APIServer) handleListUserContributions(c *gin.Context) {
	userID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	s.listContributions(c, contribution.Filter{UserID: &userID})
}

func (s *APIServer) handleListProjectContributions(c *gin.Context) {
	projectID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	s.listContributions(c, contribution.Filter{ProjectID: &projectID})
}

func (s *APIServer) listContributions(c *gin.Context, filter contribution.Filter) {
	skip, limit, ok := page(c)
	if !ok {
		return
	}
	if raw := c.Query("status"); raw != "" {
		status := models.ContributionStatus(raw)
		filter.Status = &status
	}

	list, err := s.svc.Contributions.List(c.Request.Context(), filter, skip, limit)
	if err != nil {
		respondError(c, err, "list_contributions")
		return
	}

	c.JSON(http.StatusOK, list)
}

// handleGetContribution returns a contribution with its related names
func (s *APIServer) handleGetContribution(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	details, err := s.svc.Contributions.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "get_contribution")
		return
	}

	c.JSON(http.StatusOK, details)
}

func (s *APIServer) handleVerifyContribution(c *gin.Context) {
	s.transition(c, models.ContributionStatusVerified)
}

func (s *APIServer) handleRejectContribution(c *gin.Context) {
	s.transition(c, models.ContributionStatusRejected)
}

// handleTransitionContribution moves a contribution to the status in the body
func (s *APIServer) handleTransitionContribution(c *gin.Context) {
	var req contribution.TransitionRequest
	if !bindJSON(c, &req) {
		return
	}
	s.transition(c, req.Status)
}

func (s *APIServer) transition(c *gin.Context, target models.ContributionStatus) {
	actorID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		middleware.RespondWithError(c, apierrors.ErrUnauthorizedError)
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	updated, err := s.svc.Contributions.Transition(c.Request.Context(), id, target, actorID)
	if err != nil {
		respondError(c, err, "transition_contribution")
		return
	}

	c.JSON(http.StatusOK, updated)
}

// handleListTokens lists reward tokens filtered by query parameters
func (s *APIServer) handleListTokens(c *gin.Context) {
	userID, ok := queryUUID(c, "user_id")
	if !ok {
		return
	}
	s.listTokens(c, userID)
}

func (s *APIServer) handleListUserTokens(c *gin.Context) {
	userID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	s.listTokens(c, &userID)
}

func (s *APIServer) listTokens(c *gin.Context, userID *uuid.UUID) {
	skip, limit, ok := page(c)
	if !ok {
		return
	}
	filter := store.TokenFilter{UserID: userID}
	if raw := c.Query("status"); raw != "" {
		status := models.TokenStatus(raw)
		filter.Status = &status
	}

	tokens, err := s.svc.Rewards.ListTokens(c.Request.Context(), filter, skip, limit)
	if err != nil {
		respondError(c, err, "list_tokens")
		return
	}

	c.JSON(http.StatusOK, tokens)
}

func (s *APIServer) handleGetToken(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	token, err := s.svc.Rewards.GetToken(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "get_token")
		return
	}

	c.JSON(http.StatusOK, token)
}

// handleRecordOutcome receives the ledger's settlement result for a token
func (s *APIServer) handleRecordOutcome(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var outcome reward.Outcome
	if !bindJSON(c, &outcome) {
		return
	}

	token, err := s.svc.Rewards.RecordOutcome(c.Request.Context(), id, outcome)
	if err != nil {
		respondError(c, err, "record_outcome")
		return
	}

	c.JSON(http.StatusOK, token)
}
