package server

import (
	"net/http"

	"github.com/aimerfeng/ContribChain/internal/badge"
	apierrors "github.com/aimerfeng/ContribChain/internal/errors"
	"github.com/aimerfeng/ContribChain/internal/middleware"
	"github.com/aimerfeng/ContribChain/internal/project"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func (s *APIServer) handleCreateProject(c *gin.Context) {
	var req project.CreateProjectRequest
	if !bindJSON(c, &req) {
		return
	}

	p, err := s.svc.Projects.CreateProject(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err, "create_project")
		return
	}

	c.JSON(http.StatusCreated, p)
}

func (s *APIServer) handleListProjects(c *gin.Context) {
	skip, limit, ok := page(c)
	if !ok {
		return
	}

	projects, err := s.svc.Projects.ListProjects(c.Request.Context(), skip, limit)
	if err != nil {
		respondError(c, err, "list_projects")
		return
	}

	c.JSON(http.StatusOK, projects)
}

func (s *APIServer) handleGetProject(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	p, err := s.svc.Projects.GetProject(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "get_project")
		return
	}

	c.JSON(http.StatusOK, p)
}

func (s *APIServer) handleUpdateProject(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req project.UpdateProjectRequest
	if !bindJSON(c, &req) {
		return
	}

	p, err := s.svc.Projects.UpdateProject(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, err, "update_project")
		return
	}

	c.JSON(http.StatusOK, p)
}

func (s *APIServer) handleCreateTask(c *gin.Context) {
	projectID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req project.CreateTaskRequest
	if !bindJSON(c, &req) {
		return
	}

	task, err := s.svc.Projects.CreateTask(c.Request.Context(), projectID, &req)
	if err != nil {
		respondError(c, err, "create_task")
		return
	}

	c.JSON(http.StatusCreated, task)
}

// handleUpdateTask changes a task of the project in the path
func (s *APIServer) handleUpdateTask(c *gin.Context) {
	projectID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	taskID, ok := pathUUID(c, "task_id")
	if !ok {
		return
	}

	var req project.UpdateTaskRequest
	if !bindJSON(c, &req) {
		return
	}

	task, err := s.svc.Projects.UpdateTask(c.Request.Context(), projectID, taskID, &req)
	if err != nil {
		respondError(c, err, "update_task")
		return
	}

	c.JSON(http.StatusOK, task)
}

func (s *APIServer) handleListTasks(c *gin.Context) {
	projectID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	tasks, err := s.svc.Projects.ListTasks(c.Request.Context(), projectID)
	if err != nil {
		respondError(c, err, "list_tasks")
		return
	}

	c.JSON(http.StatusOK, tasks)
}

func (s *APIServer) handleGetTask(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	task, err := s.svc.Projects.GetTask(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "get_task")
		return
	}

	c.JSON(http.StatusOK, task)
}

func (s *APIServer) handleCreateBadge(c *gin.Context) {
	var req badge.CreateBadgeRequest
	if !bindJSON(c, &req) {
		return
	}

	b, err := s.svc.Badges.CreateBadge(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err, "create_badge")
		return
	}

	c.JSON(http.StatusCreated, b)
}

func (s *APIServer) handleListBadges(c *gin.Context) {
	skip, limit, ok := page(c)
	if !ok {
		return
	}

	badges, err := s.svc.Badges.ListBadges(c.Request.Context(), skip, limit)
	if err != nil {
		respondError(c, err, "list_badges")
		return
	}

	c.JSON(http.StatusOK, badges)
}

func (s *APIServer) handleGetBadge(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	b, err := s.svc.Badges.GetBadge(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "get_badge")
		return
	}

	c.JSON(http.StatusOK, b)
}

func (s *APIServer) handleUpdateBadge(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req badge.UpdateBadgeRequest
	if !bindJSON(c, &req) {
		return
	}

	b, err := s.svc.Badges.UpdateBadge(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, err, "update_badge")
		return
	}

	c.JSON(http.StatusOK, b)
}

func (s *APIServer) handleGetBadgeBySlug(c *gin.Context) {
	b, err := s.svc.Badges.GetBadgeBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		respondError(c, err, "get_badge_by_slug")
		return
	}

	c.JSON(http.StatusOK, b)
}

// handleAwardBadge awards the badge in the path to the user in the body
func (s *APIServer) handleAwardBadge(c *gin.Context) {
	badgeID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req badge.AwardRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.UserID == uuid.Nil {
		middleware.RespondWithError(c, apierrors.NewValidationError(map[string]string{"user_id": "is required"}))
		return
	}

	ub, err := s.svc.Badges.Award(c.Request.Context(), req.UserID, badgeID)
	if err != nil {
		respondError(c, err, "award_badge")
		return
	}

	c.JSON(http.StatusCreated, ub)
}

func (s *APIServer) handleListUserBadges(c *gin.Context) {
	userID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	badges, err := s.svc.Badges.ListUserBadges(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "list_user_badges")
		return
	}

	c.JSON(http.StatusOK, badges)
}

// handleRecordIssuance attaches the on-chain proof to an award
func (s *APIServer) handleRecordIssuance(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req badge.IssuanceRequest
	if !bindJSON(c, &req) {
		return
	}

	ub, err := s.svc.Badges.RecordIssuance(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, err, "record_issuance")
		return
	}

	c.JSON(http.StatusOK, ub)
}

func (s *APIServer) handleSetVisibility(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req badge.VisibilityRequest
	if !bindJSON(c, &req) {
		return
	}

	ub, err := s.svc.Badges.SetVisibility(c.Request.Context(), id, req.IsVisible)
	if err != nil {
		respondError(c, err, "set_visibility")
		return
	}

	c.JSON(http.StatusOK, ub)
}
