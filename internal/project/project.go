// Package project manages projects and the tasks contributions can reference.
package project

import (
	"context"
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/aimerfeng/ContribChain/internal/errors"
	"github.com/aimerfeng/ContribChain/internal/models"
	"github.com/aimerfeng/ContribChain/internal/store"
	"github.com/aimerfeng/ContribChain/internal/validation"
	"github.com/google/uuid"
)

// Service errors
var (
	ErrProjectNotFound = apperrors.WithKind(apperrors.ErrNotFound, "project not found")
	ErrTaskNotFound    = apperrors.WithKind(apperrors.ErrNotFound, "task not found")
	ErrUserNotFound    = apperrors.WithKind(apperrors.ErrNotFound, "user not found")
)

// CreateProjectRequest represents a project creation request
type CreateProjectRequest struct {
	Name          string  `json:"name" validate:"required,max=200"`
	Description   *string `json:"description,omitempty"`
	RepositoryURL *string `json:"repository_url,omitempty" validate:"omitempty,url"`
}

// CreateTaskRequest represents a task creation request
type CreateTaskRequest struct {
	Title       string     `json:"title" validate:"required,max=255"`
	Description *string    `json:"description,omitempty"`
	Status      string     `json:"status,omitempty" validate:"omitempty,oneof=pending in_progress done"`
	AssigneeID  *uuid.UUID `json:"assignee_id,omitempty"`
}

// UpdateProjectRequest changes a project. Nil fields are left as they are.
type UpdateProjectRequest struct {
	Name          *string `json:"name,omitempty" validate:"omitempty,max=200"`
	Description   *string `json:"description,omitempty"`
	RepositoryURL *string `json:"repository_url,omitempty" validate:"omitempty,url"`
	IsActive      *bool   `json:"is_active,omitempty"`
}

// UpdateTaskRequest changes a task. Nil fields are left as they are.
type UpdateTaskRequest struct {
	Title       *string    `json:"title,omitempty" validate:"omitempty,max=255"`
	Description *string    `json:"description,omitempty"`
	Status      *string    `json:"status,omitempty" validate:"omitempty,oneof=pending in_progress done"`
	AssigneeID  *uuid.UUID `json:"assignee_id,omitempty"`
}

// Service handles project and task operations
type Service struct {
	store store.Store
}

// NewService creates a project service
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// CreateProject creates an active project
func (s *Service) CreateProject(ctx context.Context, req *CreateProjectRequest) (*models.Project, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	p := &models.Project{
		Name:          req.Name,
		Description:   req.Description,
		RepositoryURL: req.RepositoryURL,
		IsActive:      true,
	}
	if err := s.store.CreateProject(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	return p, nil
}

// GetProject returns a project by id
func (s *Service) GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	p, err := s.store.GetProject(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return p, nil
}

// ListProjects lists projects newest first
func (s *Service) ListProjects(ctx context.Context, skip, limit int) ([]models.Project, error) {
	projects, err := s.store.ListProjects(ctx, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return projects, nil
}

// UpdateProject applies req to a project and returns the stored project
func (s *Service) UpdateProject(ctx context.Context, id uuid.UUID, req *UpdateProjectRequest) (*models.Project, error) {
	if req.Name != nil {
		*req.Name = strings.TrimSpace(*req.Name)
		if *req.Name == "" {
			return nil, apperrors.NewFieldError("name", "is required")
		}
	}
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	p, err := s.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.Description != nil {
		p.Description = req.Description
	}
	if req.RepositoryURL != nil {
		p.RepositoryURL = req.RepositoryURL
	}
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}

	if err := s.store.UpdateProject(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to update project: %w", err)
	}
	return p, nil
}

// CreateTask adds a task to a project
func (s *Service) CreateTask(ctx context.Context, projectID uuid.UUID, req *CreateTaskRequest) (*models.Task, error) {
	req.Title = strings.TrimSpace(req.Title)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if _, err := s.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	if req.AssigneeID != nil {
		if err := s.checkAssignee(ctx, *req.AssigneeID); err != nil {
			return nil, err
		}
	}

	t := &models.Task{
		ProjectID:   projectID,
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		AssigneeID:  req.AssigneeID,
	}
	if err := s.store.CreateTask(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	return t, nil
}

// GetTask returns a task by id
func (s *Service) GetTask(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	t, err := s.store.GetTask(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

// UpdateTask applies req to a task of projectID. A task of another project
// is reported as not found.
func (s *Service) UpdateTask(ctx context.Context, projectID, taskID uuid.UUID, req *UpdateTaskRequest) (*models.Task, error) {
	if req.Title != nil {
		*req.Title = strings.TrimSpace(*req.Title)
		if *req.Title == "" {
			return nil, apperrors.NewFieldError("title", "is required")
		}
	}
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	if _, err := s.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	t, err := s.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.ProjectID != projectID {
		return nil, ErrTaskNotFound
	}
	if req.AssigneeID != nil {
		if err := s.checkAssignee(ctx, *req.AssigneeID); err != nil {
			return nil, err
		}
		t.AssigneeID = req.AssigneeID
	}
	if req.Title != nil {
		t.Title = *req.Title
	}
	if req.Description != nil {
		t.Description = req.Description
	}
	if req.Status != nil {
		t.Status = *req.Status
	}

	if err := s.store.UpdateTask(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	return t, nil
}

// ListTasks lists the tasks of a project in creation order
func (s *Service) ListTasks(ctx context.Context, projectID uuid.UUID) ([]models.Task, error) {
	if _, err := s.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	tasks, err := s.store.ListTasks(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

func (s *Service) checkAssignee(ctx context.Context, userID uuid.UUID) error {
	if _, err := s.store.GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to get assignee: %w", err)
	}
	return nil
}
