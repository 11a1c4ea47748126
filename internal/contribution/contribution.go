// Package contribution manages the review lifecycle of submitted contributions.
package contribution

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/aimerfeng/ContribChain/internal/errors"
	"github.com/aimerfeng/ContribChain/internal/logging"
	"github.com/aimerfeng/ContribChain/internal/models"
	"github.com/aimerfeng/ContribChain/internal/monitoring"
	"github.com/aimerfeng/ContribChain/internal/reward"
	"github.com/aimerfeng/ContribChain/internal/store"
	"github.com/aimerfeng/ContribChain/internal/validation"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service errors
var (
	ErrContributionNotFound = apperrors.WithKind(apperrors.ErrNotFound, "contribution not found")
	ErrUserNotFound         = apperrors.WithKind(apperrors.ErrNotFound, "user not found")
	ErrProjectNotFound      = apperrors.WithKind(apperrors.ErrNotFound, "project not found")
	ErrTaskNotFound         = apperrors.WithKind(apperrors.ErrNotFound, "task not found")
	ErrSelfReview           = apperrors.WithKind(apperrors.ErrInvalidTransition, "contributors cannot review their own contribution")
)

// CreateRequest represents a contribution submission
type CreateRequest struct {
	UserID      uuid.UUID               `json:"user_id"`
	ProjectID   uuid.UUID               `json:"project_id"`
	TaskID      *uuid.UUID              `json:"task_id,omitempty"`
	Type        models.ContributionType `json:"type" validate:"required"`
	Value       decimal.Decimal         `json:"value" validate:"gte=0"`
	Title       string                  `json:"title" validate:"required,max=255"`
	Description *string                 `json:"description,omitempty"`
}

// TransitionRequest moves a contribution to a review outcome
type TransitionRequest struct {
	Status models.ContributionStatus `json:"status" validate:"required"`
}

// Filter narrows List. Nil fields match everything.
type Filter struct {
	UserID    *uuid.UUID
	ProjectID *uuid.UUID
	Status    *models.ContributionStatus
}

// Manager runs the contribution lifecycle
type Manager struct {
	store   store.Store
	rewards *reward.Engine
	now     func() time.Time
}

// Option configures a Manager
type Option func(*Manager)

// WithClock replaces the wall clock used for review timestamps
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a contribution manager
func NewManager(st store.Store, rewards *reward.Engine, opts ...Option) *Manager {
	m := &Manager{store: st, rewards: rewards, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create records a new pending contribution
func (m *Manager) Create(ctx context.Context, req *CreateRequest) (*models.Contribution, error) {
	req.Title = strings.TrimSpace(req.Title)
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	if _, err := m.store.GetUserByID(ctx, req.UserID); err != nil {
		return nil, notFound(err, ErrUserNotFound, "get user")
	}
	if _, err := m.store.GetProject(ctx, req.ProjectID); err != nil {
		return nil, notFound(err, ErrProjectNotFound, "get project")
	}
	if req.TaskID != nil {
		task, err := m.store.GetTask(ctx, *req.TaskID)
		if err != nil {
			return nil, notFound(err, ErrTaskNotFound, "get task")
		}
		if task.ProjectID != req.ProjectID {
			return nil, ErrTaskNotFound
		}
	}

	c := &models.Contribution{
		Title:       req.Title,
		Description: req.Description,
		Type:        req.Type,
		Status:      models.ContributionStatusPending,
		Value:       req.Value,
		UserID:      req.UserID,
		ProjectID:   req.ProjectID,
		TaskID:      req.TaskID,
	}
	if err := m.store.CreateContribution(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create contribution: %w", err)
	}

	monitoring.RecordContributionCreated(string(c.Type))
	return c, nil
}

// Transition moves a pending contribution to verified or rejected. Verifying
// issues the reward token in the same transaction. The actor must not be the
// contributor.
func (m *Manager) Transition(ctx context.Context, id uuid.UUID, target models.ContributionStatus, actorID uuid.UUID) (*models.Contribution, error) {
	if target != models.ContributionStatusVerified && target != models.ContributionStatusRejected {
		return nil, apperrors.NewFieldError("status", "must be one of: verified, rejected")
	}

	var (
		updated *models.Contribution
		token   *models.Token
		created bool
	)
	err := m.store.WithTx(ctx, func(q store.Querier) error {
		current, err := q.GetContribution(ctx, id)
		if err != nil {
			return notFound(err, ErrContributionNotFound, "get contribution")
		}
		if !current.Status.CanTransitionTo(target) {
			return invalidTransition(current.Status, target)
		}
		if current.UserID == actorID {
			return ErrSelfReview
		}

		ok, err := q.UpdateContributionStatus(ctx, id, current.Status, target, actorID, m.now())
		if err != nil {
			return fmt.Errorf("failed to update contribution status: %w", err)
		}
		if !ok {
			// reviewed concurrently after the read above
			latest, err := q.GetContribution(ctx, id)
			if err != nil {
				return fmt.Errorf("failed to reload contribution: %w", err)
			}
			return invalidTransition(latest.Status, target)
		}

		if target == models.ContributionStatusVerified {
			token, created, err = m.rewards.IssueForTx(ctx, q, id)
			if err != nil {
				return err
			}
		}

		updated, err = q.GetContribution(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to reload contribution: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	monitoring.RecordContributionTransition(string(target))
	logging.LogContributionTransition(id.String(), actorID.String(),
		string(models.ContributionStatusPending), string(target))
	if created {
		m.rewards.Issued(ctx, token)
	}
	return updated, nil
}

// Verify accepts a pending contribution and issues its reward
func (m *Manager) Verify(ctx context.Context, id, actorID uuid.UUID) (*models.Contribution, error) {
	return m.Transition(ctx, id, models.ContributionStatusVerified, actorID)
}

// Reject declines a pending contribution
func (m *Manager) Reject(ctx context.Context, id, actorID uuid.UUID) (*models.Contribution, error) {
	return m.Transition(ctx, id, models.ContributionStatusRejected, actorID)
}

// Get returns a contribution with the names of its user, project and task
func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*models.ContributionDetails, error) {
	d, err := m.store.GetContributionDetails(ctx, id)
	if err != nil {
		return nil, notFound(err, ErrContributionNotFound, "get contribution")
	}
	return d, nil
}

// List returns contributions newest first. Filtering by an unknown user or
// project fails with a not found error.
func (m *Manager) List(ctx context.Context, filter Filter, skip, limit int) ([]models.Contribution, error) {
	if filter.UserID != nil {
		if _, err := m.store.GetUserByID(ctx, *filter.UserID); err != nil {
			return nil, notFound(err, ErrUserNotFound, "get user")
		}
	}
	if filter.ProjectID != nil {
		if _, err := m.store.GetProject(ctx, *filter.ProjectID); err != nil {
			return nil, notFound(err, ErrProjectNotFound, "get project")
		}
	}
	if filter.Status != nil && !isStatus(*filter.Status) {
		return nil, apperrors.NewFieldError("status", "must be one of: pending, verified, rejected")
	}
	if skip < 0 {
		return nil, apperrors.NewFieldError("skip", "must be greater than or equal to 0")
	}

	contributions, err := m.store.ListContributions(ctx, store.ContributionFilter{
		UserID:    filter.UserID,
		ProjectID: filter.ProjectID,
		Status:    filter.Status,
	}, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list contributions: %w", err)
	}
	return contributions, nil
}

func validateCreate(req *CreateRequest) error {
	fields := map[string]string{}
	if err := validation.Struct(req); err != nil {
		var verr *apperrors.ValidationError
		if !errors.As(err, &verr) {
			return err
		}
		for k, v := range verr.Fields {
			fields[k] = v
		}
	}
	if req.UserID == uuid.Nil {
		fields["user_id"] = "is required"
	}
	if req.ProjectID == uuid.Nil {
		fields["project_id"] = "is required"
	}
	if _, bad := fields["type"]; !bad && !req.Type.Valid() {
		fields["type"] = "must be one of: code, design, documentation, testing, review, financial, other"
	}
	switch {
	case req.Value.IsNegative():
		fields["value"] = "must be greater than or equal to 0"
	case !req.Value.LessThan(models.MaxAmount):
		fields["value"] = "must be less than 1e18"
	case !req.Value.Equal(req.Value.Truncate(models.AmountScale)):
		fields["value"] = "must have at most 18 decimal places"
	}
	if len(fields) > 0 {
		return &apperrors.ValidationError{Fields: fields}
	}
	return nil
}

func invalidTransition(from, to models.ContributionStatus) error {
	return apperrors.WithKind(apperrors.ErrInvalidTransition,
		fmt.Sprintf("cannot move contribution from %s to %s", from, to))
}

// notFound maps store.ErrNotFound to kind and wraps anything else
func notFound(err error, kind error, op string) error {
	if errors.Is(err, store.ErrNotFound) {
		return kind
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func isStatus(s models.ContributionStatus) bool {
	switch s {
	case models.ContributionStatusPending, models.ContributionStatusVerified, models.ContributionStatusRejected:
		return true
	default:
		return false
	}
}
