// Package badge defines badges and awards them to users.
package badge

import (
	"context"
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/aimerfeng/ContribChain/internal/errors"
	"github.com/aimerfeng/ContribChain/internal/logging"
	"github.com/aimerfeng/ContribChain/internal/models"
	"github.com/aimerfeng/ContribChain/internal/monitoring"
	"github.com/aimerfeng/ContribChain/internal/store"
	"github.com/aimerfeng/ContribChain/internal/validation"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

// Service errors
var (
	ErrBadgeNotFound     = apperrors.WithKind(apperrors.ErrNotFound, "badge not found")
	ErrUserBadgeNotFound = apperrors.WithKind(apperrors.ErrNotFound, "user badge not found")
	ErrUserNotFound      = apperrors.WithKind(apperrors.ErrNotFound, "user not found")
	ErrAlreadyAwarded    = apperrors.WithKind(apperrors.ErrAlreadyAwarded, "user already has this badge")
	ErrBadgeNameTaken    = apperrors.WithKind(apperrors.ErrConflict, "badge name already exists")
	ErrBadgeSlugTaken    = apperrors.WithKind(apperrors.ErrConflict, "badge slug already exists")
)

// CreateBadgeRequest defines a new badge. Slug is derived from Name when empty.
type CreateBadgeRequest struct {
	Name            string  `json:"name" validate:"required,max=100"`
	Slug            string  `json:"slug,omitempty" validate:"max=120"`
	Description     *string `json:"description,omitempty"`
	ImageURL        *string `json:"image_url,omitempty" validate:"omitempty,url"`
	Criteria        *string `json:"criteria,omitempty"`
	IsAchievement   bool    `json:"is_achievement"`
	IsSkill         bool    `json:"is_skill"`
	IsContribution  bool    `json:"is_contribution"`
	IsSoulBound     *bool   `json:"is_soul_bound,omitempty"`
	ContractAddress *string `json:"contract_address,omitempty"`
}

// UpdateBadgeRequest changes a badge definition. Nil fields are left as they
// are; the slug cannot change.
type UpdateBadgeRequest struct {
	Name            *string `json:"name,omitempty" validate:"omitempty,max=100"`
	Description     *string `json:"description,omitempty"`
	ImageURL        *string `json:"image_url,omitempty" validate:"omitempty,url"`
	Criteria        *string `json:"criteria,omitempty"`
	IsAchievement   *bool   `json:"is_achievement,omitempty"`
	IsSkill         *bool   `json:"is_skill,omitempty"`
	IsContribution  *bool   `json:"is_contribution,omitempty"`
	IsSoulBound     *bool   `json:"is_soul_bound,omitempty"`
	ContractAddress *string `json:"contract_address,omitempty"`
}

// AwardRequest names the user receiving a badge
type AwardRequest struct {
	UserID uuid.UUID `json:"user_id"`
}

// IssuanceRequest carries the on-chain proof of an award
type IssuanceRequest struct {
	TransactionHash string `json:"transaction_hash" validate:"required"`
	ChainTokenID    *int64 `json:"chain_token_id,omitempty"`
}

// VisibilityRequest toggles whether an award is shown publicly
type VisibilityRequest struct {
	IsVisible bool `json:"is_visible"`
}

// Service awards badges
type Service struct {
	store store.Store
}

// NewService creates a badge service
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// CreateBadge stores a badge definition
func (s *Service) CreateBadge(ctx context.Context, req *CreateBadgeRequest) (*models.Badge, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	badgeSlug := slug.Make(req.Slug)
	if badgeSlug == "" {
		badgeSlug = slug.Make(req.Name)
	}
	if badgeSlug == "" {
		return nil, apperrors.NewFieldError("slug", "must contain at least one letter or digit")
	}

	soulBound := true
	if req.IsSoulBound != nil {
		soulBound = *req.IsSoulBound
	}

	b := &models.Badge{
		Name:            req.Name,
		Slug:            badgeSlug,
		Description:     req.Description,
		ImageURL:        req.ImageURL,
		Criteria:        req.Criteria,
		IsAchievement:   req.IsAchievement,
		IsSkill:         req.IsSkill,
		IsContribution:  req.IsContribution,
		IsSoulBound:     soulBound,
		ContractAddress: req.ContractAddress,
	}
	if err := s.store.CreateBadge(ctx, b); err != nil {
		switch {
		case store.IsUniqueViolation(err, "name"):
			return nil, ErrBadgeNameTaken
		case store.IsUniqueViolation(err, "slug"):
			return nil, ErrBadgeSlugTaken
		}
		return nil, fmt.Errorf("failed to create badge: %w", err)
	}
	return b, nil
}

// GetBadge returns a badge by id
func (s *Service) GetBadge(ctx context.Context, id uuid.UUID) (*models.Badge, error) {
	b, err := s.store.GetBadge(ctx, id)
	if err != nil {
		return nil, notFound(err, ErrBadgeNotFound, "get badge")
	}
	return b, nil
}

// GetBadgeBySlug returns a badge by slug
func (s *Service) GetBadgeBySlug(ctx context.Context, badgeSlug string) (*models.Badge, error) {
	b, err := s.store.GetBadgeBySlug(ctx, strings.ToLower(strings.TrimSpace(badgeSlug)))
	if err != nil {
		return nil, notFound(err, ErrBadgeNotFound, "get badge")
	}
	return b, nil
}

// UpdateBadge applies req to a badge definition. Existing awards keep
// pointing at the badge.
func (s *Service) UpdateBadge(ctx context.Context, id uuid.UUID, req *UpdateBadgeRequest) (*models.Badge, error) {
	if req.Name != nil {
		*req.Name = strings.TrimSpace(*req.Name)
		if *req.Name == "" {
			return nil, apperrors.NewFieldError("name", "is required")
		}
	}
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	b, err := s.GetBadge(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		b.Name = *req.Name
	}
	if req.Description != nil {
		b.Description = req.Description
	}
	if req.ImageURL != nil {
		b.ImageURL = req.ImageURL
	}
	if req.Criteria != nil {
		b.Criteria = req.Criteria
	}
	if req.IsAchievement != nil {
		b.IsAchievement = *req.IsAchievement
	}
	if req.IsSkill != nil {
		b.IsSkill = *req.IsSkill
	}
	if req.IsContribution != nil {
		b.IsContribution = *req.IsContribution
	}
	if req.IsSoulBound != nil {
		b.IsSoulBound = *req.IsSoulBound
	}
	if req.ContractAddress != nil {
		b.ContractAddress = req.ContractAddress
	}

	if err := s.store.UpdateBadge(ctx, b); err != nil {
		if store.IsUniqueViolation(err, "name") {
			return nil, ErrBadgeNameTaken
		}
		return nil, notFound(err, ErrBadgeNotFound, "update badge")
	}
	return b, nil
}

// ListBadges lists badge definitions by name
func (s *Service) ListBadges(ctx context.Context, skip, limit int) ([]models.Badge, error) {
	badges, err := s.store.ListBadges(ctx, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list badges: %w", err)
	}
	return badges, nil
}

// Award gives badgeID to userID. A pair is awarded at most once and never overwritten.
func (s *Service) Award(ctx context.Context, userID, badgeID uuid.UUID) (*models.UserBadge, error) {
	if _, err := s.store.GetUserByID(ctx, userID); err != nil {
		return nil, notFound(err, ErrUserNotFound, "get user")
	}
	if _, err := s.store.GetBadge(ctx, badgeID); err != nil {
		return nil, notFound(err, ErrBadgeNotFound, "get badge")
	}

	if _, err := s.store.GetUserBadgeByPair(ctx, userID, badgeID); err == nil {
		return nil, ErrAlreadyAwarded
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to check existing award: %w", err)
	}

	ub := &models.UserBadge{UserID: userID, BadgeID: badgeID, IsVisible: true}
	if err := s.store.CreateUserBadge(ctx, ub); err != nil {
		// a concurrent award won the race past the check above
		if store.IsUniqueViolation(err, "") {
			return nil, ErrAlreadyAwarded
		}
		return nil, fmt.Errorf("failed to award badge: %w", err)
	}

	monitoring.RecordBadgeAwarded()
	logging.LogBadgeAwarded(ub.ID.String(), userID.String(), badgeID.String())
	return ub, nil
}

// RecordIssuance attaches the on-chain proof to an award
func (s *Service) RecordIssuance(ctx context.Context, userBadgeID uuid.UUID, req *IssuanceRequest) (*models.UserBadge, error) {
	req.TransactionHash = strings.TrimSpace(req.TransactionHash)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	if err := s.store.SetUserBadgeIssuance(ctx, userBadgeID, req.TransactionHash, req.ChainTokenID); err != nil {
		return nil, notFound(err, ErrUserBadgeNotFound, "record badge issuance")
	}
	return s.getUserBadge(ctx, userBadgeID)
}

// ListUserBadges returns a user's awards with their badge definitions
func (s *Service) ListUserBadges(ctx context.Context, userID uuid.UUID) ([]models.UserBadgeDetails, error) {
	if _, err := s.store.GetUserByID(ctx, userID); err != nil {
		return nil, notFound(err, ErrUserNotFound, "get user")
	}
	badges, err := s.store.ListUserBadges(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user badges: %w", err)
	}
	return badges, nil
}

// SetVisibility shows or hides an award
func (s *Service) SetVisibility(ctx context.Context, userBadgeID uuid.UUID, visible bool) (*models.UserBadge, error) {
	if err := s.store.SetUserBadgeVisibility(ctx, userBadgeID, visible); err != nil {
		return nil, notFound(err, ErrUserBadgeNotFound, "set badge visibility")
	}
	return s.getUserBadge(ctx, userBadgeID)
}

func (s *Service) getUserBadge(ctx context.Context, id uuid.UUID) (*models.UserBadge, error) {
	ub, err := s.store.GetUserBadge(ctx, id)
	if err != nil {
		return nil, notFound(err, ErrUserBadgeNotFound, "get user badge")
	}
	return ub, nil
}

func notFound(err error, kind error, op string) error {
	if errors.Is(err, store.ErrNotFound) {
		return kind
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
