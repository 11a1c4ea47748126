package models

import (
	"time"

	"github.com/google/uuid"
)

// Badge is an award definition. The slug is fixed once created.
type Badge struct {
	ID              uuid.UUID `json:"id" db:"id"`
	Name            string    `json:"name" db:"name"`
	Slug            string    `json:"slug" db:"slug"`
	Description     *string   `json:"description,omitempty" db:"description"`
	ImageURL        *string   `json:"image_url,omitempty" db:"image_url"`
	Criteria        *string   `json:"criteria,omitempty" db:"criteria"`
	IsAchievement   bool      `json:"is_achievement" db:"is_achievement"`
	IsSkill         bool      `json:"is_skill" db:"is_skill"`
	IsContribution  bool      `json:"is_contribution" db:"is_contribution"`
	IsSoulBound     bool      `json:"is_soul_bound" db:"is_soul_bound"`
	ContractAddress *string   `json:"contract_address,omitempty" db:"contract_address"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// UserBadge records that a badge was awarded to a user
type UserBadge struct {
	ID              uuid.UUID `json:"id" db:"id"`
	UserID          uuid.UUID `json:"user_id" db:"user_id"`
	BadgeID         uuid.UUID `json:"badge_id" db:"badge_id"`
	IsVisible       bool      `json:"is_visible" db:"is_visible"`
	TransactionHash *string   `json:"transaction_hash,omitempty" db:"transaction_hash"`
	ChainTokenID    *int64    `json:"chain_token_id,omitempty" db:"chain_token_id"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// UserBadgeDetails is a user badge together with its badge definition
type UserBadgeDetails struct {
	UserBadge
	Badge Badge `json:"badge" db:"badge"`
}
