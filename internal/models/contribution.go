package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ContributionType represents the kind of work contributed
type ContributionType string

const (
	ContributionTypeCode          ContributionType = "code"
	ContributionTypeDesign        ContributionType = "design"
	ContributionTypeDocumentation ContributionType = "documentation"
	ContributionTypeTesting       ContributionType = "testing"
	ContributionTypeReview        ContributionType = "review"
	ContributionTypeFinancial     ContributionType = "financial"
	ContributionTypeOther         ContributionType = "other"
)

// ContributionTypes lists every accepted contribution type
var ContributionTypes = []ContributionType{
	ContributionTypeCode,
	ContributionTypeDesign,
	ContributionTypeDocumentation,
	ContributionTypeTesting,
	ContributionTypeReview,
	ContributionTypeFinancial,
	ContributionTypeOther,
}

// Valid reports whether t is a known contribution type
func (t ContributionType) Valid() bool {
	for _, known := range ContributionTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Values and reward amounts are stored as NUMERIC(36, 18)
const AmountScale = 18

// MaxAmount is the exclusive upper bound of a stored value or reward amount
var MaxAmount = decimal.New(1, 18)

// ContributionStatus represents the verification state of a contribution
type ContributionStatus string

const (
	ContributionStatusPending  ContributionStatus = "pending"
	ContributionStatusVerified ContributionStatus = "verified"
	ContributionStatusRejected ContributionStatus = "rejected"
)

// IsTerminal reports whether no transition can leave the status
func (s ContributionStatus) IsTerminal() bool {
	switch s {
	case ContributionStatusVerified, ContributionStatusRejected:
		return true
	case ContributionStatusPending:
		return false
	default:
		return false
	}
}

// CanTransitionTo reports whether moving from s to target is allowed.
// Only pending -> verified and pending -> rejected exist.
func (s ContributionStatus) CanTransitionTo(target ContributionStatus) bool {
	switch s {
	case ContributionStatusPending:
		return target == ContributionStatusVerified || target == ContributionStatusRejected
	case ContributionStatusVerified, ContributionStatusRejected:
		return false
	default:
		return false
	}
}

// Contribution represents a unit of work submitted against a project
type Contribution struct {
	ID              uuid.UUID           `json:"id" db:"id"`
	Title           string              `json:"title" db:"title"`
	Description     *string             `json:"description,omitempty" db:"description"`
	Type            ContributionType    `json:"type" db:"type"`
	Status          ContributionStatus  `json:"status" db:"status"`
	Value           decimal.Decimal     `json:"value" db:"value"`
	UserID          uuid.UUID           `json:"user_id" db:"user_id"`
	ProjectID       uuid.UUID           `json:"project_id" db:"project_id"`
	TaskID          *uuid.UUID          `json:"task_id,omitempty" db:"task_id"`
	TransactionHash *string             `json:"transaction_hash,omitempty" db:"transaction_hash"`
	TokenAmount     decimal.NullDecimal `json:"token_amount" db:"token_amount"`
	ReviewedBy      *uuid.UUID          `json:"reviewed_by,omitempty" db:"reviewed_by"`
	ReviewedAt      *time.Time          `json:"reviewed_at,omitempty" db:"reviewed_at"`
	CreatedAt       time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at" db:"updated_at"`
}

// ContributionDetails is a contribution joined with display names of its references
type ContributionDetails struct {
	Contribution
	UserName    string  `json:"user_name" db:"user_name"`
	ProjectName string  `json:"project_name" db:"project_name"`
	TaskTitle   *string `json:"task_title,omitempty" db:"task_title"`
}
