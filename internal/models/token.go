package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TokenType represents why reward tokens were minted
type TokenType string

const (
	TokenTypeContribution TokenType = "contribution"
	TokenTypeAchievement  TokenType = "achievement"
	TokenTypeReward       TokenType = "reward"
	TokenTypeInvestment   TokenType = "investment"
	TokenTypeOther        TokenType = "other"
)

// TokenStatus represents the settlement state of a mint on the ledger
type TokenStatus string

const (
	TokenStatusPending   TokenStatus = "pending"
	TokenStatusConfirmed TokenStatus = "confirmed"
	TokenStatusFailed    TokenStatus = "failed"
)

// IsTerminal reports whether the ledger outcome has been recorded
func (s TokenStatus) IsTerminal() bool {
	switch s {
	case TokenStatusConfirmed, TokenStatusFailed:
		return true
	case TokenStatusPending:
		return false
	default:
		return false
	}
}

// IsOutcome reports whether s may be reported by the ledger as a settlement result
func (s TokenStatus) IsOutcome() bool {
	return s == TokenStatusConfirmed || s == TokenStatusFailed
}

// Token is a reward-ledger record. It is unrelated to session tokens.
type Token struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	Amount          decimal.Decimal `json:"amount" db:"amount"`
	Type            TokenType       `json:"type" db:"type"`
	Status          TokenStatus     `json:"status" db:"status"`
	UserID          uuid.UUID       `json:"user_id" db:"user_id"`
	ContributionID  *uuid.UUID      `json:"contribution_id,omitempty" db:"contribution_id"`
	TransactionHash *string         `json:"transaction_hash,omitempty" db:"transaction_hash"`
	ContractAddress *string         `json:"contract_address,omitempty" db:"contract_address"`
	ChainTokenID    *int64          `json:"chain_token_id,omitempty" db:"chain_token_id"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
	SettledAt       *time.Time      `json:"settled_at,omitempty" db:"settled_at"`
}
