package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents a contributor account
type User struct {
	ID            uuid.UUID `json:"id" db:"id"`
	Email         string    `json:"email" db:"email"`
	Username      string    `json:"username" db:"username"`
	PasswordHash  string    `json:"-" db:"password_hash"`
	IsActive      bool      `json:"is_active" db:"is_active"`
	IsVerified    bool      `json:"is_verified" db:"is_verified"`
	FullName      *string   `json:"full_name,omitempty" db:"full_name"`
	Bio           *string   `json:"bio,omitempty" db:"bio"`
	AvatarURL     *string   `json:"avatar_url,omitempty" db:"avatar_url"`
	WalletAddress *string   `json:"wallet_address,omitempty" db:"wallet_address"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// DisplayName returns the full name when set, otherwise the username
func (u *User) DisplayName() string {
	if u.FullName != nil && *u.FullName != "" {
		return *u.FullName
	}
	return u.Username
}
