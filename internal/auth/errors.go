package auth

import (
	"errors"

	apperrors "github.com/aimerfeng/ContribChain/internal/errors"
)

// Auth-specific errors
var (
	ErrEmailAlreadyExists = apperrors.WithKind(apperrors.ErrConflict, "email already registered")
	ErrUsernameTaken      = apperrors.WithKind(apperrors.ErrConflict, "username already taken")
	ErrInvalidCredentials = apperrors.ErrInvalidCredentials
	ErrInactiveUser       = apperrors.ErrInactiveUser
	ErrInvalidToken       = apperrors.ErrInvalidToken
	ErrTokenExpired       = apperrors.WithKind(apperrors.ErrInvalidToken, "token has expired")
	ErrUserNotFound       = apperrors.WithKind(apperrors.ErrNotFound, "user not found")
	ErrInvalidHash        = errors.New("invalid password hash")
)
