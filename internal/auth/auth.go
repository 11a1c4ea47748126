package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aimerfeng/ContribChain/internal/models"
	"github.com/aimerfeng/ContribChain/internal/monitoring"
	"github.com/aimerfeng/ContribChain/internal/store"
	"github.com/aimerfeng/ContribChain/internal/validation"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Service handles account and authentication operations
type Service struct {
	store  store.Store
	issuer *Issuer
}

// NewService creates a new auth service
func NewService(st store.Store, issuer *Issuer) *Service {
	return &Service{
		store:  st,
		issuer: issuer,
	}
}

// Issuer returns the token issuer used for sessions
func (s *Service) Issuer() *Issuer {
	return s.issuer
}

// RegisterRequest represents a registration request
type RegisterRequest struct {
	Email         string  `json:"email" validate:"required,email,max=255"`
	Username      string  `json:"username" validate:"required,min=3,max=64"`
	Password      string  `json:"password" validate:"required,min=8,max=128"`
	FullName      *string `json:"full_name,omitempty" validate:"omitempty,max=255"`
	WalletAddress *string `json:"wallet_address,omitempty" validate:"omitempty,max=128"`
}

// LoginRequest accepts either a username or an email in Username
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// ChangePasswordRequest represents a password change
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=128"`
}

// UpdateProfileRequest changes profile fields. Nil fields are left as they
// are and blank strings clear the field.
type UpdateProfileRequest struct {
	FullName      *string `json:"full_name,omitempty" validate:"omitempty,max=255"`
	Bio           *string `json:"bio,omitempty" validate:"omitempty,max=2000"`
	AvatarURL     *string `json:"avatar_url,omitempty" validate:"omitempty,url,max=512"`
	WalletAddress *string `json:"wallet_address,omitempty" validate:"omitempty,max=128"`
}

// TokenResponse is an issued session token
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// AuthResponse is returned by Register and Login
type AuthResponse struct {
	User  *models.User  `json:"user"`
	Token TokenResponse `json:"token"`
}

// Register creates a new user account and signs it in
func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error) {
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Username = strings.TrimSpace(req.Username)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	if _, err := s.store.GetUserByEmail(ctx, req.Email); err == nil {
		return nil, ErrEmailAlreadyExists
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to check email existence: %w", err)
	}

	if _, err := s.store.GetUserByUsername(ctx, req.Username); err == nil {
		return nil, ErrUsernameTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to check username existence: %w", err)
	}

	passwordHash, err := HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Email:         req.Email,
		Username:      req.Username,
		PasswordHash:  passwordHash,
		IsActive:      true,
		FullName:      req.FullName,
		WalletAddress: req.WalletAddress,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		// a concurrent registration won the race past the checks above
		switch {
		case store.IsUniqueViolation(err, "email"):
			return nil, ErrEmailAlreadyExists
		case store.IsUniqueViolation(err, "username"):
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	token, err := s.issueFor(user)
	if err != nil {
		return nil, err
	}

	log.Info().Str("user_id", user.ID.String()).Msg("User registered")
	return &AuthResponse{User: user, Token: *token}, nil
}

// Login authenticates a user by username or email
func (s *Service) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	user, err := s.findByLogin(ctx, req.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			monitoring.RecordLogin(false)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	match, err := VerifyPassword(req.Password, user.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !match {
		monitoring.RecordLogin(false)
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		monitoring.RecordLogin(false)
		return nil, ErrInactiveUser
	}

	token, err := s.issueFor(user)
	if err != nil {
		return nil, err
	}

	monitoring.RecordLogin(true)
	return &AuthResponse{User: user, Token: *token}, nil
}

// ChangePassword verifies the current password before replacing it
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, req *ChangePasswordRequest) error {
	if err := validation.Struct(req); err != nil {
		return err
	}

	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	match, err := VerifyPassword(req.CurrentPassword, user.PasswordHash)
	if err != nil {
		return err
	}
	if !match {
		return ErrInvalidCredentials
	}

	return s.SetPassword(ctx, userID, req.NewPassword)
}

// Deactivate disables a user account. Users are never deleted.
func (s *Service) Deactivate(ctx context.Context, userID uuid.UUID) error {
	if err := s.store.SetUserActive(ctx, userID, false); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to deactivate user: %w", err)
	}
	log.Info().Str("user_id", userID.String()).Msg("User deactivated")
	return nil
}

// UpdateProfile applies req to the user's profile and returns the stored user
func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, req *UpdateProfileRequest) (*models.User, error) {
	// blank values clear a field and skip its format checks
	check := *req
	for _, field := range []**string{&check.FullName, &check.Bio, &check.AvatarURL, &check.WalletAddress} {
		if *field == nil {
			continue
		}
		**field = strings.TrimSpace(**field)
		if **field == "" {
			*field = nil
		}
	}
	if err := validation.Struct(&check); err != nil {
		return nil, err
	}

	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	applyProfileField(&user.FullName, req.FullName)
	applyProfileField(&user.Bio, req.Bio)
	applyProfileField(&user.AvatarURL, req.AvatarURL)
	applyProfileField(&user.WalletAddress, req.WalletAddress)

	if err := s.store.UpdateUserProfile(ctx, user); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	log.Info().Str("user_id", userID.String()).Msg("Profile updated")
	return user, nil
}

// ListUsers lists accounts in registration order
func (s *Service) ListUsers(ctx context.Context, skip, limit int) ([]models.User, error) {
	users, err := s.store.ListUsers(ctx, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// GetUserByID retrieves a user by ID
func (s *Service) GetUserByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

func (s *Service) findByLogin(ctx context.Context, login string) (*models.User, error) {
	login = strings.TrimSpace(login)
	if strings.Contains(login, "@") {
		user, err := s.store.GetUserByEmail(ctx, strings.ToLower(login))
		if err == nil || !errors.Is(err, store.ErrNotFound) {
			return user, err
		}
	}
	return s.store.GetUserByUsername(ctx, login)
}

func (s *Service) issueFor(user *models.User) (*TokenResponse, error) {
	token, expiresAt, err := s.issuer.Issue(user.ID.String(), 0)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	return &TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
	}, nil
}

func applyProfileField(dst **string, value *string) {
	switch {
	case value == nil:
	case *value == "":
		*dst = nil
	default:
		v := *value
		*dst = &v
	}
}
