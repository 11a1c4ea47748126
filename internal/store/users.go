package store

import (
	"context"

	"github.com/aimerfeng/ContribChain/internal/models"
	"github.com/google/uuid"
)

const userColumns = `id, email, username, password_hash, is_active, is_verified,
	full_name, bio, avatar_url, wallet_address, created_at, updated_at`

// CreateUser inserts a user. ID and timestamps are filled in when empty.
func (q *queries) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	now := q.timestamp()
	u.CreatedAt, u.UpdatedAt = now, now

	_, err := q.exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.Username, u.PasswordHash, u.IsActive, u.IsVerified,
		u.FullName, u.Bio, u.AvatarURL, u.WalletAddress, u.CreatedAt, u.UpdatedAt,
	)
	return err
}

func (q *queries) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	if err := q.get(ctx, &u, `SELECT `+userColumns+` FROM users WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return &u, nil
}

func (q *queries) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := q.get(ctx, &u, `SELECT `+userColumns+` FROM users WHERE email = ?`, email); err != nil {
		return nil, err
	}
	return &u, nil
}

func (q *queries) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	if err := q.get(ctx, &u, `SELECT `+userColumns+` FROM users WHERE username = ?`, username); err != nil {
		return nil, err
	}
	return &u, nil
}

func (q *queries) UpdateUserPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return q.execOne(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		passwordHash, q.timestamp(), id,
	)
}

func (q *queries) SetUserActive(ctx context.Context, id uuid.UUID, active bool) error {
	return q.execOne(ctx,
		`UPDATE users SET is_active = ?, updated_at = ? WHERE id = ?`,
		active, q.timestamp(), id,
	)
}

// UpdateUserProfile writes the profile fields of u and refreshes UpdatedAt
func (q *queries) UpdateUserProfile(ctx context.Context, u *models.User) error {
	u.UpdatedAt = q.timestamp()
	return q.execOne(ctx, `
		UPDATE users SET full_name = ?, bio = ?, avatar_url = ?, wallet_address = ?, updated_at = ?
		WHERE id = ?`,
		u.FullName, u.Bio, u.AvatarURL, u.WalletAddress, u.UpdatedAt, u.ID,
	)
}

func (q *queries) ListUsers(ctx context.Context, skip, limit int) ([]models.User, error) {
	skip, limit = ClampPage(skip, limit)
	users := []models.User{}
	err := q.selectAll(ctx, &users, `
		SELECT `+userColumns+` FROM users
		ORDER BY created_at, id
		LIMIT ? OFFSET ?`, limit, skip)
	return users, err
}
