package store

import (
	"context"

	"github.com/aimerfeng/ContribChain/internal/models"
	"github.com/google/uuid"
)

const (
	badgeColumns = `id, name, slug, description, image_url, criteria, is_achievement, is_skill,
	is_contribution, is_soul_bound, contract_address, created_at, updated_at`
	userBadgeColumns = `id, user_id, badge_id, is_visible, transaction_hash, chain_token_id, created_at, updated_at`
)

func (q *queries) CreateBadge(ctx context.Context, b *models.Badge) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	now := q.timestamp()
	b.CreatedAt, b.UpdatedAt = now, now

	_, err := q.exec(ctx, `
		INSERT INTO badges (`+badgeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Name, b.Slug, b.Description, b.ImageURL, b.Criteria, b.IsAchievement, b.IsSkill,
		b.IsContribution, b.IsSoulBound, b.ContractAddress, b.CreatedAt, b.UpdatedAt,
	)
	return err
}

func (q *queries) GetBadge(ctx context.Context, id uuid.UUID) (*models.Badge, error) {
	var b models.Badge
	if err := q.get(ctx, &b, `SELECT `+badgeColumns+` FROM badges WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return &b, nil
}

func (q *queries) GetBadgeBySlug(ctx context.Context, slug string) (*models.Badge, error) {
	var b models.Badge
	if err := q.get(ctx, &b, `SELECT `+badgeColumns+` FROM badges WHERE slug = ?`, slug); err != nil {
		return nil, err
	}
	return &b, nil
}

func (q *queries) ListBadges(ctx context.Context, skip, limit int) ([]models.Badge, error) {
	skip, limit = ClampPage(skip, limit)
	badges := []models.Badge{}
	err := q.selectAll(ctx, &badges, `
		SELECT `+badgeColumns+` FROM badges
		ORDER BY name
		LIMIT ? OFFSET ?`, limit, skip)
	return badges, err
}

// UpdateBadge writes the descriptive fields of b. The slug is fixed at creation.
func (q *queries) UpdateBadge(ctx context.Context, b *models.Badge) error {
	b.UpdatedAt = q.timestamp()
	return q.execOne(ctx, `
		UPDATE badges SET name = ?, description = ?, image_url = ?, criteria = ?, is_achievement = ?,
			is_skill = ?, is_contribution = ?, is_soul_bound = ?, contract_address = ?, updated_at = ?
		WHERE id = ?`,
		b.Name, b.Description, b.ImageURL, b.Criteria, b.IsAchievement,
		b.IsSkill, b.IsContribution, b.IsSoulBound, b.ContractAddress, b.UpdatedAt, b.ID,
	)
}

// CreateUserBadge records an award. A repeated (user, badge) pair fails with a ConstraintError.
func (q *queries) CreateUserBadge(ctx context.Context, ub *models.UserBadge) error {
	if ub.ID == uuid.Nil {
		ub.ID = uuid.New()
	}
	now := q.timestamp()
	ub.CreatedAt, ub.UpdatedAt = now, now

	_, err := q.exec(ctx, `
		INSERT INTO user_badges (`+userBadgeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ub.ID, ub.UserID, ub.BadgeID, ub.IsVisible, ub.TransactionHash, ub.ChainTokenID, ub.CreatedAt, ub.UpdatedAt,
	)
	return err
}

func (q *queries) GetUserBadge(ctx context.Context, id uuid.UUID) (*models.UserBadge, error) {
	var ub models.UserBadge
	if err := q.get(ctx, &ub, `SELECT `+userBadgeColumns+` FROM user_badges WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return &ub, nil
}

func (q *queries) GetUserBadgeByPair(ctx context.Context, userID, badgeID uuid.UUID) (*models.UserBadge, error) {
	var ub models.UserBadge
	err := q.get(ctx, &ub,
		`SELECT `+userBadgeColumns+` FROM user_badges WHERE user_id = ? AND badge_id = ?`,
		userID, badgeID,
	)
	if err != nil {
		return nil, err
	}
	return &ub, nil
}

func (q *queries) ListUserBadges(ctx context.Context, userID uuid.UUID) ([]models.UserBadgeDetails, error) {
	badges := []models.UserBadgeDetails{}
	err := q.selectAll(ctx, &badges, `
		SELECT ub.id, ub.user_id, ub.badge_id, ub.is_visible, ub.transaction_hash, ub.chain_token_id,
			ub.created_at, ub.updated_at,
			b.id AS "badge.id",
			b.name AS "badge.name",
			b.slug AS "badge.slug",
			b.description AS "badge.description",
			b.image_url AS "badge.image_url",
			b.criteria AS "badge.criteria",
			b.is_achievement AS "badge.is_achievement",
			b.is_skill AS "badge.is_skill",
			b.is_contribution AS "badge.is_contribution",
			b.is_soul_bound AS "badge.is_soul_bound",
			b.contract_address AS "badge.contract_address",
			b.created_at AS "badge.created_at",
			b.updated_at AS "badge.updated_at"
		FROM user_badges ub
		JOIN badges b ON b.id = ub.badge_id
		WHERE ub.user_id = ?
		ORDER BY ub.created_at, ub.id`, userID)
	return badges, err
}

// SetUserBadgeIssuance attaches the on-chain proof of an award
func (q *queries) SetUserBadgeIssuance(ctx context.Context, id uuid.UUID, txHash string, chainTokenID *int64) error {
	return q.execOne(ctx, `
		UPDATE user_badges
		SET transaction_hash = ?, chain_token_id = COALESCE(?, chain_token_id), updated_at = ?
		WHERE id = ?`,
		txHash, chainTokenID, q.timestamp(), id,
	)
}

func (q *queries) SetUserBadgeVisibility(ctx context.Context, id uuid.UUID, visible bool) error {
	return q.execOne(ctx,
		`UPDATE user_badges SET is_visible = ?, updated_at = ? WHERE id = ?`,
		visible, q.timestamp(), id,
	)
}
