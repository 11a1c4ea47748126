package store

import (
	"context"
	"strings"
	"time"

	"github.com/aimerfeng/ContribChain/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const contributionColumns = `id, title, description, type, status, value, user_id, project_id, task_id,
	transaction_hash, token_amount, reviewed_by, reviewed_at, created_at, updated_at`

func (q *queries) CreateContribution(ctx context.Context, c *models.Contribution) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = models.ContributionStatusPending
	}
	now := q.timestamp()
	c.CreatedAt, c.UpdatedAt = now, now

	_, err := q.exec(ctx, `
		INSERT INTO contributions (`+contributionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Title, c.Description, c.Type, c.Status, c.Value, c.UserID, c.ProjectID, c.TaskID,
		c.TransactionHash, c.TokenAmount, c.ReviewedBy, c.ReviewedAt, c.CreatedAt, c.UpdatedAt,
	)
	return err
}

func (q *queries) GetContribution(ctx context.Context, id uuid.UUID) (*models.Contribution, error) {
	var c models.Contribution
	if err := q.get(ctx, &c, `SELECT `+contributionColumns+` FROM contributions WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return &c, nil
}

func (q *queries) GetContributionDetails(ctx context.Context, id uuid.UUID) (*models.ContributionDetails, error) {
	var d models.ContributionDetails
	err := q.get(ctx, &d, `
		SELECT c.id, c.title, c.description, c.type, c.status, c.value, c.user_id, c.project_id, c.task_id,
			c.transaction_hash, c.token_amount, c.reviewed_by, c.reviewed_at, c.created_at, c.updated_at,
			u.username AS user_name,
			p.name AS project_name,
			t.title AS task_title
		FROM contributions c
		JOIN users u ON u.id = c.user_id
		JOIN projects p ON p.id = c.project_id
		LEFT JOIN tasks t ON t.id = c.task_id
		WHERE c.id = ?`, id)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (q *queries) ListContributions(ctx context.Context, filter ContributionFilter, skip, limit int) ([]models.Contribution, error) {
	skip, limit = ClampPage(skip, limit)

	var (
		conds []string
		args  []any
	)
	if filter.UserID != nil {
		conds = append(conds, "user_id = ?")
		args = append(args, *filter.UserID)
	}
	if filter.ProjectID != nil {
		conds = append(conds, "project_id = ?")
		args = append(args, *filter.ProjectID)
	}
	if filter.Status != nil {
		conds = append(conds, "status = ?")
		args = append(args, *filter.Status)
	}

	query := `SELECT ` + contributionColumns + ` FROM contributions`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, limit, skip)

	contributions := []models.Contribution{}
	err := q.selectAll(ctx, &contributions, query, args...)
	return contributions, err
}

// UpdateContributionStatus moves a contribution from one status to another.
// It reports false when the contribution was not in the from status.
func (q *queries) UpdateContributionStatus(ctx context.Context, id uuid.UUID, from, to models.ContributionStatus, reviewerID uuid.UUID, reviewedAt time.Time) (bool, error) {
	n, err := q.exec(ctx, `
		UPDATE contributions
		SET status = ?, reviewed_by = ?, reviewed_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		to, reviewerID, reviewedAt.UTC().Truncate(time.Microsecond), q.timestamp(), id, from,
	)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SetContributionTokenAmount records the reward minted for a verified contribution
func (q *queries) SetContributionTokenAmount(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	return q.execOne(ctx, `
		UPDATE contributions SET token_amount = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		amount, q.timestamp(), id, models.ContributionStatusVerified,
	)
}

// SetContributionTransactionHash records the ledger transaction of a verified contribution's reward
func (q *queries) SetContributionTransactionHash(ctx context.Context, id uuid.UUID, txHash string) error {
	return q.execOne(ctx, `
		UPDATE contributions SET transaction_hash = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		txHash, q.timestamp(), id, models.ContributionStatusVerified,
	)
}
