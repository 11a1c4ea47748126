package store

import (
	"context"
	"strings"
	"time"

	"github.com/aimerfeng/ContribChain/internal/models"
	"github.com/google/uuid"
)

const tokenColumns = `id, amount, type, status, user_id, contribution_id, transaction_hash,
	contract_address, chain_token_id, created_at, updated_at, settled_at`

// CreateToken inserts a reward token. A second token for the same
// contribution fails with a ConstraintError.
func (q *queries) CreateToken(ctx context.Context, t *models.Token) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = models.TokenStatusPending
	}
	now := q.timestamp()
	t.CreatedAt, t.UpdatedAt = now, now

	_, err := q.exec(ctx, `
		INSERT INTO tokens (`+tokenColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Amount, t.Type, t.Status, t.UserID, t.ContributionID, t.TransactionHash,
		t.ContractAddress, t.ChainTokenID, t.CreatedAt, t.UpdatedAt, t.SettledAt,
	)
	return err
}

func (q *queries) GetToken(ctx context.Context, id uuid.UUID) (*models.Token, error) {
	var t models.Token
	if err := q.get(ctx, &t, `SELECT `+tokenColumns+` FROM tokens WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return &t, nil
}

func (q *queries) GetTokenByContribution(ctx context.Context, contributionID uuid.UUID) (*models.Token, error) {
	var t models.Token
	if err := q.get(ctx, &t, `SELECT `+tokenColumns+` FROM tokens WHERE contribution_id = ?`, contributionID); err != nil {
		return nil, err
	}
	return &t, nil
}

func (q *queries) ListTokens(ctx context.Context, filter TokenFilter, skip, limit int) ([]models.Token, error) {
	skip, limit = ClampPage(skip, limit)

	var (
		conds []string
		args  []any
	)
	if filter.UserID != nil {
		conds = append(conds, "user_id = ?")
		args = append(args, *filter.UserID)
	}
	if filter.Status != nil {
		conds = append(conds, "status = ?")
		args = append(args, *filter.Status)
	}

	query := `SELECT ` + tokenColumns + ` FROM tokens`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, limit, skip)

	tokens := []models.Token{}
	err := q.selectAll(ctx, &tokens, query, args...)
	return tokens, err
}

// ListPendingTokensBefore returns the oldest pending tokens created before the cutoff
func (q *queries) ListPendingTokensBefore(ctx context.Context, before time.Time, limit int) ([]models.Token, error) {
	_, limit = ClampPage(0, limit)
	tokens := []models.Token{}
	err := q.selectAll(ctx, &tokens, `
		SELECT `+tokenColumns+` FROM tokens
		WHERE status = ? AND created_at < ?
		ORDER BY created_at, id
		LIMIT ?`,
		models.TokenStatusPending, before.UTC().Truncate(time.Microsecond), limit,
	)
	return tokens, err
}

// SettleToken writes a ledger outcome onto a pending token.
// It reports false when the token was no longer pending.
func (q *queries) SettleToken(ctx context.Context, id uuid.UUID, s TokenSettlement) (bool, error) {
	n, err := q.exec(ctx, `
		UPDATE tokens
		SET status = ?,
			transaction_hash = COALESCE(?, transaction_hash),
			contract_address = COALESCE(?, contract_address),
			chain_token_id = COALESCE(?, chain_token_id),
			settled_at = ?,
			updated_at = ?
		WHERE id = ? AND status = ?`,
		s.Status, s.TransactionHash, s.ContractAddress, s.ChainTokenID,
		s.SettledAt.UTC().Truncate(time.Microsecond), q.timestamp(),
		id, models.TokenStatusPending,
	)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
