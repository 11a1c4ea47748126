package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aimerfeng/ContribChain/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// MaxPageSize caps every listing
const MaxPageSize = 100

// ContributionFilter narrows contribution listings. Nil fields match everything.
type ContributionFilter struct {
	UserID    *uuid.UUID
	ProjectID *uuid.UUID
	Status    *models.ContributionStatus
}

// TokenFilter narrows token listings. Nil fields match everything.
type TokenFilter struct {
	UserID *uuid.UUID
	Status *models.TokenStatus
}

// TokenSettlement is the ledger outcome written onto a pending token
type TokenSettlement struct {
	Status          models.TokenStatus
	TransactionHash *string
	ContractAddress *string
	ChainTokenID    *int64
	SettledAt       time.Time
}

// Querier is the set of persistence operations available inside and outside transactions
type Querier interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	UpdateUserPassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	SetUserActive(ctx context.Context, id uuid.UUID, active bool) error
	UpdateUserProfile(ctx context.Context, u *models.User) error
	ListUsers(ctx context.Context, skip, limit int) ([]models.User, error)

	CreateProject(ctx context.Context, p *models.Project) error
	GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error)
	ListProjects(ctx context.Context, skip, limit int) ([]models.Project, error)
	UpdateProject(ctx context.Context, p *models.Project) error
	CreateTask(ctx context.Context, t *models.Task) error
	GetTask(ctx context.Context, id uuid.UUID) (*models.Task, error)
	ListTasks(ctx context.Context, projectID uuid.UUID) ([]models.Task, error)
	UpdateTask(ctx context.Context, t *models.Task) error

	CreateContribution(ctx context.Context, c *models.Contribution) error
	GetContribution(ctx context.Context, id uuid.UUID) (*models.Contribution, error)
	GetContributionDetails(ctx context.Context, id uuid.UUID) (*models.ContributionDetails, error)
	ListContributions(ctx context.Context, filter ContributionFilter, skip, limit int) ([]models.Contribution, error)
	UpdateContributionStatus(ctx context.Context, id uuid.UUID, from, to models.ContributionStatus, reviewerID uuid.UUID, reviewedAt time.Time) (bool, error)
	SetContributionTokenAmount(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error
	SetContributionTransactionHash(ctx context.Context, id uuid.UUID, txHash string) error

	CreateToken(ctx context.Context, t *models.Token) error
	GetToken(ctx context.Context, id uuid.UUID) (*models.Token, error)
	GetTokenByContribution(ctx context.Context, contributionID uuid.UUID) (*models.Token, error)
	ListTokens(ctx context.Context, filter TokenFilter, skip, limit int) ([]models.Token, error)
	ListPendingTokensBefore(ctx context.Context, before time.Time, limit int) ([]models.Token, error)
	SettleToken(ctx context.Context, id uuid.UUID, s TokenSettlement) (bool, error)

	CreateBadge(ctx context.Context, b *models.Badge) error
	GetBadge(ctx context.Context, id uuid.UUID) (*models.Badge, error)
	GetBadgeBySlug(ctx context.Context, slug string) (*models.Badge, error)
	ListBadges(ctx context.Context, skip, limit int) ([]models.Badge, error)
	UpdateBadge(ctx context.Context, b *models.Badge) error
	CreateUserBadge(ctx context.Context, ub *models.UserBadge) error
	GetUserBadge(ctx context.Context, id uuid.UUID) (*models.UserBadge, error)
	GetUserBadgeByPair(ctx context.Context, userID, badgeID uuid.UUID) (*models.UserBadge, error)
	ListUserBadges(ctx context.Context, userID uuid.UUID) ([]models.UserBadgeDetails, error)
	SetUserBadgeIssuance(ctx context.Context, id uuid.UUID, txHash string, chainTokenID *int64) error
	SetUserBadgeVisibility(ctx context.Context, id uuid.UUID, visible bool) error
}

// Store is the persistence collaborator used by every service
type Store interface {
	Querier
	// WithTx runs fn inside a transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(q Querier) error) error
	Ping(ctx context.Context) error
}

// SQLStore implements Store on top of sqlx for PostgreSQL and SQLite
type SQLStore struct {
	*queries
	db *sqlx.DB
}

// Option configures a SQLStore
type Option func(*SQLStore)

// WithClock overrides the clock used for created_at/updated_at
func WithClock(now func() time.Time) Option {
	return func(s *SQLStore) {
		s.queries.now = now
	}
}

// New creates a store over an open database handle
func New(db *sqlx.DB, opts ...Option) *SQLStore {
	s := &SQLStore{
		queries: &queries{ext: db, now: time.Now},
		db:      db,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithTx runs fn inside a database transaction
func (s *SQLStore) WithTx(ctx context.Context, fn func(q Querier) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&queries{ext: tx, now: s.queries.now}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Ping checks the database connection
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// queries runs statements against either the pool or a transaction
type queries struct {
	ext sqlx.ExtContext
	now func() time.Time
}

// timestamp returns the current time in the precision both backends store
func (q *queries) timestamp() time.Time {
	return q.now().UTC().Truncate(time.Microsecond)
}

func (q *queries) get(ctx context.Context, dest any, query string, args ...any) error {
	err := sqlx.GetContext(ctx, q.ext, dest, q.ext.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (q *queries) selectAll(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, q.ext, dest, q.ext.Rebind(query), args...)
}

func (q *queries) exec(ctx context.Context, query string, args ...any) (int64, error) {
	result, err := q.ext.ExecContext(ctx, q.ext.Rebind(query), args...)
	if err != nil {
		return 0, mapError(err)
	}
	return result.RowsAffected()
}

// execOne executes a statement that must touch exactly one row
func (q *queries) execOne(ctx context.Context, query string, args ...any) error {
	n, err := q.exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ClampPage normalizes skip/limit for listings
func ClampPage(skip, limit int) (int, int) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}
	return skip, limit
}
