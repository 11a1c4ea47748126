// Package reward issues ledger-tracked reward tokens for verified contributions
// and records the outcomes the ledger reports back.
package reward

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/aimerfeng/ContribChain/internal/errors"
	"github.com/aimerfeng/ContribChain/internal/ledger"
	"github.com/aimerfeng/ContribChain/internal/logging"
	"github.com/aimerfeng/ContribChain/internal/models"
	"github.com/aimerfeng/ContribChain/internal/monitoring"
	"github.com/aimerfeng/ContribChain/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Service errors
var (
	ErrContributionNotFound = apperrors.WithKind(apperrors.ErrNotFound, "contribution not found")
	ErrTokenNotFound        = apperrors.WithKind(apperrors.ErrNotFound, "token not found")
	ErrUserNotFound         = apperrors.WithKind(apperrors.ErrNotFound, "user not found")
	ErrNotVerified          = apperrors.WithKind(apperrors.ErrInvalidTransition, "contribution is not verified")
	ErrAlreadySettled       = apperrors.WithKind(apperrors.ErrInvalidTransition, "token outcome already recorded")
	ErrDuplicateReward      = apperrors.WithKind(apperrors.ErrDuplicateReward, "reward already issued for contribution")
)

// AmountPolicy computes the reward amount for a verified contribution
type AmountPolicy func(c *models.Contribution) decimal.Decimal

// PassThrough rewards exactly the contribution value
func PassThrough(c *models.Contribution) decimal.Decimal {
	return c.Value
}

// MultiplierPolicy scales the contribution value by a per-type multiplier.
// Types without an entry use a multiplier of one.
func MultiplierPolicy(multipliers map[models.ContributionType]decimal.Decimal) AmountPolicy {
	return func(c *models.Contribution) decimal.Decimal {
		m, ok := multipliers[c.Type]
		if !ok {
			return c.Value
		}
		return c.Value.Mul(m)
	}
}

// PolicyFromMultipliers returns PassThrough for an empty map and a
// MultiplierPolicy otherwise. Keys must be known contribution types.
func PolicyFromMultipliers(multipliers map[string]decimal.Decimal) (AmountPolicy, error) {
	if len(multipliers) == 0 {
		return PassThrough, nil
	}
	typed := make(map[models.ContributionType]decimal.Decimal, len(multipliers))
	for key, factor := range multipliers {
		t := models.ContributionType(key)
		if !t.Valid() {
			return nil, fmt.Errorf("unknown contribution type %q in reward multipliers", key)
		}
		typed[t] = factor
	}
	return MultiplierPolicy(typed), nil
}

// Outcome is a settlement result reported by the ledger
type Outcome struct {
	Status          models.TokenStatus `json:"status"`
	TransactionHash *string            `json:"transaction_hash,omitempty"`
	ContractAddress *string            `json:"contract_address,omitempty"`
	ChainTokenID    *int64             `json:"chain_token_id,omitempty"`
}

// Engine issues reward tokens and records ledger outcomes
type Engine struct {
	store      store.Store
	dispatcher ledger.Dispatcher
	policy     AmountPolicy
	now        func() time.Time
	logger     zerolog.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithDispatcher sets where mint requests go after issuance
func WithDispatcher(d ledger.Dispatcher) Option {
	return func(e *Engine) {
		e.dispatcher = d
	}
}

// WithAmountPolicy replaces the pass-through amount policy
func WithAmountPolicy(p AmountPolicy) Option {
	return func(e *Engine) {
		e.policy = p
	}
}

// WithClock replaces the wall clock
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates a reward engine
func NewEngine(st store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:      st,
		dispatcher: ledger.NopDispatcher{},
		policy:     PassThrough,
		now:        time.Now,
		logger:     logging.NewLogger("reward"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IssueFor mints the reward token of a verified contribution. Calling it again
// returns the token issued the first time.
func (e *Engine) IssueFor(ctx context.Context, contributionID uuid.UUID) (*models.Token, error) {
	var (
		token   *models.Token
		created bool
	)
	err := e.store.WithTx(ctx, func(q store.Querier) error {
		var err error
		token, created, err = e.IssueForTx(ctx, q, contributionID)
		return err
	})
	if errors.Is(err, ErrDuplicateReward) {
		// a concurrent caller committed first
		existing, getErr := e.store.GetTokenByContribution(ctx, contributionID)
		if getErr != nil {
			return nil, fmt.Errorf("failed to load existing token: %w", getErr)
		}
		return existing, nil
	}
	if err != nil {
		return nil, err
	}

	if created {
		e.Issued(ctx, token)
	}
	return token, nil
}

// IssueForTx performs IssueFor on q, which must be a transaction. It reports
// whether a new token was created; the caller must call Issued after commit.
// The policy amount is truncated to the stored scale and must be positive.
func (e *Engine) IssueForTx(ctx context.Context, q store.Querier, contributionID uuid.UUID) (*models.Token, bool, error) {
	c, err := q.GetContribution(ctx, contributionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, false, ErrContributionNotFound
		}
		return nil, false, fmt.Errorf("failed to get contribution: %w", err)
	}
	if c.Status != models.ContributionStatusVerified {
		return nil, false, ErrNotVerified
	}

	existing, err := q.GetTokenByContribution(ctx, c.ID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, fmt.Errorf("failed to check existing token: %w", err)
	}

	amount := e.policy(c).Truncate(models.AmountScale)
	if !amount.IsPositive() {
		return nil, false, apperrors.NewFieldError("value", "zero-value contributions can only be rejected")
	}
	if !amount.LessThan(models.MaxAmount) {
		return nil, false, apperrors.NewFieldError("value", "reward amount must be less than 1e18")
	}

	token := &models.Token{
		Amount:         amount,
		Type:           models.TokenTypeContribution,
		Status:         models.TokenStatusPending,
		UserID:         c.UserID,
		ContributionID: &c.ID,
	}
	if err := q.CreateToken(ctx, token); err != nil {
		if store.IsUniqueViolation(err, "contribution_id") {
			return nil, false, ErrDuplicateReward
		}
		return nil, false, fmt.Errorf("failed to create token: %w", err)
	}

	if err := q.SetContributionTokenAmount(ctx, c.ID, amount); err != nil {
		return nil, false, fmt.Errorf("failed to set contribution token amount: %w", err)
	}

	return token, true, nil
}

// Issued announces a committed token: metrics, audit log and a mint request.
// Dispatch failures are logged; the redispatch job picks the token up later.
func (e *Engine) Issued(ctx context.Context, token *models.Token) {
	contributionID := ""
	if token.ContributionID != nil {
		contributionID = token.ContributionID.String()
	}
	monitoring.RecordTokenIssued(token.Amount.InexactFloat64())
	logging.LogRewardIssued(token.ID.String(), contributionID, token.UserID.String(), token.Amount)

	if err := e.dispatcher.Dispatch(ctx, ledger.NewMintRequest(token, e.now())); err != nil {
		e.logger.Warn().Err(err).
			Str("token_id", token.ID.String()).
			Msg("Mint request not dispatched, will retry on redispatch")
	}
}

// RecordOutcome stores the ledger result for a pending token. Reporting the
// status the token already has is a no-op.
func (e *Engine) RecordOutcome(ctx context.Context, tokenID uuid.UUID, outcome Outcome) (*models.Token, error) {
	if !outcome.Status.IsOutcome() {
		return nil, apperrors.NewFieldError("status", "must be one of: confirmed, failed")
	}
	outcome.TransactionHash = trimmed(outcome.TransactionHash)
	outcome.ContractAddress = trimmed(outcome.ContractAddress)

	var (
		token   *models.Token
		changed bool
	)
	err := e.store.WithTx(ctx, func(q store.Querier) error {
		current, err := q.GetToken(ctx, tokenID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrTokenNotFound
			}
			return fmt.Errorf("failed to get token: %w", err)
		}
		if current.Status.IsTerminal() {
			if current.Status == outcome.Status {
				token = current
				return nil
			}
			return ErrAlreadySettled
		}

		settled, err := q.SettleToken(ctx, tokenID, store.TokenSettlement{
			Status:          outcome.Status,
			TransactionHash: outcome.TransactionHash,
			ContractAddress: outcome.ContractAddress,
			ChainTokenID:    outcome.ChainTokenID,
			SettledAt:       e.now(),
		})
		if err != nil {
			return fmt.Errorf("failed to settle token: %w", err)
		}

		token, err = q.GetToken(ctx, tokenID)
		if err != nil {
			return fmt.Errorf("failed to reload token: %w", err)
		}
		if !settled {
			// settled by a concurrent report between the read and the update
			if token.Status == outcome.Status {
				return nil
			}
			return ErrAlreadySettled
		}
		changed = true

		if outcome.Status == models.TokenStatusConfirmed && outcome.TransactionHash != nil && token.ContributionID != nil {
			if err := q.SetContributionTransactionHash(ctx, *token.ContributionID, *outcome.TransactionHash); err != nil {
				return fmt.Errorf("failed to set contribution transaction hash: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		txHash := ""
		if token.TransactionHash != nil {
			txHash = *token.TransactionHash
		}
		monitoring.RecordTokenOutcome(string(token.Status))
		logging.LogRewardOutcome(token.ID.String(), string(token.Status), txHash)
	}
	return token, nil
}

// GetToken returns a reward token
func (e *Engine) GetToken(ctx context.Context, id uuid.UUID) (*models.Token, error) {
	token, err := e.store.GetToken(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	return token, nil
}

// ListTokens lists tokens newest first. Filtering by an unknown user fails with ErrUserNotFound.
func (e *Engine) ListTokens(ctx context.Context, filter store.TokenFilter, skip, limit int) ([]models.Token, error) {
	if filter.UserID != nil {
		if _, err := e.store.GetUserByID(ctx, *filter.UserID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, ErrUserNotFound
			}
			return nil, fmt.Errorf("failed to get user: %w", err)
		}
	}
	if filter.Status != nil && !isTokenStatus(*filter.Status) {
		return nil, apperrors.NewFieldError("status", "must be one of: pending, confirmed, failed")
	}

	tokens, err := e.store.ListTokens(ctx, filter, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	return tokens, nil
}

// RedispatchStale hands mint requests for tokens pending longer than olderThan
// to the dispatcher again. It returns how many were accepted.
func (e *Engine) RedispatchStale(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	tokens, err := e.store.ListPendingTokensBefore(ctx, e.now().Add(-olderThan), limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale tokens: %w", err)
	}

	dispatched := 0
	for i := range tokens {
		err := e.dispatcher.Dispatch(ctx, ledger.NewMintRequest(&tokens[i], e.now()))
		if errors.Is(err, ledger.ErrQueueFull) || errors.Is(err, ledger.ErrClosed) {
			e.logger.Warn().Err(err).Int("remaining", len(tokens)-i).Msg("Redispatch stopped early")
			break
		}
		if err != nil {
			return dispatched, fmt.Errorf("failed to dispatch token %s: %w", tokens[i].ID, err)
		}
		dispatched++
	}
	return dispatched, nil
}

func isTokenStatus(s models.TokenStatus) bool {
	return s == models.TokenStatusPending || s.IsOutcome()
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
