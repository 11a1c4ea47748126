package reward

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "github.com/aimerfeng/ContribChain/internal/errors"
	"github.com/aimerfeng/ContribChain/internal/ledger"
	"github.com/aimerfeng/ContribChain/internal/models"
	"github.com/aimerfeng/ContribChain/internal/store"
	"github.com/aimerfeng/ContribChain/internal/store/storetest"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type recordingDispatcher struct {
	mu       sync.Mutex
	requests []ledger.MintRequest
	err      error
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, req ledger.MintRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.requests = append(d.requests, req)
	return nil
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.requests)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	st         *store.SQLStore
	engine     *Engine
	dispatcher *recordingDispatcher
	clock      *fakeClock
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	st := storetest.New(t, store.WithClock(clock.Now))
	d := &recordingDispatcher{}
	opts = append([]Option{WithDispatcher(d), WithClock(clock.Now)}, opts...)
	return &fixture{st: st, engine: NewEngine(st, opts...), dispatcher: d, clock: clock}
}

// verifiedContribution creates a contribution of value and moves it to verified
func (f *fixture) verifiedContribution(t *testing.T, value decimal.Decimal) *models.Contribution {
	t.Helper()
	ctx := context.Background()
	user := storetest.User(t, f.st)
	project := storetest.Project(t, f.st)
	c := storetest.Contribution(t, f.st, user.ID, project.ID, value)

	ok, err := f.st.UpdateContributionStatus(ctx, c.ID, models.ContributionStatusPending,
		models.ContributionStatusVerified, user.ID, f.clock.Now())
	require.NoError(t, err)
	require.True(t, ok)
	c.Status = models.ContributionStatusVerified
	return c
}

func TestIssueFor_CreatesPendingToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.verifiedContribution(t, decimal.RequireFromString("42.5"))

	token, err := f.engine.IssueFor(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, token.Amount.Equal(c.Value))
	assert.Equal(t, models.TokenStatusPending, token.Status)
	assert.Equal(t, models.TokenTypeContribution, token.Type)
	assert.Equal(t, c.UserID, token.UserID)
	require.NotNil(t, token.ContributionID)
	assert.Equal(t, c.ID, *token.ContributionID)

	stored, err := f.st.GetContribution(ctx, c.ID)
	require.NoError(t, err)
	require.True(t, stored.TokenAmount.Valid)
	assert.True(t, stored.TokenAmount.Decimal.Equal(c.Value))

	require.Equal(t, 1, f.dispatcher.count())
	assert.Equal(t, token.ID, f.dispatcher.requests[0].TokenID)
}

func TestIssueFor_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.IssueFor(ctx, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	user := storetest.User(t, f.st)
	project := storetest.Project(t, f.st)
	pending := storetest.Contribution(t, f.st, user.ID, project.ID, decimal.NewFromInt(5))
	_, err = f.engine.IssueFor(ctx, pending.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	zero := f.verifiedContribution(t, decimal.Zero)
	_, err = f.engine.IssueFor(ctx, zero.ID)
	var verr *apperrors.ValidationError
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.Contains(t, verr.Fields, "value")
	_, err = f.st.GetTokenByContribution(ctx, zero.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.Equal(t, 0, f.dispatcher.count())
}

func TestIssueFor_DispatchFailureStillIssues(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.err = ledger.ErrQueueFull
	c := f.verifiedContribution(t, decimal.NewFromInt(3))

	token, err := f.engine.IssueFor(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TokenStatusPending, token.Status)
}

func TestIssueFor_MultiplierPolicy(t *testing.T) {
	f := newFixture(t, WithAmountPolicy(MultiplierPolicy(map[models.ContributionType]decimal.Decimal{
		models.ContributionTypeCode: decimal.NewFromInt(3),
	})))
	c := f.verifiedContribution(t, decimal.RequireFromString("1.5"))

	token, err := f.engine.IssueFor(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, "4.5", token.Amount.String())
}

func TestPolicyFromMultipliers(t *testing.T) {
	c := &models.Contribution{Type: models.ContributionTypeDesign, Value: decimal.NewFromInt(4)}

	policy, err := PolicyFromMultipliers(nil)
	require.NoError(t, err)
	assert.True(t, policy(c).Equal(decimal.NewFromInt(4)))

	policy, err = PolicyFromMultipliers(map[string]decimal.Decimal{"design": decimal.RequireFromString("2.5")})
	require.NoError(t, err)
	assert.True(t, policy(c).Equal(decimal.NewFromInt(10)))
	c.Type = models.ContributionTypeCode
	assert.True(t, policy(c).Equal(decimal.NewFromInt(4)))

	_, err = PolicyFromMultipliers(map[string]decimal.Decimal{"poetry": decimal.NewFromInt(2)})
	assert.ErrorContains(t, err, "poetry")
}

func TestIssueFor_PolicyAmountBounds(t *testing.T) {
	f := newFixture(t, WithAmountPolicy(MultiplierPolicy(map[models.ContributionType]decimal.Decimal{
		models.ContributionTypeCode: decimal.RequireFromString("1.5"),
	})))
	ctx := context.Background()

	tiny := f.verifiedContribution(t, decimal.RequireFromString("0.000000000000000001"))
	token, err := f.engine.IssueFor(ctx, tiny.ID)
	require.NoError(t, err)
	assert.Equal(t, "0.000000000000000001", token.Amount.String())

	large := f.verifiedContribution(t, decimal.RequireFromString("900000000000000000"))
	_, err = f.engine.IssueFor(ctx, large.ID)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	_, err = f.st.GetTokenByContribution(ctx, large.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestIssueFor_ConcurrentCallsShareOneToken(t *testing.T) {
	f := newFixture(t)
	c := f.verifiedContribution(t, decimal.NewFromInt(10))

	const workers = 8
	ids := make([]uuid.UUID, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token, err := f.engine.IssueFor(context.Background(), c.ID)
			errs[i] = err
			if err == nil {
				ids[i] = token.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Equal(t, 1, f.dispatcher.count())
}

// For any positive value, repeated issuance yields exactly one token carrying that value.
func TestProperty_IssueForIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rapid.Check(t, func(rt *rapid.T) {
		cents := rapid.Int64Range(1, 100_000_000).Draw(rt, "cents")
		calls := rapid.IntRange(1, 5).Draw(rt, "calls")
		value := decimal.New(cents, -2)

		c := f.verifiedContribution(t, value)
		before := f.dispatcher.count()

		var first *models.Token
		for i := 0; i < calls; i++ {
			token, err := f.engine.IssueFor(ctx, c.ID)
			if err != nil {
				rt.Fatalf("PROPERTY VIOLATION: IssueFor failed: %v", err)
			}
			if first == nil {
				first = token
			} else if token.ID != first.ID {
				rt.Fatalf("PROPERTY VIOLATION: call %d returned token %s, want %s", i, token.ID, first.ID)
			}
		}

		if !first.Amount.Equal(value) {
			rt.Fatalf("PROPERTY VIOLATION: amount %s, want %s", first.Amount, value)
		}
		if got := f.dispatcher.count() - before; got != 1 {
			rt.Fatalf("PROPERTY VIOLATION: %d mint requests dispatched, want 1", got)
		}
	})
}

func TestRecordOutcome_Confirm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.verifiedContribution(t, decimal.NewFromInt(7))
	token, err := f.engine.IssueFor(ctx, c.ID)
	require.NoError(t, err)

	hash := "0xabc123"
	contract := "0xcontract"
	chainID := int64(99)
	confirmed, err := f.engine.RecordOutcome(ctx, token.ID, Outcome{
		Status:          models.TokenStatusConfirmed,
		TransactionHash: &hash,
		ContractAddress: &contract,
		ChainTokenID:    &chainID,
	})
	require.NoError(t, err)
	assert.Equal(t, models.TokenStatusConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.TransactionHash)
	assert.Equal(t, hash, *confirmed.TransactionHash)
	require.NotNil(t, confirmed.ChainTokenID)
	assert.Equal(t, chainID, *confirmed.ChainTokenID)
	assert.NotNil(t, confirmed.SettledAt)

	stored, err := f.st.GetContribution(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.TransactionHash)
	assert.Equal(t, hash, *stored.TransactionHash)

	again, err := f.engine.RecordOutcome(ctx, token.ID, Outcome{Status: models.TokenStatusConfirmed})
	require.NoError(t, err)
	assert.Equal(t, hash, *again.TransactionHash)

	_, err = f.engine.RecordOutcome(ctx, token.ID, Outcome{Status: models.TokenStatusFailed})
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestRecordOutcome_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.RecordOutcome(ctx, uuid.New(), Outcome{Status: models.TokenStatusConfirmed})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	c := f.verifiedContribution(t, decimal.NewFromInt(1))
	token, err := f.engine.IssueFor(ctx, c.ID)
	require.NoError(t, err)

	for _, status := range []models.TokenStatus{models.TokenStatusPending, "minted", ""} {
		_, err = f.engine.RecordOutcome(ctx, token.ID, Outcome{Status: status})
		assert.ErrorIs(t, err, apperrors.ErrValidation, string(status))
	}

	blank := "   "
	failed, err := f.engine.RecordOutcome(ctx, token.ID, Outcome{Status: models.TokenStatusFailed, TransactionHash: &blank})
	require.NoError(t, err)
	assert.Equal(t, models.TokenStatusFailed, failed.Status)
	assert.Nil(t, failed.TransactionHash)

	stored, err := f.st.GetContribution(ctx, c.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.TransactionHash)
}

// The first recorded outcome is final: repeats are no-ops and the other outcome is rejected.
func TestProperty_FirstOutcomeWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	outcomes := []models.TokenStatus{models.TokenStatusConfirmed, models.TokenStatusFailed}

	rapid.Check(t, func(rt *rapid.T) {
		seq := rapid.SliceOfN(rapid.SampledFrom(outcomes), 1, 6).Draw(rt, "outcomes")

		c := f.verifiedContribution(t, decimal.NewFromInt(2))
		token, err := f.engine.IssueFor(ctx, c.ID)
		if err != nil {
			rt.Fatalf("IssueFor failed: %v", err)
		}

		final := seq[0]
		for i, status := range seq {
			got, err := f.engine.RecordOutcome(ctx, token.ID, Outcome{Status: status})
			switch {
			case status == final && err != nil:
				rt.Fatalf("PROPERTY VIOLATION: step %d repeating %s failed: %v", i, status, err)
			case status == final && got.Status != final:
				rt.Fatalf("PROPERTY VIOLATION: step %d status %s, want %s", i, got.Status, final)
			case status != final && !errors.Is(err, apperrors.ErrInvalidTransition):
				rt.Fatalf("PROPERTY VIOLATION: step %d switching to %s returned %v", i, status, err)
			}
		}

		stored, err := f.st.GetToken(ctx, token.ID)
		if err != nil {
			rt.Fatalf("GetToken failed: %v", err)
		}
		if stored.Status != final {
			rt.Fatalf("PROPERTY VIOLATION: stored status %s, want %s", stored.Status, final)
		}
	})
}

func TestListTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.verifiedContribution(t, decimal.NewFromInt(1))
	b := f.verifiedContribution(t, decimal.NewFromInt(2))
	ta, err := f.engine.IssueFor(ctx, a.ID)
	require.NoError(t, err)
	_, err = f.engine.IssueFor(ctx, b.ID)
	require.NoError(t, err)

	tokens, err := f.engine.ListTokens(ctx, store.TokenFilter{UserID: &a.UserID}, 0, 0)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, ta.ID, tokens[0].ID)

	missing := uuid.New()
	_, err = f.engine.ListTokens(ctx, store.TokenFilter{UserID: &missing}, 0, 10)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	bad := models.TokenStatus("minted")
	_, err = f.engine.ListTokens(ctx, store.TokenFilter{Status: &bad}, 0, 10)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	got, err := f.engine.GetToken(ctx, ta.ID)
	require.NoError(t, err)
	assert.Equal(t, ta.ID, got.ID)

	_, err = f.engine.GetToken(ctx, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRedispatchStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	old := f.verifiedContribution(t, decimal.NewFromInt(1))
	_, err := f.engine.IssueFor(ctx, old.ID)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)

	settled := f.verifiedContribution(t, decimal.NewFromInt(1))
	st, err := f.engine.IssueFor(ctx, settled.ID)
	require.NoError(t, err)
	_, err = f.engine.RecordOutcome(ctx, st.ID, Outcome{Status: models.TokenStatusConfirmed})
	require.NoError(t, err)

	fresh := f.verifiedContribution(t, decimal.NewFromInt(1))
	_, err = f.engine.IssueFor(ctx, fresh.ID)
	require.NoError(t, err)

	before := f.dispatcher.count()
	n, err := f.engine.RedispatchStale(ctx, 30*time.Minute, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, before+1, f.dispatcher.count())

	f.dispatcher.err = ledger.ErrQueueFull
	n, err = f.engine.RedispatchStale(ctx, 30*time.Minute, 100)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
