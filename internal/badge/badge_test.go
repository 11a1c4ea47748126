package badge

import (
	"context"
	"errors"
	"sync"
	"testing"

	apperrors "github.com/aimerfeng/ContribChain/internal/errors"
	"github.com/aimerfeng/ContribChain/internal/store/storetest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestCreateBadge_Slug(t *testing.T) {
	svc := NewService(storetest.New(t))
	ctx := context.Background()

	b, err := svc.CreateBadge(ctx, &CreateBadgeRequest{Name: "  First Merge!  "})
	require.NoError(t, err)
	assert.Equal(t, "First Merge!", b.Name)
	assert.Equal(t, "first-merge", b.Slug)
	assert.True(t, b.IsSoulBound)

	notBound := false
	custom, err := svc.CreateBadge(ctx, &CreateBadgeRequest{Name: "Bug Hunter", Slug: "Hunter 2026", IsSoulBound: &notBound})
	require.NoError(t, err)
	assert.Equal(t, "hunter-2026", custom.Slug)
	assert.False(t, custom.IsSoulBound)

	got, err := svc.GetBadgeBySlug(ctx, "FIRST-MERGE")
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)

	_, err = svc.CreateBadge(ctx, &CreateBadgeRequest{Name: "First Merge!"})
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	_, err = svc.CreateBadge(ctx, &CreateBadgeRequest{Name: "Another", Slug: "first merge"})
	assert.ErrorIs(t, err, ErrBadgeSlugTaken)

	_, err = svc.CreateBadge(ctx, &CreateBadgeRequest{Name: ""})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = svc.CreateBadge(ctx, &CreateBadgeRequest{Name: "!!!"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	badges, err := svc.ListBadges(ctx, 0, 10)
	require.NoError(t, err)
	assert.Len(t, badges, 2)
}

func TestUpdateBadge(t *testing.T) {
	st := storetest.New(t)
	svc := NewService(st)
	ctx := context.Background()
	user := storetest.User(t, st)

	b, err := svc.CreateBadge(ctx, &CreateBadgeRequest{Name: "Reviewer"})
	require.NoError(t, err)
	_, err = svc.CreateBadge(ctx, &CreateBadgeRequest{Name: "Mentor"})
	require.NoError(t, err)
	_, err = svc.Award(ctx, user.ID, b.ID)
	require.NoError(t, err)

	name := " Senior Reviewer "
	skill := true
	criteria := "fifty reviews"
	updated, err := svc.UpdateBadge(ctx, b.ID, &UpdateBadgeRequest{Name: &name, IsSkill: &skill, Criteria: &criteria})
	require.NoError(t, err)
	assert.Equal(t, "Senior Reviewer", updated.Name)
	assert.Equal(t, "reviewer", updated.Slug)
	assert.True(t, updated.IsSkill)
	assert.True(t, updated.IsSoulBound)

	awards, err := svc.ListUserBadges(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, awards, 1)
	assert.Equal(t, "Senior Reviewer", awards[0].Badge.Name)

	taken := "Mentor"
	_, err = svc.UpdateBadge(ctx, b.ID, &UpdateBadgeRequest{Name: &taken})
	assert.ErrorIs(t, err, ErrBadgeNameTaken)

	blank := ""
	_, err = svc.UpdateBadge(ctx, b.ID, &UpdateBadgeRequest{Name: &blank})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = svc.UpdateBadge(ctx, uuid.New(), &UpdateBadgeRequest{IsSkill: &skill})
	assert.ErrorIs(t, err, ErrBadgeNotFound)
}

func TestAward(t *testing.T) {
	st := storetest.New(t)
	svc := NewService(st)
	ctx := context.Background()
	user := storetest.User(t, st)
	b := storetest.Badge(t, st)

	ub, err := svc.Award(ctx, user.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, ub.UserID)
	assert.True(t, ub.IsVisible)
	assert.Nil(t, ub.TransactionHash)

	_, err = svc.Award(ctx, user.ID, b.ID)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyAwarded)

	_, err = svc.Award(ctx, uuid.New(), b.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = svc.Award(ctx, user.ID, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	// the original award is untouched
	stored, err := st.GetUserBadge(ctx, ub.ID)
	require.NoError(t, err)
	assert.True(t, stored.CreatedAt.Equal(ub.CreatedAt))
}

func TestAward_ConcurrentOnce(t *testing.T) {
	st := storetest.New(t)
	svc := NewService(st)
	user := storetest.User(t, st)
	b := storetest.Badge(t, st)

	const workers = 8
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Award(context.Background(), user.ID, b.ID)
		}(i)
	}
	wg.Wait()

	awarded := 0
	for _, err := range errs {
		if err == nil {
			awarded++
			continue
		}
		assert.ErrorIs(t, err, apperrors.ErrAlreadyAwarded)
	}
	assert.Equal(t, 1, awarded)
}

func TestRecordIssuanceAndVisibility(t *testing.T) {
	st := storetest.New(t)
	svc := NewService(st)
	ctx := context.Background()
	user := storetest.User(t, st)
	b := storetest.Badge(t, st)

	ub, err := svc.Award(ctx, user.ID, b.ID)
	require.NoError(t, err)

	chainID := int64(7)
	issued, err := svc.RecordIssuance(ctx, ub.ID, &IssuanceRequest{TransactionHash: " 0xfeed ", ChainTokenID: &chainID})
	require.NoError(t, err)
	require.NotNil(t, issued.TransactionHash)
	assert.Equal(t, "0xfeed", *issued.TransactionHash)
	assert.Equal(t, chainID, *issued.ChainTokenID)

	_, err = svc.RecordIssuance(ctx, ub.ID, &IssuanceRequest{TransactionHash: "  "})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = svc.RecordIssuance(ctx, uuid.New(), &IssuanceRequest{TransactionHash: "0x1"})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	hidden, err := svc.SetVisibility(ctx, ub.ID, false)
	require.NoError(t, err)
	assert.False(t, hidden.IsVisible)

	_, err = svc.SetVisibility(ctx, uuid.New(), true)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	list, err := svc.ListUserBadges(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, b.Name, list[0].Badge.Name)
	assert.False(t, list[0].IsVisible)
	assert.Equal(t, "0xfeed", *list[0].TransactionHash)

	_, err = svc.ListUserBadges(ctx, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

// However many times a pair is awarded, exactly one award exists and later attempts fail.
func TestProperty_AwardAtMostOnce(t *testing.T) {
	st := storetest.New(t)
	svc := NewService(st)
	ctx := context.Background()

	rapid.Check(t, func(rt *rapid.T) {
		attempts := rapid.IntRange(1, 6).Draw(rt, "attempts")
		user := storetest.User(t, st)
		b := storetest.Badge(t, st)

		var first uuid.UUID
		for i := 0; i < attempts; i++ {
			ub, err := svc.Award(ctx, user.ID, b.ID)
			if i == 0 {
				if err != nil {
					rt.Fatalf("PROPERTY VIOLATION: first award failed: %v", err)
				}
				first = ub.ID
				continue
			}
			if !errors.Is(err, apperrors.ErrAlreadyAwarded) {
				rt.Fatalf("PROPERTY VIOLATION: award %d returned %v", i, err)
			}
		}

		list, err := svc.ListUserBadges(ctx, user.ID)
		if err != nil {
			rt.Fatalf("ListUserBadges failed: %v", err)
		}
		if len(list) != 1 || list[0].ID != first {
			rt.Fatalf("PROPERTY VIOLATION: %d awards stored", len(list))
		}
	})
}
