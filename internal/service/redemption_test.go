package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"loyaltysystem/internal/apperr"
	"loyaltysystem/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedeemRewardCreatesLinkedRecords(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()
	account := env.account(t, 1001, 100)
	reward := env.reward(t, &model.RewardDefinition{Name: "Free Coffee", PointsCost: 50, IsActive: true})

	result, err := env.engine.Redemptions.Redeem(ctx, &RedeemRewardRequest{
		TenantID:  testTenant,
		RewardID:  reward.ID,
		AccountID: account.ID,
		StoreID:   3,
		ActorID:   42,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(50), result.Account.CurrentPoints)
	assert.Equal(t, int64(1), result.Reward.CurrentRedemptions)
	assert.Equal(t, "Redeemed: Free Coffee", result.LedgerTransaction.Reason)
	assert.Equal(t, int64(-50), result.LedgerTransaction.Delta)
	assert.Equal(t, model.RedemptionStatusActive, result.Redemption.Status)
	assert.Equal(t, result.LedgerTransaction.ID, result.Redemption.LedgerTransactionID)
	assert.Equal(t, int64(3), result.Redemption.StoreID)
	assert.Equal(t, int64(42), result.Redemption.ActorID)

	redemptions, total, err := env.engine.Points.ListRedemptions(ctx, testTenant, account.ID, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, result.Redemption.RedemptionNo, redemptions[0].RedemptionNo)

	assert.Contains(t, env.outboxEvents(t), model.EventRewardRedeemed)
	assert.Contains(t, env.outboxEvents(t), model.EventPointsRedeemed)
}

func TestConcurrentRedeemOfLastRewardHasOneWinner(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()
	account := env.account(t, 1001, 100)
	limit := int64(1)
	reward := env.reward(t, &model.RewardDefinition{Name: "Tote bag", PointsCost: 50, IsActive: true, MaxRedemptions: &limit})

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.engine.Redemptions.Redeem(ctx, &RedeemRewardRequest{
				TenantID:  testTenant,
				RewardID:  reward.ID,
				AccountID: account.ID,
				StoreID:   int64(i + 1),
				ActorID:   42,
			})
		}(i)
	}
	wg.Wait()

	var succeeded, unavailable int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case apperr.KindOf(err) == apperr.KindRewardUnavailable:
			unavailable++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, unavailable)

	stored, err := env.store.Rewards.GetByID(ctx, testTenant, reward.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.CurrentRedemptions)

	current, err := env.engine.Points.GetAccount(ctx, testTenant, account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), current.CurrentPoints)

	_, total, err := env.engine.Points.ListRedemptions(ctx, testTenant, account.ID, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestRedeemRewardRollsBackOnInsufficientPoints(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()
	account := env.account(t, 1001, 100)
	reward := env.reward(t, &model.RewardDefinition{Name: "Headphones", PointsCost: 500, IsActive: true})

	_, err := env.engine.Redemptions.Redeem(ctx, &RedeemRewardRequest{TenantID: testTenant, RewardID: reward.ID, AccountID: account.ID, StoreID: 1, ActorID: 1})
	assert.ErrorIs(t, err, apperr.ErrInsufficientPoints)

	stored, err := env.store.Rewards.GetByID(ctx, testTenant, reward.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stored.CurrentRedemptions)

	current, err := env.engine.Points.GetAccount(ctx, testTenant, account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), current.CurrentPoints)

	_, total, err := env.engine.Points.ListRedemptions(ctx, testTenant, account.ID, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
}

func TestRedeemRewardAvailability(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()
	account := env.account(t, 1001, 1000)

	future := env.clock.Now().Add(24 * time.Hour)
	past := env.clock.Now().Add(-time.Hour)
	cases := []struct {
		name   string
		reward *model.RewardDefinition
	}{
		{"inactive", &model.RewardDefinition{Name: "a", PointsCost: 10, IsActive: false}},
		{"not started", &model.RewardDefinition{Name: "b", PointsCost: 10, IsActive: true, StartsAt: &future}},
		{"ended", &model.RewardDefinition{Name: "c", PointsCost: 10, IsActive: true, EndsAt: &past}},
		{"stamp only", &model.RewardDefinition{Name: "d", StampsRequired: 5, IsActive: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reward := env.reward(t, tc.reward)
			_, err := env.engine.Redemptions.Redeem(ctx, &RedeemRewardRequest{TenantID: testTenant, RewardID: reward.ID, AccountID: account.ID, StoreID: 1, ActorID: 1})
			assert.ErrorIs(t, err, apperr.ErrRewardUnavailable)
		})
	}

	current, err := env.engine.Points.GetAccount(ctx, testTenant, account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), current.CurrentPoints)
}

func TestRedeemRewardRequiresSameTenant(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()
	account := env.account(t, 1001, 100)
	reward := env.reward(t, &model.RewardDefinition{TenantID: 2, Name: "Other", PointsCost: 10, IsActive: true})

	_, err := env.engine.Redemptions.Redeem(ctx, &RedeemRewardRequest{TenantID: testTenant, RewardID: reward.ID, AccountID: account.ID, StoreID: 1, ActorID: 1})
	assert.ErrorIs(t, err, apperr.ErrRewardNotFound)

	_, err = env.engine.Redemptions.Redeem(ctx, &RedeemRewardRequest{TenantID: 2, RewardID: reward.ID, AccountID: account.ID, StoreID: 1, ActorID: 1})
	assert.ErrorIs(t, err, apperr.ErrAccountNotFound)
}
