package service

import (
	"context"
	"encoding/json"
	"math"
	"math/rand"
	"sync"
	"testing"

	"loyaltysystem/internal/apperr"
	"loyaltysystem/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedeemPointsReducesBalanceAndRejectsOverdraw(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()
	account := env.account(t, 1001, 100)

	updated, err := env.engine.Points.Redeem(ctx, &RedeemPointsRequest{
		TenantID:  testTenant,
		AccountID: account.ID,
		Points:    60,
		Reason:    "coffee",
		StoreID:   int64Ptr(7),
		ActorID:   int64Ptr(42),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(40), updated.CurrentPoints)
	assert.Equal(t, int64(100), updated.TotalEarned)
	assert.Equal(t, int64(60), updated.TotalRedeemed)

	list, total, err := env.engine.Points.ListTransactions(ctx, testTenant, account.ID, 1, 20)
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	latest := list[0]
	assert.Equal(t, model.LoyaltyTransactionRedeem, latest.Type)
	assert.Equal(t, int64(-60), latest.Delta)
	assert.Equal(t, int64(100), latest.BalanceBefore)
	assert.Equal(t, int64(40), latest.BalanceAfter)
	assert.Equal(t, int64(7), *latest.StoreID)
	assert.Equal(t, int64(42), *latest.ActorID)

	_, err = env.engine.Points.Redeem(ctx, &RedeemPointsRequest{TenantID: testTenant, AccountID: account.ID, Points: 50})
	assert.ErrorIs(t, err, apperr.ErrInsufficientPoints)

	after, err := env.engine.Points.GetAccount(ctx, testTenant, account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(40), after.CurrentPoints)

	_, total, err = env.engine.Points.ListTransactions(ctx, testTenant, account.ID, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total, "rejected redeem must not leave an audit row")
}

func TestEarnRejectsNonPositiveAmounts(t *testing.T) {
	env := setupEngine(t)
	account := env.account(t, 1001, 0)

	for _, points := range []int64{0, -5} {
		_, err := env.engine.Points.Earn(context.Background(), &EarnRequest{TenantID: testTenant, AccountID: account.ID, Points: points})
		assert.ErrorIs(t, err, apperr.ErrInvalidAmount)

		_, err = env.engine.Points.Redeem(context.Background(), &RedeemPointsRequest{TenantID: testTenant, AccountID: account.ID, Points: points})
		assert.ErrorIs(t, err, apperr.ErrInvalidAmount)
	}
}

func TestEarnRejectsOverflowingAmount(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()
	account := env.account(t, 1001, 10)

	_, err := env.engine.Points.Earn(ctx, &EarnRequest{TenantID: testTenant, AccountID: account.ID, Points: math.MaxInt64})
	assert.ErrorIs(t, err, apperr.ErrInvalidAmount)
	assert.Equal(t, apperr.KindInvalidAmount, apperr.KindOf(err))

	reloaded, err := env.engine.Points.GetAccount(ctx, testTenant, account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), reloaded.CurrentPoints)
	assert.Equal(t, int64(10), reloaded.TotalEarned)
}

func TestEarnUpdatesLevelAndActivity(t *testing.T) {
	env := setupEngine(t)
	account := env.account(t, 1001, 0)
	assert.Equal(t, model.LevelBronze, account.Level)
	assert.Nil(t, account.LastActivityAt)

	updated, err := env.engine.Points.Earn(context.Background(), &EarnRequest{TenantID: testTenant, AccountID: account.ID, Points: 1200})
	require.NoError(t, err)
	assert.Equal(t, model.LevelSilver, updated.Level)
	require.NotNil(t, updated.LastActivityAt)
	assert.True(t, env.clock.Now().Equal(*updated.LastActivityAt))

	// 出账不降级
	updated, err = env.engine.Points.Redeem(context.Background(), &RedeemPointsRequest{TenantID: testTenant, AccountID: account.ID, Points: 1000})
	require.NoError(t, err)
	assert.Equal(t, model.LevelSilver, updated.Level)
}

func TestLedgerBalanceHoldsForRandomSequences(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()
	account := env.account(t, 1001, 0)
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 150; i++ {
		points := int64(rng.Intn(80) + 1)
		before, err := env.engine.Points.GetAccount(ctx, testTenant, account.ID)
		require.NoError(t, err)

		if rng.Intn(2) == 0 {
			_, err = env.engine.Points.Earn(ctx, &EarnRequest{TenantID: testTenant, AccountID: account.ID, Points: points})
			require.NoError(t, err)
		} else {
			_, err = env.engine.Points.Redeem(ctx, &RedeemPointsRequest{TenantID: testTenant, AccountID: account.ID, Points: points})
			if before.CurrentPoints < points {
				require.ErrorIs(t, err, apperr.ErrInsufficientPoints)
			} else {
				require.NoError(t, err)
			}
		}

		current, err := env.engine.Points.GetAccount(ctx, testTenant, account.ID)
		require.NoError(t, err)
		require.True(t, current.BalanceConsistent(), "step %d: %+v", i, current)
		require.GreaterOrEqual(t, current.TotalEarned, before.TotalEarned)
		require.GreaterOrEqual(t, current.TotalRedeemed, before.TotalRedeemed)
	}

	list, total, err := env.engine.Points.ListTransactions(ctx, testTenant, account.ID, 1, 100)
	require.NoError(t, err)
	assert.Greater(t, total, int64(0))
	for _, trans := range list {
		assert.Equal(t, trans.Delta, trans.BalanceAfter-trans.BalanceBefore)
	}
}

func TestConcurrentEarnIsSerialized(t *testing.T) {
	env := setupEngine(t)
	account := env.account(t, 1001, 0)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.engine.Points.Earn(context.Background(), &EarnRequest{TenantID: testTenant, AccountID: account.ID, Points: 5})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	current, err := env.engine.Points.GetAccount(context.Background(), testTenant, account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), current.CurrentPoints)

	_, total, err := env.engine.Points.ListTransactions(context.Background(), testTenant, account.ID, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(20), total)
}

func TestDeactivatedAccountRejectsMutations(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()
	account := env.account(t, 1001, 100)

	require.NoError(t, env.engine.Points.Deactivate(ctx, testTenant, account.ID))
	require.NoError(t, env.engine.Points.Deactivate(ctx, testTenant, account.ID))

	_, err := env.engine.Points.Earn(ctx, &EarnRequest{TenantID: testTenant, AccountID: account.ID, Points: 10})
	assert.ErrorIs(t, err, apperr.ErrAccountInactive)

	_, err = env.engine.Points.Redeem(ctx, &RedeemPointsRequest{TenantID: testTenant, AccountID: account.ID, Points: 10})
	assert.ErrorIs(t, err, apperr.ErrAccountInactive)

	current, err := env.engine.Points.GetAccount(ctx, testTenant, account.ID)
	require.NoError(t, err)
	assert.False(t, current.IsActive)
	assert.Equal(t, int64(100), current.CurrentPoints)
}

func TestEnrollIsIdempotentAndTenantScoped(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()

	first, err := env.engine.Points.Enroll(ctx, testTenant, 1001)
	require.NoError(t, err)
	second, err := env.engine.Points.Enroll(ctx, testTenant, 1001)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	other, err := env.engine.Points.Enroll(ctx, 2, 1001)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)

	_, err = env.engine.Points.GetAccount(ctx, 2, first.ID)
	assert.ErrorIs(t, err, apperr.ErrAccountNotFound)

	_, err = env.engine.Points.Earn(ctx, &EarnRequest{TenantID: 2, AccountID: first.ID, Points: 10})
	assert.ErrorIs(t, err, apperr.ErrAccountNotFound)
}

func TestEarnWritesLedgerEvent(t *testing.T) {
	env := setupEngine(t)
	account := env.account(t, 1001, 30)

	messages, err := env.store.Outbox.ListByStatus(context.Background(), model.OutboxStatusPending)
	require.NoError(t, err)
	require.Len(t, messages, 1)

	msg := messages[0]
	assert.Equal(t, model.EventPointsEarned, msg.EventType)
	assert.Equal(t, "loyalty.ledger.event", msg.Topic)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &payload))
	assert.NotEmpty(t, payload["event_id"])
	assert.Equal(t, model.EventPointsEarned, payload["event_type"])
	assert.Equal(t, float64(account.ID), payload["account_id"])
	assert.Equal(t, float64(30), payload["balance_after"])
}
