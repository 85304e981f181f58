package service

import (
	"context"
	"testing"
	"time"

	"loyaltysystem/internal/config"
	"loyaltysystem/internal/infrastructure/database"
	"loyaltysystem/internal/model"
	"loyaltysystem/internal/repository"
	"loyaltysystem/pkg/clock"

	"github.com/stretchr/testify/require"
)

const testTenant = int64(1)

type testEnv struct {
	engine *Engine
	store  *repository.LedgerStore
	clock  *clock.Manual
}

// setupEngine 使用单连接的内存 SQLite：整个事务串行执行，
// 行锁、锁等待超时和 ConcurrentModification 在这里都不会触发，
// 由 repository 包里带 integration 标签的测试在 MySQL/Postgres 上覆盖
func setupEngine(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.Open(&config.DatabaseConfig{Driver: "sqlite", Database: ":memory:", LogLevel: "silent"})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	store := repository.NewLedgerStore(db, 0, 0)
	clk := clock.NewManual(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	return &testEnv{
		engine: NewEngine(store, config.Default(), clk),
		store:  store,
		clock:  clk,
	}
}

// account 开户并入账 points 积分
func (e *testEnv) account(t *testing.T, customerID, points int64) *model.LoyaltyAccount {
	t.Helper()
	ctx := context.Background()

	account, err := e.engine.Points.Enroll(ctx, testTenant, customerID)
	require.NoError(t, err)
	if points > 0 {
		account, err = e.engine.Points.Earn(ctx, &EarnRequest{TenantID: testTenant, AccountID: account.ID, Points: points, Reason: "seed"})
		require.NoError(t, err)
	}
	return account
}

func (e *testEnv) reward(t *testing.T, reward *model.RewardDefinition) *model.RewardDefinition {
	t.Helper()
	if reward.TenantID == 0 {
		reward.TenantID = testTenant
	}
	if reward.RewardType == "" {
		reward.RewardType = model.RewardTypeFreeItem
	}
	require.NoError(t, e.store.Rewards.Create(context.Background(), nil, reward))
	return reward
}

func (e *testEnv) outboxEvents(t *testing.T) []string {
	t.Helper()
	messages, err := e.store.Outbox.ListByStatus(context.Background(), model.OutboxStatusPending)
	require.NoError(t, err)
	types := make([]string, 0, len(messages))
	for _, msg := range messages {
		types = append(types, msg.EventType)
	}
	return types
}

func int64Ptr(v int64) *int64 {
	return &v
}
