package database

import (
	"testing"

	"loyaltysystem/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

func TestDialectorFor(t *testing.T) {
	d, err := dialectorFor(&config.DatabaseConfig{Driver: "mysql", Host: "h", Port: 3306, Database: "loyalty"})
	require.NoError(t, err)
	assert.Equal(t, "mysql", d.Name())

	d, err = dialectorFor(&config.DatabaseConfig{Driver: "postgres", Host: "h", Port: 5432, Database: "loyalty"})
	require.NoError(t, err)
	assert.Equal(t, "postgres", d.Name())

	d, err = dialectorFor(&config.DatabaseConfig{Driver: "sqlite", Database: ":memory:"})
	require.NoError(t, err)
	assert.Equal(t, "sqlite", d.Name())

	_, err = dialectorFor(&config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}

func TestLogLevel(t *testing.T) {
	assert.Equal(t, logger.Silent, logLevel("silent"))
	assert.Equal(t, logger.Info, logLevel("info"))
	assert.Equal(t, logger.Warn, logLevel(""))
}

func TestMigrateCreatesTables(t *testing.T) {
	db, err := Open(&config.DatabaseConfig{Driver: "sqlite", Database: ":memory:", LogLevel: "silent"})
	require.NoError(t, err)

	require.NoError(t, Migrate(db))
	for _, table := range []string{"loyalty_account", "loyalty_transaction", "stamp_card", "stamp_transaction",
		"reward_definition", "reward_redemption", "user_reward_progress", "stamp_transaction_code",
		"scan_history", "outbox_message"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
}
