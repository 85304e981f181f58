package model

// All 需要自动迁移的表
func All() []interface{} {
	return []interface{}{
		&LoyaltyAccount{},
		&LoyaltyTransaction{},
		&StampCard{},
		&StampTransaction{},
		&RewardDefinition{},
		&RewardRedemption{},
		&UserRewardProgress{},
		&StampTransactionCode{},
		&ScanHistoryRecord{},
		&OutboxMessage{},
	}
}
