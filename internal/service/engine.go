package service

import (
	"loyaltysystem/internal/config"
	"loyaltysystem/internal/repository"
	"loyaltysystem/pkg/clock"
)

// Engine 账本引擎的全部组件，共用同一个 LedgerStore 和时钟
type Engine struct {
	Points      *PointsLedger
	Cards       *StampCardEngine
	Redemptions *RedemptionCoordinator
	Progress    *ProgressStateMachine
	Codes       *StampCodeIssuer
}

func NewEngine(store *repository.LedgerStore, cfg *config.Config, clk clock.Clock) *Engine {
	points := NewPointsLedger(store, cfg, clk)
	progress := NewProgressStateMachine(store, cfg, clk)
	return &Engine{
		Points:      points,
		Cards:       NewStampCardEngine(store, cfg, clk),
		Redemptions: NewRedemptionCoordinator(store, points, cfg, clk),
		Progress:    progress,
		Codes:       NewStampCodeIssuer(store, progress, cfg, clk),
	}
}
