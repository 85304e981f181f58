package handler

import (
	"loyaltysystem/internal/config"
	"loyaltysystem/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter 配置路由
func SetupRouter(engine *service.Engine, cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	h := NewHandler(engine)

	api := r.Group("/api/v1")
	api.Use(IdentityMiddleware())
	{
		// 积分账户
		accounts := api.Group("/accounts")
		{
			accounts.POST("/enroll", h.Enroll)
			accounts.GET("/:id", h.GetAccount)
			accounts.POST("/:id/deactivate", h.DeactivateAccount)
			accounts.GET("/:id/transactions", h.ListTransactions)
			accounts.GET("/:id/redemptions", h.ListRedemptions)
			accounts.GET("/:id/cards", h.ListCards)
		}

		// 积分增减
		points := api.Group("/points")
		{
			points.POST("/earn", h.EarnPoints)
			points.POST("/redeem", h.RedeemPoints)
		}

		// 集章卡
		cards := api.Group("/cards")
		{
			cards.POST("", h.CreateCard)
			cards.GET("/:id", h.GetCard)
			cards.POST("/:id/stamps", h.AddStamps)
			cards.POST("/:id/stamps/remove", h.RemoveStamps)
			cards.POST("/:id/complete", h.CompleteCard)
			cards.GET("/:id/transactions", h.ListStampTransactions)
		}

		// 奖励兑换
		api.POST("/rewards/redeem", h.RedeemReward)

		// 一次性交易码
		codes := api.Group("/stamp-codes")
		{
			codes.POST("", RateLimitMiddleware(cfg.Business.IssueRatePerMinute), h.IssueCode)
			codes.POST("/consume", h.ConsumeCode)
			codes.GET("/:code", h.GetCode)
			codes.POST("/:code/cancel", h.CancelCode)
		}

		// 集章进度
		progress := api.Group("/progress")
		{
			progress.GET("", h.ListProgress)
			progress.GET("/stats", h.ProgressStats)
			progress.POST("/start", h.StartProgress)
			progress.POST("/stamp", h.AddProgressStamp)
			progress.GET("/:id", h.GetProgress)
			progress.POST("/:id/redeem", h.RedeemProgress)
			progress.POST("/:id/reset", h.ResetProgress)
			progress.DELETE("/:id", h.DeleteProgress)
		}

		api.GET("/scan-history", h.ListScanHistory)
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
