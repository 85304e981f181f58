package handler

import (
	"strconv"

	"loyaltysystem/internal/model"
	"loyaltysystem/internal/service"
	"loyaltysystem/pkg/response"

	"github.com/gin-gonic/gin"
)

// Handler 统一处理器，所有业务都经由引擎完成
type Handler struct {
	engine *service.Engine
}

// NewHandler 创建处理器实例
func NewHandler(engine *service.Engine) *Handler {
	return &Handler{engine: engine}
}

func tenantOf(c *gin.Context) int64 {
	return c.GetInt64(ctxTenantID)
}

func actorOf(c *gin.Context) int64 {
	return c.GetInt64(ctxActorID)
}

// storeOf 未携带门店头时返回 nil
func storeOf(c *gin.Context) *int64 {
	v, ok := c.Get(ctxStoreID)
	if !ok {
		return nil
	}
	id := v.(int64)
	return &id
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.ParamError(c, name+" 参数错误")
		return 0, false
	}
	return id, true
}

func queryID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Query(name), 10, 64)
	if err != nil || id <= 0 {
		response.ParamError(c, name+" 参数错误")
		return 0, false
	}
	return id, true
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	return page, pageSize
}

func pageResult(c *gin.Context, list interface{}, total int64, page, pageSize int) {
	response.Success(c, gin.H{
		"list":      list,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ============================================================
// 积分账户接口
// ============================================================

// EnrollRequest 开户请求
type EnrollRequest struct {
	CustomerID int64 `json:"customer_id" binding:"required"`
}

// Enroll 为顾客开通积分账户，已存在则直接返回
// POST /api/v1/accounts/enroll
func (h *Handler) Enroll(c *gin.Context) {
	var req EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	account, err := h.engine.Points.Enroll(c.Request.Context(), tenantOf(c), req.CustomerID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, account)
}

// GetAccount 查询积分账户
// GET /api/v1/accounts/:id
func (h *Handler) GetAccount(c *gin.Context) {
	accountID, ok := pathID(c, "id")
	if !ok {
		return
	}

	account, err := h.engine.Points.GetAccount(c.Request.Context(), tenantOf(c), accountID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, account)
}

// DeactivateAccount 停用积分账户
// POST /api/v1/accounts/:id/deactivate
func (h *Handler) DeactivateAccount(c *gin.Context) {
	accountID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.engine.Points.Deactivate(c.Request.Context(), tenantOf(c), accountID); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, gin.H{"account_id": accountID, "is_active": false})
}

// ListTransactions 积分流水
// GET /api/v1/accounts/:id/transactions?page=1&page_size=10
func (h *Handler) ListTransactions(c *gin.Context) {
	accountID, ok := pathID(c, "id")
	if !ok {
		return
	}
	page, pageSize := pageParams(c)

	list, total, err := h.engine.Points.ListTransactions(c.Request.Context(), tenantOf(c), accountID, page, pageSize)
	if err != nil {
		response.FromError(c, err)
		return
	}

	pageResult(c, list, total, page, pageSize)
}

// ListRedemptions 兑换记录
// GET /api/v1/accounts/:id/redemptions?page=1&page_size=10
func (h *Handler) ListRedemptions(c *gin.Context) {
	accountID, ok := pathID(c, "id")
	if !ok {
		return
	}
	page, pageSize := pageParams(c)

	list, total, err := h.engine.Points.ListRedemptions(c.Request.Context(), tenantOf(c), accountID, page, pageSize)
	if err != nil {
		response.FromError(c, err)
		return
	}

	pageResult(c, list, total, page, pageSize)
}

// ListCards 账户下的集章卡
// GET /api/v1/accounts/:id/cards
func (h *Handler) ListCards(c *gin.Context) {
	accountID, ok := pathID(c, "id")
	if !ok {
		return
	}

	cards, err := h.engine.Cards.ListCards(c.Request.Context(), tenantOf(c), accountID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, gin.H{"list": cards})
}

// ============================================================
// 积分增减接口
// ============================================================

// EarnPoints 增加积分
// POST /api/v1/points/earn
func (h *Handler) EarnPoints(c *gin.Context) {
	var req service.EarnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	actorID := actorOf(c)
	req.TenantID = tenantOf(c)
	req.StoreID = storeOf(c)
	req.ActorID = &actorID

	account, err := h.engine.Points.Earn(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, account)
}

// RedeemPoints 扣减积分
// POST /api/v1/points/redeem
func (h *Handler) RedeemPoints(c *gin.Context) {
	var req service.RedeemPointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	actorID := actorOf(c)
	req.TenantID = tenantOf(c)
	req.StoreID = storeOf(c)
	req.ActorID = &actorID

	account, err := h.engine.Points.Redeem(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, account)
}

// ============================================================
// 集章卡接口
// ============================================================

// CreateCard 创建集章卡
// POST /api/v1/cards
func (h *Handler) CreateCard(c *gin.Context) {
	var req service.CreateCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	req.TenantID = tenantOf(c)

	card, err := h.engine.Cards.CreateCard(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, card)
}

// GetCard 查询集章卡及完成进度
// GET /api/v1/cards/:id
func (h *Handler) GetCard(c *gin.Context) {
	cardID, ok := pathID(c, "id")
	if !ok {
		return
	}

	card, err := h.engine.Cards.GetCard(c.Request.Context(), tenantOf(c), cardID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, card)
}

// AddStamps 盖章
// POST /api/v1/cards/:id/stamps
func (h *Handler) AddStamps(c *gin.Context) {
	cardID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req service.AddStampsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	actorID := actorOf(c)
	req.TenantID = tenantOf(c)
	req.CardID = cardID
	req.StoreID = storeOf(c)
	req.ActorID = &actorID

	card, err := h.engine.Cards.AddStamps(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, card)
}

// RemoveStamps 撤销印章，必须填写原因
// POST /api/v1/cards/:id/stamps/remove
func (h *Handler) RemoveStamps(c *gin.Context) {
	cardID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req service.RemoveStampsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	actorID := actorOf(c)
	req.TenantID = tenantOf(c)
	req.CardID = cardID
	req.StoreID = storeOf(c)
	req.ActorID = &actorID

	card, err := h.engine.Cards.RemoveStamps(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, card)
}

// CompleteCard 手动完成已集满的卡
// POST /api/v1/cards/:id/complete
func (h *Handler) CompleteCard(c *gin.Context) {
	cardID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req service.CompleteCardRequest
	// 请求体可为空
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ParamError(c, "参数错误: "+err.Error())
			return
		}
	}
	actorID := actorOf(c)
	req.TenantID = tenantOf(c)
	req.CardID = cardID
	req.StoreID = storeOf(c)
	req.ActorID = &actorID

	card, err := h.engine.Cards.CompleteCard(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, card)
}

// ListStampTransactions 集章流水
// GET /api/v1/cards/:id/transactions?page=1&page_size=10
func (h *Handler) ListStampTransactions(c *gin.Context) {
	cardID, ok := pathID(c, "id")
	if !ok {
		return
	}
	page, pageSize := pageParams(c)

	list, total, err := h.engine.Cards.ListStampTransactions(c.Request.Context(), tenantOf(c), cardID, page, pageSize)
	if err != nil {
		response.FromError(c, err)
		return
	}

	pageResult(c, list, total, page, pageSize)
}

// ============================================================
// 奖励兑换接口
// ============================================================

// RedeemReward 用积分兑换奖励，需要门店头
// POST /api/v1/rewards/redeem
func (h *Handler) RedeemReward(c *gin.Context) {
	var req service.RedeemRewardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	storeID := storeOf(c)
	if storeID == nil {
		response.ParamError(c, "缺少门店标识")
		return
	}
	req.TenantID = tenantOf(c)
	req.StoreID = *storeID
	req.ActorID = actorOf(c)

	result, err := h.engine.Redemptions.Redeem(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, result)
}

// ============================================================
// 交易码接口
// ============================================================

// IssueCode 顾客申请一次性交易码，操作人即顾客
// POST /api/v1/stamp-codes
func (h *Handler) IssueCode(c *gin.Context) {
	var req service.IssueCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	req.TenantID = tenantOf(c)
	req.CustomerID = actorOf(c)
	if req.StoreID == nil {
		req.StoreID = storeOf(c)
	}

	code, err := h.engine.Codes.Issue(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, code)
}

// ConsumeCode 店员扫码核销，操作人即店员，需要门店头
// POST /api/v1/stamp-codes/consume
func (h *Handler) ConsumeCode(c *gin.Context) {
	var req service.ConsumeCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	storeID := storeOf(c)
	if storeID == nil {
		response.ParamError(c, "缺少门店标识")
		return
	}
	req.TenantID = tenantOf(c)
	req.StaffID = actorOf(c)
	req.StoreID = *storeID

	result, err := h.engine.Codes.Consume(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, result)
}

// GetCode 查询交易码状态
// GET /api/v1/stamp-codes/:code
func (h *Handler) GetCode(c *gin.Context) {
	code, err := h.engine.Codes.Get(c.Request.Context(), tenantOf(c), c.Param("code"))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, code)
}

// CancelCode 顾客取消自己的未使用交易码
// POST /api/v1/stamp-codes/:code/cancel
func (h *Handler) CancelCode(c *gin.Context) {
	value := c.Param("code")
	if err := h.engine.Codes.Cancel(c.Request.Context(), tenantOf(c), value, actorOf(c)); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, gin.H{"code": value, "status": model.CodeStatusCancelled})
}

// ============================================================
// 集章进度接口
// ============================================================

// ProgressRequest 按顾客和奖励定位进度
type ProgressRequest struct {
	CustomerID int64 `json:"customer_id" binding:"required"`
	RewardID   int64 `json:"reward_id" binding:"required"`
}

// StartProgress 开启一轮集章，已有进行中的记录时直接返回
// POST /api/v1/progress/start
func (h *Handler) StartProgress(c *gin.Context) {
	var req ProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	progress, err := h.engine.Progress.Start(c.Request.Context(), tenantOf(c), req.CustomerID, req.RewardID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, progress)
}

// AddProgressStamp 给进行中的记录加一个章
// POST /api/v1/progress/stamp
func (h *Handler) AddProgressStamp(c *gin.Context) {
	var req ProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	progress, err := h.engine.Progress.AddStamp(c.Request.Context(), tenantOf(c), req.CustomerID, req.RewardID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, progress)
}

// GetProgress 查询单条进度
// GET /api/v1/progress/:id
func (h *Handler) GetProgress(c *gin.Context) {
	progressID, ok := pathID(c, "id")
	if !ok {
		return
	}

	progress, err := h.engine.Progress.GetProgress(c.Request.Context(), tenantOf(c), progressID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, progress)
}

// RedeemProgress 领取已集满的奖励
// POST /api/v1/progress/:id/redeem
func (h *Handler) RedeemProgress(c *gin.Context) {
	progressID, ok := pathID(c, "id")
	if !ok {
		return
	}

	progress, err := h.engine.Progress.RedeemProgress(c.Request.Context(), tenantOf(c), progressID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, progress)
}

// ResetProgress 清零进行中的记录
// POST /api/v1/progress/:id/reset
func (h *Handler) ResetProgress(c *gin.Context) {
	progressID, ok := pathID(c, "id")
	if !ok {
		return
	}

	progress, err := h.engine.Progress.ResetProgress(c.Request.Context(), tenantOf(c), progressID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, progress)
}

// DeleteProgress 删除进度记录
// DELETE /api/v1/progress/:id
func (h *Handler) DeleteProgress(c *gin.Context) {
	progressID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.engine.Progress.Delete(c.Request.Context(), tenantOf(c), progressID); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, gin.H{"progress_id": progressID})
}

// ListProgress 顾客的进度列表，status 为空时返回全部
// GET /api/v1/progress?customer_id=xxx&status=in_progress
func (h *Handler) ListProgress(c *gin.Context) {
	customerID, ok := queryID(c, "customer_id")
	if !ok {
		return
	}
	status := model.ProgressStatus(c.Query("status"))

	list, err := h.engine.Progress.ListCustomerProgress(c.Request.Context(), tenantOf(c), customerID, status)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, gin.H{"list": list})
}

// ProgressStats 顾客的进度统计
// GET /api/v1/progress/stats?customer_id=xxx
func (h *Handler) ProgressStats(c *gin.Context) {
	customerID, ok := queryID(c, "customer_id")
	if !ok {
		return
	}

	stats, err := h.engine.Progress.CustomerStats(c.Request.Context(), tenantOf(c), customerID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, stats)
}

// ListScanHistory 扫码记录
// GET /api/v1/scan-history?customer_id=xxx&page=1&page_size=10
func (h *Handler) ListScanHistory(c *gin.Context) {
	customerID, ok := queryID(c, "customer_id")
	if !ok {
		return
	}
	page, pageSize := pageParams(c)

	list, total, err := h.engine.Progress.ListScanHistory(c.Request.Context(), tenantOf(c), customerID, page, pageSize)
	if err != nil {
		response.FromError(c, err)
		return
	}

	pageResult(c, list, total, page, pageSize)
}
