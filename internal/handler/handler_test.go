package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"loyaltysystem/internal/config"
	"loyaltysystem/internal/infrastructure/database"
	"loyaltysystem/internal/model"
	"loyaltysystem/internal/repository"
	"loyaltysystem/internal/service"
	"loyaltysystem/pkg/clock"
	"loyaltysystem/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiEnv struct {
	router *gin.Engine
	store  *repository.LedgerStore
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func setupAPI(t *testing.T, issuePerMinute int) *apiEnv {
	t.Helper()

	db, err := database.Open(&config.DatabaseConfig{Driver: "sqlite", Database: ":memory:", LogLevel: "silent"})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	cfg := config.Default()
	cfg.Business.IssueRatePerMinute = issuePerMinute

	store := repository.NewLedgerStore(db, 0, 0)
	engine := service.NewEngine(store, cfg, clock.Real())
	return &apiEnv{router: SetupRouter(engine, cfg), store: store}
}

func (e *apiEnv) do(t *testing.T, method, path string, body interface{}, headers map[string]string) envelope {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func identity(tenantID, actorID int64) map[string]string {
	return map[string]string{
		HeaderTenantID: strconv.FormatInt(tenantID, 10),
		HeaderActorID:  strconv.FormatInt(actorID, 10),
	}
}

func withStore(h map[string]string, storeID int64) map[string]string {
	h[HeaderStoreID] = strconv.FormatInt(storeID, 10)
	return h
}

func TestIdentityHeadersRequired(t *testing.T) {
	env := setupAPI(t, 0)

	resp := env.do(t, http.MethodPost, "/api/v1/accounts/enroll", gin.H{"customer_id": 1}, nil)
	assert.Equal(t, response.CodeUnauthorized, resp.Code)

	resp = env.do(t, http.MethodPost, "/api/v1/accounts/enroll", gin.H{"customer_id": 1},
		map[string]string{HeaderTenantID: "1", HeaderActorID: "abc"})
	assert.Equal(t, response.CodeUnauthorized, resp.Code)
}

func TestPointsFlowOverHTTP(t *testing.T) {
	env := setupAPI(t, 0)
	h := identity(1, 900)

	resp := env.do(t, http.MethodPost, "/api/v1/accounts/enroll", gin.H{"customer_id": 42}, h)
	require.Equal(t, response.CodeSuccess, resp.Code)
	var account model.LoyaltyAccount
	require.NoError(t, json.Unmarshal(resp.Data, &account))

	resp = env.do(t, http.MethodPost, "/api/v1/points/earn", gin.H{"account_id": account.ID, "points": 100, "reason": "purchase"}, h)
	require.Equal(t, response.CodeSuccess, resp.Code)

	resp = env.do(t, http.MethodPost, "/api/v1/points/redeem", gin.H{"account_id": account.ID, "points": 60, "reason": "discount"}, h)
	require.Equal(t, response.CodeSuccess, resp.Code)
	require.NoError(t, json.Unmarshal(resp.Data, &account))
	assert.Equal(t, int64(40), account.CurrentPoints)

	resp = env.do(t, http.MethodPost, "/api/v1/points/redeem", gin.H{"account_id": account.ID, "points": 50}, h)
	assert.Equal(t, response.CodeInsufficientPoints, resp.Code)

	resp = env.do(t, http.MethodPost, "/api/v1/points/earn", gin.H{"account_id": account.ID, "points": 0}, h)
	assert.Equal(t, response.CodeInvalidAmount, resp.Code)

	resp = env.do(t, http.MethodGet, "/api/v1/accounts/"+strconv.FormatInt(account.ID, 10)+"/transactions?page=1&page_size=10", nil, h)
	require.Equal(t, response.CodeSuccess, resp.Code)
	var page struct {
		Total int64 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &page))
	assert.Equal(t, int64(2), page.Total)

	// 其他租户看不到该账户
	resp = env.do(t, http.MethodGet, "/api/v1/accounts/"+strconv.FormatInt(account.ID, 10), nil, identity(2, 900))
	assert.Equal(t, response.CodeAccountNotFound, resp.Code)
}

func TestStampCodeFlowOverHTTP(t *testing.T) {
	env := setupAPI(t, 0)
	reward := &model.RewardDefinition{TenantID: 1, Name: "Free coffee", RewardType: model.RewardTypeStampReward, StampsRequired: 2, IsActive: true}
	require.NoError(t, env.store.Rewards.Create(context.Background(), nil, reward))

	customer := identity(1, 42)
	staff := withStore(identity(1, 7), 3)

	for i := 0; i < 2; i++ {
		resp := env.do(t, http.MethodPost, "/api/v1/stamp-codes", gin.H{"reward_id": reward.ID}, customer)
		require.Equal(t, response.CodeSuccess, resp.Code)
		var code model.StampTransactionCode
		require.NoError(t, json.Unmarshal(resp.Data, &code))
		assert.Equal(t, model.CodeStatusPending, code.Status)

		resp = env.do(t, http.MethodPost, "/api/v1/stamp-codes/consume", gin.H{"code": code.Code}, staff)
		require.Equal(t, response.CodeSuccess, resp.Code)

		resp = env.do(t, http.MethodPost, "/api/v1/stamp-codes/consume", gin.H{"code": code.Code}, staff)
		assert.Equal(t, response.CodeCodeExpiredOrConsumed, resp.Code)
	}

	resp := env.do(t, http.MethodGet, "/api/v1/progress?customer_id=42&status=ready_to_redeem", nil, staff)
	require.Equal(t, response.CodeSuccess, resp.Code)
	var list struct {
		List []model.UserRewardProgress `json:"list"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &list))
	require.Len(t, list.List, 1)

	path := "/api/v1/progress/" + strconv.FormatInt(list.List[0].ID, 10) + "/redeem"
	resp = env.do(t, http.MethodPost, path, nil, staff)
	require.Equal(t, response.CodeSuccess, resp.Code)
	resp = env.do(t, http.MethodPost, path, nil, staff)
	assert.Equal(t, response.CodeCodeExpiredOrConsumed, resp.Code)

	resp = env.do(t, http.MethodGet, "/api/v1/scan-history?customer_id=42", nil, staff)
	require.Equal(t, response.CodeSuccess, resp.Code)
	var history struct {
		Total int64 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &history))
	assert.Equal(t, int64(2), history.Total)
}

func TestConsumeRequiresStore(t *testing.T) {
	env := setupAPI(t, 0)

	resp := env.do(t, http.MethodPost, "/api/v1/stamp-codes/consume", gin.H{"code": "ABCDEFGH"}, identity(1, 7))
	assert.Equal(t, response.CodeParamError, resp.Code)

	resp = env.do(t, http.MethodPost, "/api/v1/stamp-codes/consume", gin.H{"code": "ABCDEFGH"}, withStore(identity(1, 7), 3))
	assert.Equal(t, response.CodeStampCodeNotFound, resp.Code)
}

func TestIssueCodeRateLimited(t *testing.T) {
	env := setupAPI(t, 2)
	reward := &model.RewardDefinition{TenantID: 1, Name: "Free bagel", RewardType: model.RewardTypeStampReward, StampsRequired: 5, IsActive: true}
	require.NoError(t, env.store.Rewards.Create(context.Background(), nil, reward))

	customer := identity(1, 42)
	for i := 0; i < 2; i++ {
		resp := env.do(t, http.MethodPost, "/api/v1/stamp-codes", gin.H{"reward_id": reward.ID}, customer)
		require.Equal(t, response.CodeSuccess, resp.Code)
	}
	resp := env.do(t, http.MethodPost, "/api/v1/stamp-codes", gin.H{"reward_id": reward.ID}, customer)
	assert.Equal(t, response.CodeTooManyRequests, resp.Code)

	// 限流按操作人隔离
	resp = env.do(t, http.MethodPost, "/api/v1/stamp-codes", gin.H{"reward_id": reward.ID}, identity(1, 43))
	assert.Equal(t, response.CodeSuccess, resp.Code)
}

func TestCardOverHTTP(t *testing.T) {
	env := setupAPI(t, 0)
	h := identity(1, 900)

	resp := env.do(t, http.MethodPost, "/api/v1/accounts/enroll", gin.H{"customer_id": 42}, h)
	var account model.LoyaltyAccount
	require.NoError(t, json.Unmarshal(resp.Data, &account))

	resp = env.do(t, http.MethodPost, "/api/v1/cards", gin.H{"account_id": account.ID, "title": "Coffee", "total_stamps": 3}, h)
	require.Equal(t, response.CodeSuccess, resp.Code)
	var card model.StampCard
	require.NoError(t, json.Unmarshal(resp.Data, &card))

	cardPath := "/api/v1/cards/" + strconv.FormatInt(card.ID, 10)
	resp = env.do(t, http.MethodPost, cardPath+"/stamps/remove", gin.H{"count": 1}, h)
	assert.Equal(t, response.CodeParamError, resp.Code)

	resp = env.do(t, http.MethodPost, cardPath+"/stamps", gin.H{"count": 4}, h)
	require.Equal(t, response.CodeSuccess, resp.Code)

	resp = env.do(t, http.MethodPost, cardPath+"/stamps", gin.H{"count": 1}, h)
	assert.Equal(t, response.CodeCardCompleted, resp.Code)

	resp = env.do(t, http.MethodGet, cardPath, nil, h)
	require.Equal(t, response.CodeSuccess, resp.Code)
	var view struct {
		CurrentStamps   int  `json:"current_stamps"`
		IsCompleted     bool `json:"is_completed"`
		ProgressPercent int  `json:"progress_percent"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &view))
	assert.Equal(t, 3, view.CurrentStamps)
	assert.True(t, view.IsCompleted)
	assert.Equal(t, 100, view.ProgressPercent)
}

func TestHealthAndMetrics(t *testing.T) {
	env := setupAPI(t, 0)

	for _, path := range []string{"/health", "/metrics"} {
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}
