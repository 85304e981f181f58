package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"loyaltysystem/internal/apperr"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func render(t *testing.T, fn func(c *gin.Context)) Response {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/points/redeem", nil)

	fn(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestFromErrorMapsKinds(t *testing.T) {
	resp := render(t, func(c *gin.Context) {
		FromError(c, fmt.Errorf("redeem: %w", apperr.InsufficientPoints(7)))
	})
	assert.Equal(t, CodeInsufficientPoints, resp.Code)
	assert.Equal(t, "积分不足", resp.Message)

	resp = render(t, func(c *gin.Context) { FromError(c, apperr.CodeExpiredOrConsumed("ABC123")) })
	assert.Equal(t, CodeCodeExpiredOrConsumed, resp.Code)
}

func TestFromErrorHidesInternalErrors(t *testing.T) {
	resp := render(t, func(c *gin.Context) { FromError(c, errors.New("dial tcp: connection refused")) })
	assert.Equal(t, CodeServerError, resp.Code)
	assert.NotContains(t, resp.Message, "dial tcp")
}

func TestEveryKindHasACode(t *testing.T) {
	kinds := []apperr.Kind{
		apperr.KindInsufficientPoints, apperr.KindInsufficientStamps, apperr.KindCardExpired,
		apperr.KindCardCompleted, apperr.KindRewardUnavailable, apperr.KindCodeExpiredOrConsumed,
		apperr.KindAccountNotFound, apperr.KindAccountInactive, apperr.KindCardNotFound,
		apperr.KindRewardNotFound, apperr.KindProgressNotFound, apperr.KindCodeNotFound,
		apperr.KindNotCodeOwner, apperr.KindInvalidTransition, apperr.KindConcurrentModification,
		apperr.KindInvalidAmount, apperr.KindCodeGenerationExhausted,
	}
	for _, kind := range kinds {
		_, ok := kindErrors[kind]
		assert.True(t, ok, kind)
	}
}

func TestSuccessEnvelope(t *testing.T) {
	resp := render(t, func(c *gin.Context) { Success(c, gin.H{"current_points": 40}) })
	assert.Equal(t, CodeSuccess, resp.Code)
	assert.Equal(t, map[string]interface{}{"current_points": float64(40)}, resp.Data)
}
