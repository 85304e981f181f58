package response

import (
	"errors"
	"log"
	"net/http"

	"loyaltysystem/internal/apperr"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess         = 0
	CodeParamError      = 400
	CodeUnauthorized    = 401
	CodeForbidden       = 403
	CodeNotFound        = 404
	CodeTooManyRequests = 429
	CodeServerError     = 500
	CodeBusinessError   = 1000
)

// 账本业务错误码
const (
	CodeAccountNotFound         = 1001
	CodeAccountInactive         = 1002
	CodeInsufficientPoints      = 1003
	CodeInsufficientStamps      = 1004
	CodeCardNotFound            = 1005
	CodeCardExpired             = 1006
	CodeCardCompleted           = 1007
	CodeRewardNotFound          = 1008
	CodeRewardUnavailable       = 1009
	CodeStampCodeNotFound       = 1010
	CodeCodeExpiredOrConsumed   = 1011
	CodeNotCodeOwner            = 1012
	CodeProgressNotFound        = 1013
	CodeInvalidTransition       = 1014
	CodeInvalidAmount           = 1015
	CodeConcurrentModification  = 1016
	CodeCodeGenerationExhausted = 1017
)

type businessError struct {
	code    int
	message string
}

var kindErrors = map[apperr.Kind]businessError{
	apperr.KindAccountNotFound:         {CodeAccountNotFound, "账户不存在"},
	apperr.KindAccountInactive:         {CodeAccountInactive, "账户已停用"},
	apperr.KindInsufficientPoints:      {CodeInsufficientPoints, "积分不足"},
	apperr.KindInsufficientStamps:      {CodeInsufficientStamps, "印章数量不足"},
	apperr.KindCardNotFound:            {CodeCardNotFound, "集章卡不存在"},
	apperr.KindCardExpired:             {CodeCardExpired, "集章卡已过期"},
	apperr.KindCardCompleted:           {CodeCardCompleted, "集章卡已完成"},
	apperr.KindRewardNotFound:          {CodeRewardNotFound, "奖励不存在"},
	apperr.KindRewardUnavailable:       {CodeRewardUnavailable, "奖励当前不可兑换"},
	apperr.KindCodeNotFound:            {CodeStampCodeNotFound, "交易码不存在"},
	apperr.KindCodeExpiredOrConsumed:   {CodeCodeExpiredOrConsumed, "交易码已过期或已被使用"},
	apperr.KindNotCodeOwner:            {CodeNotCodeOwner, "无权操作该交易码"},
	apperr.KindProgressNotFound:        {CodeProgressNotFound, "集章进度不存在"},
	apperr.KindInvalidTransition:       {CodeInvalidTransition, "当前状态不允许该操作"},
	apperr.KindInvalidAmount:           {CodeInvalidAmount, "数量必须大于0"},
	apperr.KindConcurrentModification:  {CodeConcurrentModification, "系统繁忙，请重试"},
	apperr.KindCodeGenerationExhausted: {CodeCodeGenerationExhausted, "交易码生成失败，请重试"},
}

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

// FromError 业务错误映射到对应的错误码，其他错误按服务器内部错误返回
func FromError(c *gin.Context, err error) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		if be, ok := kindErrors[appErr.Kind]; ok {
			Error(c, be.code, be.message)
			return
		}
		Error(c, CodeBusinessError, appErr.Error())
		return
	}

	log.Printf("[HTTP] 内部错误: %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	ServerError(c, "服务器内部错误")
}
