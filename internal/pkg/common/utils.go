package common

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// GenerateUUID 生成 UUID
func GenerateUUID() string {
	return uuid.New().String()
}

// RespondError 將錯誤轉為統一的 JSON 錯誤響應
func RespondError(c *gin.Context, err error, debug bool) {
	ce := AsCustomError(err)

	resp := ErrorResponse{
		Code:    ce.Code,
		Message: ce.Message,
	}
	if debug && ce.Err != nil {
		resp.Details = RedactSecrets(ce.Err.Error())
	}

	if !IsClientError(ce) {
		LogError("請求處理失敗",
			zap.String("code", ce.Code),
			zap.String("path", c.Request.URL.Path),
			SafeError(err),
		)
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(ce.Status, resp)
}

// IsClientError 判斷錯誤是否屬於用戶端錯誤
func IsClientError(err error) bool {
	var ce *CustomError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Status >= 400 && ce.Status < 500
}
