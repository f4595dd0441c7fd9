package common

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// GenerateUUID 生成 UUID
func GenerateUUID() string {
	return uuid.New().String()
}

// suggestedAction 依錯誤代碼給出使用者可執行的下一步
func suggestedAction(code string) string {
	switch code {
	case ErrCodeReviewConflict:
		return "reload"
	case ErrCodeGateUnsatisfied:
		return "correct"
	case ErrCodeCommitFailed, ErrCodeExtractionFailed, ErrCodeServiceUnavailable, ErrCodeDuplicateImport:
		return "retry"
	case ErrCodeReviewClosed, ErrCodeReviewNotFound:
		return "cancel"
	default:
		return ""
	}
}

// AbortWithError 以統一格式回應錯誤並中斷請求
func AbortWithError(c *gin.Context, err error) {
	var custom *CustomError
	if errors.As(err, &custom) {
		c.AbortWithStatusJSON(custom.Status, ErrorResponse{
			Code:    custom.Code,
			Message: custom.Message,
			Action:  suggestedAction(custom.Code),
		})
		return
	}
	if IsValidationError(err) {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, ErrorResponse{
			Code:    ErrCodeGateUnsatisfied,
			Message: err.Error(),
			Action:  "correct",
		})
		return
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
		Code:    ErrCodeInternalError,
		Message: "服務器內部錯誤",
	})
}
