package response

import (
	"errors"
	"net/http"

	"mindmate/internal/service"
	"mindmate/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorBody 错误响应结构
type ErrorBody struct {
	Error string `json:"error"`
}

// ActionBody 操作结果响应结构
type ActionBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Success 成功响应，直接返回数据
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// SuccessWithMessage 操作成功响应
func SuccessWithMessage(c *gin.Context, message string) {
	c.JSON(http.StatusOK, ActionBody{Success: true, Message: message})
}

// Error 错误响应
func Error(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, ErrorBody{Error: message})
}

// BadRequest 400错误
func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

// StatusOf 业务错误对应的状态码与对外提示
// 未识别的错误一律视为 500，不暴露内部细节
func StatusOf(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, "Invalid input"
	case errors.Is(err, service.ErrInvalidCursor):
		return http.StatusBadRequest, "invalid before parameter"
	case errors.Is(err, service.ErrMessageNotFound):
		return http.StatusNotFound, "Message not found"
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "You can only modify your own messages"
	case errors.Is(err, service.ErrMessageDeleted):
		return http.StatusConflict, "Message has been deleted"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// FromError 根据业务错误写入响应
func FromError(c *gin.Context, err error) {
	status, message := StatusOf(err)
	if status >= http.StatusInternalServerError {
		logger.Error("请求处理失败",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
	}
	Error(c, status, message)
}
