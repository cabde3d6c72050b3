// internal/api/response_helpers.go
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/qironman/zenapp/internal/errors"
	"github.com/qironman/zenapp/internal/utils"
)

// ErrorResponse 统一的错误响应格式
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// RespondOK 发送成功响应
func RespondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// RespondError 根据错误类型映射 HTTP 状态码并发送错误响应
func RespondError(c *gin.Context, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		utils.GetLogger().Errorf("请求处理失败 %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}

	response := ErrorResponse{Error: err.Error()}
	if appErr, ok := err.(*errors.AppError); ok {
		response.Error = appErr.Message
		response.Code = appErr.Code
	}
	c.JSON(status, response)
}

// statusForError 错误类型到 HTTP 状态码的映射。
// 会话和自动化错误意味着下游浏览器环节失败，按网关错误报告。
func statusForError(err error) int {
	switch errors.TypeOf(err) {
	case errors.ErrorTypeValidation:
		return http.StatusBadRequest
	case errors.ErrorTypeNotFound:
		return http.StatusNotFound
	case errors.ErrorTypeUnauthorized:
		return http.StatusUnauthorized
	case errors.ErrorTypeConflict:
		return http.StatusConflict
	case errors.ErrorTypeSession, errors.ErrorTypeAutomation:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
