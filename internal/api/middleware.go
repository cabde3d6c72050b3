// internal/api/middleware.go
package api

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/qironman/zenapp/internal/auth"
	"github.com/qironman/zenapp/internal/errors"
)

// WebhookTokenMiddleware 校验 webhook 共享令牌。
// 未配置令牌时放行所有请求（配置层已经打过警告）。
func WebhookTokenMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}

		provided := c.GetHeader("X-Webhook-Token")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			RespondError(c, errors.NewUnauthorizedError("Invalid webhook token", nil))
			c.Abort()
			return
		}
		c.Next()
	}
}

// CORSMiddleware 允许编辑端前端跨域访问
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Webhook-Token")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}

// BearerAuthMiddleware 校验编辑端的 Bearer token。
// 认证未启用（没设口令）时放行，单机自用场景不强制登录。
func BearerAuthMiddleware(authenticator *auth.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authenticator.Enabled() {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			RespondError(c, errors.NewUnauthorizedError("Missing bearer token", nil))
			c.Abort()
			return
		}

		username, err := authenticator.Verify(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			RespondError(c, errors.NewUnauthorizedError("Invalid or expired token", err))
			c.Abort()
			return
		}

		c.Set("username", username)
		c.Next()
	}
}
