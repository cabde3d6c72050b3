// internal/api/router.go
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/qironman/zenapp/internal/config"
)

// SetupRouter 注册全部路由。
// webhook 组用共享令牌鉴权，编辑端组用 Bearer token 鉴权，两组互不相干。
func SetupRouter(cfg *config.Config, h *Handler) *gin.Engine {
	if !cfg.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), CORSMiddleware())

	// webhook 桥接端（发布自动化）
	r.GET("/health", h.HealthHandler)
	webhook := r.Group("/", WebhookTokenMiddleware(cfg.WebhookToken))
	{
		webhook.POST("/publish", h.WebhookPublishHandler)
		webhook.POST("/bind", h.BindHandler)
	}

	// 编辑端
	r.POST("/api/login", h.LoginHandler)
	authorized := r.Group("/api", BearerAuthMiddleware(h.authenticator))
	{
		authorized.GET("/publish/xiaohongshu/:book/:chapter", h.StatusHandler)
		authorized.POST("/publish/xiaohongshu/:book/:chapter", h.PublishChapterHandler)
		authorized.GET("/books/:book/chapters/:chapter/preview", h.PreviewHandler)
	}

	// 发布进度推送
	r.GET("/ws/publish", h.ProgressWebSocketHandler)

	return r
}
