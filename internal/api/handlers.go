// internal/api/handlers.go
package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/qironman/zenapp/internal/auth"
	"github.com/qironman/zenapp/internal/config"
	"github.com/qironman/zenapp/internal/di"
	"github.com/qironman/zenapp/internal/errors"
	"github.com/qironman/zenapp/internal/models"
	"github.com/qironman/zenapp/internal/services"
)

// Handler 聚合所有 HTTP 处理器的依赖
type Handler struct {
	config        *config.Config
	authenticator *auth.Authenticator
	payload       *services.PayloadService
	publish       *services.PublishService
	automation    *services.AutomationService
	webhookState  *services.StateService
	progress      *services.ProgressBroker
}

// NewHandler 从容器解析依赖并创建处理器集合
func NewHandler(cfg *config.Config, container *di.Container) (*Handler, error) {
	h := &Handler{config: cfg}

	var ok bool
	if h.authenticator, ok = container.Get("authenticator").(*auth.Authenticator); !ok {
		return nil, fmt.Errorf("容器中缺少服务: authenticator")
	}
	if h.payload, ok = container.Get("payload").(*services.PayloadService); !ok {
		return nil, fmt.Errorf("容器中缺少服务: payload")
	}
	if h.publish, ok = container.Get("publish").(*services.PublishService); !ok {
		return nil, fmt.Errorf("容器中缺少服务: publish")
	}
	if h.automation, ok = container.Get("automation").(*services.AutomationService); !ok {
		return nil, fmt.Errorf("容器中缺少服务: automation")
	}
	if h.webhookState, ok = container.Get("webhook_state").(*services.StateService); !ok {
		return nil, fmt.Errorf("容器中缺少服务: webhook_state")
	}
	if h.progress, ok = container.Get("progress").(*services.ProgressBroker); !ok {
		return nil, fmt.Errorf("容器中缺少服务: progress")
	}
	return h, nil
}

// HealthHandler 健康检查
func (h *Handler) HealthHandler(c *gin.Context) {
	RespondOK(c, gin.H{
		"status":  "ok",
		"service": config.ServiceName,
	})
}

// LoginHandler 编辑端登录，签发 Bearer token
func (h *Handler) LoginHandler(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, errors.NewValidationError("Invalid request body", err))
		return
	}

	token, err := h.authenticator.Login(req.Username, req.Password)
	if err != nil {
		RespondError(c, errors.NewUnauthorizedError("Invalid username or password", err))
		return
	}

	RespondOK(c, gin.H{
		"accessToken": token,
		"tokenType":   "bearer",
		"username":    req.Username,
	})
}

// StatusHandler 查询章节的发布状态
func (h *Handler) StatusHandler(c *gin.Context) {
	status, err := h.publish.Status(c.Param("book"), c.Param("chapter"))
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, status)
}

// PublishChapterHandler 触发章节发布（编辑端入口）
func (h *Handler) PublishChapterHandler(c *gin.Context) {
	var req struct {
		Force bool `json:"force"`
	}
	// 请求体可选，空 body 等价于 force=false
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			RespondError(c, errors.NewValidationError("Invalid request body", err))
			return
		}
	}

	status, err := h.publish.Publish(c.Param("book"), c.Param("chapter"), req.Force)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, status)
}

// PreviewHandler 返回章节的 HTML 预览
func (h *Handler) PreviewHandler(c *gin.Context) {
	bookSlug := c.Param("book")
	chapterSlug := c.Param("chapter")

	title, html, err := h.payload.PreviewHTML(bookSlug, chapterSlug)
	if err != nil {
		RespondError(c, err)
		return
	}

	RespondOK(c, gin.H{
		"bookSlug":    bookSlug,
		"chapterSlug": chapterSlug,
		"title":       title,
		"html":        html,
	})
}

// WebhookPublishHandler webhook 端的真实发布入口，驱动浏览器自动化
func (h *Handler) WebhookPublishHandler(c *gin.Context) {
	var req models.PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, errors.NewValidationError("Invalid request body", err))
		return
	}

	response, err := h.automation.Publish(&req)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, response)
}

// BindHandler 手动绑定远端 postId。
// 自动提取失败时操作者从浏览器地址栏拿到真实笔记 id，通过这里补录。
func (h *Handler) BindHandler(c *gin.Context) {
	var req models.BindRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, errors.NewValidationError("Invalid request body", err))
		return
	}

	if req.BookSlug == "" || req.ChapterSlug == "" || req.PostID == "" {
		RespondError(c, errors.NewValidationError("bookSlug, chapterSlug and postId are required", nil))
		return
	}
	if models.IsLocalPostID(req.PostID) {
		RespondError(c, errors.NewValidationError(
			"Refusing to bind a local placeholder id. Provide the real note id.", nil))
		return
	}

	record, err := h.webhookState.UpdateBinding(req.BookSlug, req.ChapterSlug, req.PostID, req.PostURL)
	if err != nil {
		RespondError(c, errors.NewProcessingError("写入绑定记录失败", err))
		return
	}

	RespondOK(c, gin.H{
		"status":  "bound",
		"key":     services.StateKey(req.BookSlug, req.ChapterSlug),
		"postId":  record.PostID,
		"postUrl": record.PostURL,
	})
}
