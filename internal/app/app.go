// internal/app/app.go
package app

import (
	"fmt"
	"time"

	"github.com/qironman/zenapp/internal/api"
	"github.com/qironman/zenapp/internal/auth"
	"github.com/qironman/zenapp/internal/config"
	"github.com/qironman/zenapp/internal/di"
	"github.com/qironman/zenapp/internal/services"
	"github.com/qironman/zenapp/internal/utils"
)

// InitServices 初始化所有服务并注册到容器，返回装配好的 HTTP 处理器。
// 两份状态存储是刻意分开的：编辑端记录"我上次发了什么"，
// webhook 端记录"平台上实际有什么"，绑定操作只修 webhook 端。
func InitServices(cfg *config.Config) (*api.Handler, error) {
	container := di.GetContainer()
	logger := utils.GetLogger()

	publishState, err := services.NewStateService(cfg.PublishStateFile)
	if err != nil {
		return nil, fmt.Errorf("初始化编辑端状态存储失败: %w", err)
	}
	container.Register("publish_state", publishState)

	webhookState, err := services.NewStateService(cfg.WebhookStateFile)
	if err != nil {
		return nil, fmt.Errorf("初始化 webhook 状态存储失败: %w", err)
	}
	container.Register("webhook_state", webhookState)

	payload := services.NewPayloadService(cfg.BooksDir, cfg.PublicBaseURL)
	container.Register("payload", payload)

	publish := services.NewPublishService(payload, publishState, cfg)
	container.Register("publish", publish)

	gate := services.NewPublishGate()
	container.Register("publish_gate", gate)

	progress := services.NewProgressBroker()
	container.Register("progress", progress)

	automation := services.NewAutomationService(cfg, webhookState, gate, progress)
	container.Register("automation", automation)

	secret := []byte(cfg.AuthSecret)
	if len(secret) == 0 {
		// 未配置密钥时每次启动随机生成，重启后旧 token 全部失效
		generated, err := auth.GenerateSecureKey(32)
		if err != nil {
			return nil, fmt.Errorf("生成认证密钥失败: %w", err)
		}
		secret = generated
		if cfg.AuthPassword != "" {
			logger.Warnf("未设置 AUTH_SECRET，使用随机密钥，服务重启后需要重新登录")
		}
	}

	authenticator := auth.NewAuthenticator(cfg.AuthUsername, cfg.AuthPassword, &auth.TokenConfig{
		Secret:     secret,
		Expiration: 24 * time.Hour,
	})
	container.Register("authenticator", authenticator)

	logger.Infof("服务初始化完成: webhook鉴权=%v 编辑端鉴权=%v 真实发布=%v 已注册服务=%v",
		cfg.WebhookToken != "", authenticator.Enabled(), cfg.WebhookConfigured(), container.GetNames())

	return api.NewHandler(cfg, container)
}
