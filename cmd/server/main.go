// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/qironman/zenapp/internal/api"
	"github.com/qironman/zenapp/internal/app"
	"github.com/qironman/zenapp/internal/config"
	"github.com/qironman/zenapp/internal/utils"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ 加载配置失败: %v", err)
	}

	// 初始化日志
	if err := utils.InitLogger(filepath.Join(cfg.LogDir, "zenapp.log")); err != nil {
		log.Printf("警告: 初始化文件日志失败，仅输出到控制台: %v", err)
	}
	logger := utils.GetLogger()
	if cfg.DebugMode {
		logger.SetLogLevel(utils.DEBUG)
	}

	// 初始化服务
	handler, err := app.InitServices(cfg)
	if err != nil {
		logger.Fatalf("❌ 初始化服务失败: %v", err)
	}

	router := api.SetupRouter(cfg, handler)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// 启动服务器
	go func() {
		logger.Infof("🚀 %s 启动，监听端口 %s", config.ServiceName, cfg.Port)
		if !cfg.WebhookConfigured() {
			logger.Infof("📝 未配置 XHS_PUBLISH_WEBHOOK，发布请求只准备载荷不会真实发布")
		}
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("❌ 服务器启动失败: %v", err)
		}
	}()

	// 等待中断信号，优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Infof("⏳ 正在关闭服务器...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("❌ 服务器强制关闭: %v", err)
	}
	logger.Infof("👋 服务器已退出")
}
