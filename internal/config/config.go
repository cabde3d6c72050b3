// internal/config/config.go
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ServiceName 用于 /health 和日志
const ServiceName = "ZenApp Xiaohongshu Webhook"

// Config 存储应用配置，全部来自环境变量
type Config struct {
	Port      string
	DataDir   string
	LogDir    string
	DebugMode bool

	// 编辑端认证（单用户）
	AuthSecret   string
	AuthUsername string
	AuthPassword string

	// 章节内容与图片解析
	BooksDir      string
	PublicBaseURL string

	// 编辑端触发发布用的 webhook 地址（为空表示仅准备载荷，不做真实发布）
	PublishWebhook      string
	PublishWebhookToken string
	PublishStateFile    string

	// webhook 桥接端配置
	WebhookToken          string
	ProfileDir            string
	WebhookStateFile      string
	Headless              bool
	AllowInteractiveLogin bool
	LoginWait             time.Duration
	ActionTimeout         time.Duration
	PublishURL            string
	EditURLTemplate       string
	NoteURLBase           string
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	// 尝试加载.env文件（可选）
	godotenv.Load()

	dataDir := getEnvPath("DATA_DIR", "data")

	config := &Config{
		Port:      getEnv("PORT", "8001"),
		DataDir:   dataDir,
		LogDir:    getEnvPath("LOG_DIR", "logs"),
		DebugMode: getEnvBool("DEBUG_MODE", true),

		AuthSecret:   getEnv("AUTH_SECRET", ""),
		AuthUsername: getEnv("AUTH_USERNAME", "ye"),
		AuthPassword: getEnv("AUTH_PASSWORD", ""),

		BooksDir:      filepath.Join(dataDir, "books"),
		PublicBaseURL: strings.TrimRight(getEnv("ZENAPP_PUBLIC_BASE_URL", "http://localhost:8001"), "/"),

		PublishWebhook:      strings.TrimSpace(getEnv("XHS_PUBLISH_WEBHOOK", "")),
		PublishWebhookToken: strings.TrimSpace(getEnv("XHS_PUBLISH_WEBHOOK_TOKEN", "")),
		PublishStateFile:    getEnv("XHS_PUBLISH_STATE_FILE", filepath.Join(dataDir, "publish", "xiaohongshu_state.json")),

		WebhookToken:          strings.TrimSpace(getEnv("XHS_WEBHOOK_TOKEN", "")),
		ProfileDir:            getEnv("XHS_PROFILE_DIR", filepath.Join(dataDir, "xhs_profile")),
		WebhookStateFile:      getEnv("XHS_WEBHOOK_STATE_FILE", filepath.Join(dataDir, "xhs_webhook", "state.json")),
		Headless:              getEnvBool("XHS_HEADLESS", false),
		AllowInteractiveLogin: getEnvBool("XHS_ALLOW_INTERACTIVE_LOGIN", true),
		LoginWait:             time.Duration(getEnvInt("XHS_LOGIN_WAIT_SECONDS", 180)) * time.Second,
		ActionTimeout:         time.Duration(getEnvInt("XHS_ACTION_TIMEOUT_MS", 90000)) * time.Millisecond,
		PublishURL:            getEnv("XHS_PUBLISH_URL", "https://creator.xiaohongshu.com/publish/publish"),
		EditURLTemplate:       getEnv("XHS_EDIT_URL_TEMPLATE", "https://creator.xiaohongshu.com/publish/publish?noteId={post_id}"),
		NoteURLBase:           strings.TrimRight(getEnv("XHS_NOTE_URL_BASE", "https://www.xiaohongshu.com/explore"), "/"),
	}

	// 服务器环境没有显示服务时自动回退到无头模式
	if !config.Headless && strings.TrimSpace(os.Getenv("DISPLAY")) == "" {
		config.Headless = true
	}

	if config.WebhookToken == "" {
		// 只记录警告，不返回错误
		log.Println("警告: 未设置 XHS_WEBHOOK_TOKEN，webhook 端点将不做鉴权")
	}

	return config, nil
}

// WebhookConfigured 返回编辑端是否配置了真实发布的 webhook
func (c *Config) WebhookConfigured() bool {
	return c.PublishWebhook != ""
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvPath 获取环境变量表示的路径，如果不存在则返回默认值
func getEnvPath(key, defaultValue string) string {
	path := getEnv(key, defaultValue)

	// 确保目录存在
	if _, err := os.Stat(path); os.IsNotExist(err) {
		err = os.MkdirAll(path, 0755)
		if err != nil {
			fmt.Printf("警告: 创建目录失败 %s: %v\n", path, err)
		}
	}

	return path
}

// getEnvBool 获取布尔类型环境变量
func getEnvBool(key string, defaultValue bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return defaultValue
	}

	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt 获取整数类型环境变量
func getEnvInt(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("警告: 环境变量 %s=%q 不是合法整数，使用默认值 %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}
