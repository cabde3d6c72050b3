// internal/models/publish.go
package models

import "strings"

// 发布平台标识，目前仅支持小红书
const PlatformXiaohongshu = "xiaohongshu"

// LocalPostIDPrefix 本地占位 postId 的保留前缀。
// 带该前缀的 id 永远不会被当作远端笔记 id 使用。
const LocalPostIDPrefix = "local-"

// 发布操作类型
const (
	OperationCreate = "create"
	OperationUpdate = "update"
)

// PostRecord 的 status 取值
const (
	StatusNeverPublished      = "never_published"
	StatusPrepared            = "prepared"
	StatusPublished           = "published"
	StatusPublishedUnverified = "published_unverified"
)

// ChapterPayload 章节的规范化发布载荷（每次请求现算，不落盘）
type ChapterPayload struct {
	Title           string   `json:"title"`
	Content         string   `json:"content"`
	ImageURLs       []string `json:"imageUrls"`
	LocalImagePaths []string `json:"localImagePaths"`
	ContentHash     string   `json:"contentHash"`
}

// PostRecord 每个 (book, chapter) 的最近一次发布记录
type PostRecord struct {
	PostID          string `json:"postId"`
	PostURL         string `json:"postUrl,omitempty"`
	ContentHash     string `json:"contentHash,omitempty"`
	LastPublishedAt string `json:"lastPublishedAt,omitempty"`
	LastOperation   string `json:"lastOperation,omitempty"`
	Status          string `json:"status,omitempty"`
}

// IsRemote 判断记录中的 postId 是否为已确认的远端 id
func (r PostRecord) IsRemote() bool {
	return IsRemotePostID(r.PostID)
}

// PublishState 持久化的发布状态文档（整读整写）
// 缺失字段使用零值，保证向前兼容旧版本文档。
type PublishState struct {
	Version int                   `json:"version"`
	Posts   map[string]PostRecord `json:"posts"`
}

// NewPublishState 创建空的状态文档
func NewPublishState() *PublishState {
	return &PublishState{
		Version: 1,
		Posts:   make(map[string]PostRecord),
	}
}

// PublishRequest webhook 发布请求的线上格式
type PublishRequest struct {
	Platform        string   `json:"platform"`
	Operation       string   `json:"operation"`
	BookSlug        string   `json:"bookSlug"`
	ChapterSlug     string   `json:"chapterSlug"`
	PostID          string   `json:"postId,omitempty"`
	Title           string   `json:"title"`
	Content         string   `json:"content"`
	ImageURLs       []string `json:"imageUrls"`
	LocalImagePaths []string `json:"localImagePaths"`
	ContentHash     string   `json:"contentHash"`
}

// PublishResponse webhook 发布结果
type PublishResponse struct {
	PostID  string `json:"postId"`
	PostURL string `json:"postUrl,omitempty"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// BindRequest 手动绑定远端 postId 的请求（用于找回无法自动确认的发布）
type BindRequest struct {
	BookSlug    string `json:"bookSlug"`
	ChapterSlug string `json:"chapterSlug"`
	PostID      string `json:"postId"`
	PostURL     string `json:"postUrl,omitempty"`
}

// PublishPreview 状态查询中的内容预览
type PublishPreview struct {
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	ImageCount int      `json:"imageCount"`
	ImageURLs  []string `json:"imageUrls"`
}

// PublishStatus 面向编辑端的发布状态报告
type PublishStatus struct {
	Platform          string         `json:"platform"`
	BookSlug          string         `json:"bookSlug"`
	ChapterSlug       string         `json:"chapterSlug"`
	Published         bool           `json:"published"`
	NeedsUpdate       bool           `json:"needsUpdate"`
	PostID            string         `json:"postId,omitempty"`
	PostURL           string         `json:"postUrl,omitempty"`
	LastPublishedAt   string         `json:"lastPublishedAt,omitempty"`
	LastOperation     string         `json:"lastOperation,omitempty"`
	Status            string         `json:"status"`
	WebhookConfigured bool           `json:"webhookConfigured"`
	Preview           PublishPreview `json:"preview"`
	Operation         string         `json:"operation,omitempty"`
	Message           string         `json:"message,omitempty"`
}

// IsLocalPostID 判断是否为本地占位 id
func IsLocalPostID(postID string) bool {
	return strings.HasPrefix(postID, LocalPostIDPrefix)
}

// IsRemotePostID 判断是否为已确认的远端 id（非空且不带本地前缀）
func IsRemotePostID(postID string) bool {
	return postID != "" && !IsLocalPostID(postID)
}

// ResolveRemotePostID 按顺序返回第一个可用的远端 id，找不到则返回空串
func ResolveRemotePostID(candidates ...string) string {
	for _, candidate := range candidates {
		if IsRemotePostID(candidate) {
			return candidate
		}
	}
	return ""
}
