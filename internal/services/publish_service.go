// internal/services/publish_service.go
package services

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/qironman/zenapp/internal/config"
	"github.com/qironman/zenapp/internal/errors"
	"github.com/qironman/zenapp/internal/models"
	"github.com/qironman/zenapp/internal/utils"
)

// PublishService 编辑端的发布决策引擎。
// 它不碰浏览器：比较内容哈希决定发不发、发什么操作，
// 需要真实发布时把载荷投递给 webhook 桥接端。
type PublishService struct {
	payload *PayloadService
	state   *StateService
	config  *config.Config
	client  *http.Client
	logger  *utils.Logger
}

// NewPublishService 创建发布决策服务
func NewPublishService(payload *PayloadService, state *StateService, cfg *config.Config) *PublishService {
	return &PublishService{
		payload: payload,
		state:   state,
		config:  cfg,
		// 浏览器自动化全程可能跑一两分钟，超时放宽到 120 秒
		client: &http.Client{Timeout: 120 * time.Second},
		logger: utils.GetLogger(),
	}
}

// Status 返回章节的发布状态报告，包含是否需要更新和内容预览
func (s *PublishService) Status(bookSlug, chapterSlug string) (*models.PublishStatus, error) {
	payload, err := s.payload.BuildPayload(bookSlug, chapterSlug)
	if err != nil {
		return nil, errors.WrapError(err, "构建发布载荷失败", errors.ErrorTypeError)
	}

	record, _ := s.state.Get(bookSlug, chapterSlug)
	published := record.IsRemote()
	needsUpdate := !published || record.ContentHash != payload.ContentHash

	status := record.Status
	if status == "" {
		status = models.StatusNeverPublished
	}

	return &models.PublishStatus{
		Platform:          models.PlatformXiaohongshu,
		BookSlug:          bookSlug,
		ChapterSlug:       chapterSlug,
		Published:         published,
		NeedsUpdate:       needsUpdate,
		PostID:            record.PostID,
		PostURL:           record.PostURL,
		LastPublishedAt:   record.LastPublishedAt,
		LastOperation:     record.LastOperation,
		Status:            status,
		WebhookConfigured: s.config.WebhookConfigured(),
		Preview: models.PublishPreview{
			Title:      payload.Title,
			Content:    payload.Content,
			ImageCount: len(payload.ImageURLs),
			ImageURLs:  payload.ImageURLs,
		},
	}, nil
}

// Publish 发布或更新章节。
// 内容未变化且非强制时直接短路返回；操作类型由存储记录决定：
// 有已确认的远端 id 走 update，否则走 create。
func (s *PublishService) Publish(bookSlug, chapterSlug string, force bool) (*models.PublishStatus, error) {
	payload, err := s.payload.BuildPayload(bookSlug, chapterSlug)
	if err != nil {
		return nil, errors.WrapError(err, "构建发布载荷失败", errors.ErrorTypeError)
	}

	record, _ := s.state.Get(bookSlug, chapterSlug)
	remotePostID := models.ResolveRemotePostID(record.PostID)
	hasChanges := record.ContentHash != payload.ContentHash

	if remotePostID != "" && !hasChanges && !force {
		status, err := s.Status(bookSlug, chapterSlug)
		if err != nil {
			return nil, err
		}
		status.Message = "No content changes since last publish."
		return status, nil
	}

	operation := models.OperationCreate
	if remotePostID != "" {
		operation = models.OperationUpdate
	}

	result, err := s.dispatch(bookSlug, chapterSlug, operation, remotePostID, payload)
	if err != nil {
		return nil, err
	}

	newRecord := models.PostRecord{
		PostID:          result.PostID,
		PostURL:         result.PostURL,
		ContentHash:     payload.ContentHash,
		LastPublishedAt: time.Now().UTC().Format(time.RFC3339),
		LastOperation:   operation,
		Status:          result.Status,
	}
	if err := s.state.Put(bookSlug, chapterSlug, newRecord); err != nil {
		return nil, errors.NewProcessingError("写入发布状态失败", err)
	}

	s.logger.Infof("发布完成: %s/%s operation=%s status=%s postId=%s",
		bookSlug, chapterSlug, operation, result.Status, result.PostID)

	status, err := s.Status(bookSlug, chapterSlug)
	if err != nil {
		return nil, err
	}
	status.Operation = operation
	status.Message = result.Message
	return status, nil
}

// dispatch 把发布载荷投递给 webhook，未配置 webhook 时仅准备载荷
func (s *PublishService) dispatch(bookSlug, chapterSlug, operation, remotePostID string, payload *models.ChapterPayload) (*models.PublishResponse, error) {
	if !s.config.WebhookConfigured() {
		// 准备模式的占位 id 直接取内容哈希前缀，与真实发布的占位 id 体系不同
		postID := remotePostID
		if postID == "" {
			postID = models.LocalPostIDPrefix + payload.ContentHash[:12]
		}
		return &models.PublishResponse{
			PostID:  postID,
			PostURL: "",
			Status:  models.StatusPrepared,
			Message: "Prepared publish payload. Set XHS_PUBLISH_WEBHOOK for real auto-publish.",
		}, nil
	}

	request := &models.PublishRequest{
		Platform:        models.PlatformXiaohongshu,
		Operation:       operation,
		BookSlug:        bookSlug,
		ChapterSlug:     chapterSlug,
		PostID:          remotePostID,
		Title:           payload.Title,
		Content:         payload.Content,
		ImageURLs:       payload.ImageURLs,
		LocalImagePaths: payload.LocalImagePaths,
		ContentHash:     payload.ContentHash,
	}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, errors.NewProcessingError("序列化发布请求失败", err)
	}

	httpReq, err := http.NewRequest(http.MethodPost, s.config.PublishWebhook, bytes.NewReader(body))
	if err != nil {
		return nil, errors.NewProcessingError("构建 webhook 请求失败", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if s.config.PublishWebhookToken != "" {
		httpReq.Header.Set("X-Webhook-Token", s.config.PublishWebhookToken)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, errors.NewProcessingError("调用发布 webhook 失败", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewProcessingError("读取 webhook 响应失败", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewProcessingError(
			fmt.Sprintf("发布 webhook 返回 %d: %s", resp.StatusCode, truncate(string(respBody), 300)), nil)
	}

	result := &models.PublishResponse{}
	if err := json.Unmarshal(respBody, result); err != nil {
		return nil, errors.NewProcessingError("解析 webhook 响应失败", err)
	}
	if result.PostID == "" {
		return nil, errors.NewProcessingError("webhook 响应缺少 postId", nil)
	}
	return result, nil
}

// LocalPostID 浏览器发布后提取不到笔记 id 时使用的确定性占位 id，
// 同一章节同一内容总是得到同一占位 id
func LocalPostID(bookSlug, chapterSlug, contentHash string) string {
	sum := sha256.Sum256([]byte(bookSlug + ":" + chapterSlug + ":" + contentHash))
	return models.LocalPostIDPrefix + hex.EncodeToString(sum[:])[:12]
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
