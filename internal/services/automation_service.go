// internal/services/automation_service.go
package services

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/qironman/zenapp/internal/browser"
	"github.com/qironman/zenapp/internal/config"
	"github.com/qironman/zenapp/internal/errors"
	"github.com/qironman/zenapp/internal/models"
	"github.com/qironman/zenapp/internal/utils"
)

// AutomationService 驱动真实浏览器完成发布的编排器。
// 整个流程持有发布闸门串行执行，状态只在发布动作成功后落盘，
// 中途失败不会留下半写的记录。
type AutomationService struct {
	config   *config.Config
	state    *StateService
	gate     *PublishGate
	progress *ProgressBroker
	logger   *utils.Logger
}

// NewAutomationService 创建浏览器编排服务，state 必须是 webhook 端的状态存储
func NewAutomationService(cfg *config.Config, state *StateService, gate *PublishGate, progress *ProgressBroker) *AutomationService {
	return &AutomationService{
		config:   cfg,
		state:    state,
		gate:     gate,
		progress: progress,
		logger:   utils.GetLogger(),
	}
}

// Publish 执行一次浏览器发布，同一时间只允许一个发布流程
func (s *AutomationService) Publish(req *models.PublishRequest) (*models.PublishResponse, error) {
	if req.Platform != models.PlatformXiaohongshu {
		return nil, errors.NewValidationError(
			fmt.Sprintf("Unsupported platform: %s", req.Platform), nil)
	}
	if req.BookSlug == "" || req.ChapterSlug == "" {
		return nil, errors.NewValidationError("bookSlug and chapterSlug are required", nil)
	}

	localPaths := usableLocalPaths(req.LocalImagePaths)
	if len(localPaths) == 0 && len(req.ImageURLs) > 0 {
		var unsupported []string
		for _, imageURL := range req.ImageURLs {
			if !IsImageURL(imageURL) {
				unsupported = append(unsupported, imageURL)
			}
		}
		if len(unsupported) > 0 {
			return nil, errors.NewValidationError(
				fmt.Sprintf("Unsupported image URL(s): %s", strings.Join(unsupported, ", ")), nil)
		}
	}

	runID := uuid.NewString()[:8]
	if !s.gate.TryAcquire(runID) {
		holder, since := s.gate.Holder()
		s.logger.Warnf("发布请求被拒绝: 执行槽被 %s 占用（自 %s）", holder, since.Format(time.RFC3339))
		return nil, errors.NewConflictError("Another publish task is in progress. Please wait.", nil)
	}
	defer s.gate.Release()

	s.logger.Infof("开始发布流程 run=%s %s/%s operation=%s images=%d",
		runID, req.BookSlug, req.ChapterSlug, req.Operation, len(localPaths))

	return s.runPublish(runID, req, localPaths)
}

// runPublish 闸门保护下的实际发布流程
func (s *AutomationService) runPublish(runID string, req *models.PublishRequest, localPaths []string) (*models.PublishResponse, error) {
	record, _ := s.state.Get(req.BookSlug, req.ChapterSlug)
	remotePostID := models.ResolveRemotePostID(req.PostID, record.PostID)

	isUpdate := req.Operation == models.OperationUpdate
	if isUpdate && remotePostID == "" {
		// 没有远端 id 时更新无从谈起，在开浏览器之前就失败
		return nil, errors.NewAutomationError(
			"Update requested but remote postId is unavailable. "+
				"Bind the real note id via POST /bind, or publish as create.", nil)
	}

	s.emit(runID, "session", "启动浏览器会话")
	session, err := browser.NewSession(browser.Options{
		ProfileDir:    s.config.ProfileDir,
		Headless:      s.config.Headless,
		ActionTimeout: s.config.ActionTimeout,
	})
	if err != nil {
		return nil, err
	}
	defer session.Close()

	if err := session.EnableNetwork(); err != nil {
		return nil, errors.NewAutomationError("开启网络监听失败", err)
	}
	capture := browser.AttachNoteCapture(session.Ctx, s.config.NoteURLBase)

	targetURL := s.config.PublishURL
	if isUpdate {
		targetURL = strings.ReplaceAll(s.config.EditURLTemplate, "{post_id}", remotePostID)
	}

	s.emit(runID, "navigate", "打开发布页 "+targetURL)
	if err := session.Navigate(targetURL); err != nil {
		return nil, errors.NewAutomationError("打开发布页失败", err)
	}

	s.emit(runID, "login", "校验登录态")
	if err := s.ensureLoggedIn(session); err != nil {
		return nil, err
	}

	if !isUpdate {
		s.emit(runID, "tab", "切换到图文发布")
		if err := s.switchToImageTab(session); err != nil {
			return nil, err
		}
	}

	if len(localPaths) > 0 {
		s.emit(runID, "upload", fmt.Sprintf("上传 %d 张图片", len(localPaths)))
		uploaded, err := session.UploadFiles(browser.UploadInputSelectors, localPaths)
		if err != nil {
			return nil, errors.NewAutomationError("上传图片失败", err)
		}
		if !uploaded {
			return nil, errors.NewAutomationError("Could not find image upload input on publish page.", nil)
		}
		time.Sleep(2 * time.Second)
	}

	editorFields := append(append([]browser.Selector{}, browser.TitleSelectors...), browser.ContentSelectors...)
	if !session.WaitAnyVisible(editorFields, 45*time.Second) {
		return nil, errors.NewAutomationError("Editor fields did not appear after upload.", nil)
	}

	s.emit(runID, "fill", "填写标题与正文")
	filled, err := session.FillFirst(browser.TitleSelectors, req.Title)
	if err != nil {
		return nil, errors.NewAutomationError("填写标题失败", err)
	}
	if !filled {
		return nil, errors.NewAutomationError("Could not find title input field.", nil)
	}

	filled, err = session.FillFirst(browser.ContentSelectors, req.Content)
	if err != nil {
		return nil, errors.NewAutomationError("填写正文失败", err)
	}
	if !filled {
		return nil, errors.NewAutomationError("Could not find content editor field.", nil)
	}

	buttons := browser.PublishButtonSelectors
	if isUpdate {
		buttons = browser.UpdateButtonSelectors
	}

	s.emit(runID, "submit", "点击发布按钮")
	clicked, err := session.ClickFirstEnabled(buttons)
	if err != nil {
		return nil, errors.NewAutomationError("点击发布按钮失败", err)
	}
	if !clicked {
		return nil, errors.NewAutomationError("Could not find a clickable publish/update button.", nil)
	}
	// 留时间给提交请求和跳转
	time.Sleep(5 * time.Second)

	s.emit(runID, "extract", "提取笔记 ID")
	noteID, noteURL := s.extractNote(session, capture)

	response := s.buildResponse(req, record, remotePostID, noteID, noteURL)

	s.emit(runID, "persist", "写入发布状态")
	newRecord := models.PostRecord{
		PostID:          response.PostID,
		PostURL:         response.PostURL,
		ContentHash:     req.ContentHash,
		LastPublishedAt: time.Now().UTC().Format(time.RFC3339),
		LastOperation:   req.Operation,
		Status:          response.Status,
	}
	if err := s.state.Put(req.BookSlug, req.ChapterSlug, newRecord); err != nil {
		return nil, errors.NewAutomationError("写入发布状态失败", err)
	}

	s.logger.Infof("发布流程结束 run=%s status=%s postId=%s", runID, response.Status, response.PostID)
	return response, nil
}

// ensureLoggedIn 校验登录态。
// 无头模式下没人能扫码，直接失败并给出可执行的提示；
// 有界面且允许交互登录时，轮询等待操作者在弹出的窗口里完成扫码。
func (s *AutomationService) ensureLoggedIn(session *browser.Session) error {
	if s.isLoggedIn(session) {
		return nil
	}

	if s.config.Headless {
		return errors.NewSessionError(
			"Xiaohongshu login required in the webhook browser profile. "+
				"Run the login helper (cmd/xhslogin) on a machine with a display, then retry.", nil)
	}
	if !s.config.AllowInteractiveLogin {
		return errors.NewSessionError(
			"Xiaohongshu login required. Run the login helper (cmd/xhslogin) first.", nil)
	}

	s.logger.Infof("等待操作者扫码登录（最长 %s）", s.config.LoginWait)
	deadline := time.Now().Add(s.config.LoginWait)
	for time.Now().Before(deadline) {
		if s.isLoggedIn(session) {
			return nil
		}
		time.Sleep(time.Second)
	}

	return errors.NewSessionError(
		fmt.Sprintf("Login was not completed within %s. Scan the QR code in the opened browser window and retry.",
			s.config.LoginWait), nil)
}

// isLoggedIn 综合 URL 和页面元素判断登录态：
// 必须在创作平台域名上、不在登录相关页面、没有登录提示元素，且编辑区已渲染
func (s *AutomationService) isLoggedIn(session *browser.Session) bool {
	location, err := session.Location()
	if err != nil {
		return false
	}
	if !strings.Contains(location, "creator.xiaohongshu.com") {
		return false
	}

	lower := strings.ToLower(location)
	if strings.Contains(lower, "login") || strings.Contains(lower, "passport") {
		return false
	}

	if session.AnyVisible(browser.LoginIndicatorSelectors) {
		return false
	}

	editorFields := append(append(append([]browser.Selector{},
		browser.TitleSelectors...), browser.ContentSelectors...), browser.UploadInputSelectors...)
	return session.AnyPresent(editorFields)
}

// switchToImageTab 切换到图文发布标签页。
// 点不到标签但编辑区已经在（页面默认落在图文模式）时视为成功。
func (s *AutomationService) switchToImageTab(session *browser.Session) error {
	clicked, err := session.ClickFirstInViewport(browser.ImageTabSelectors)
	if err == nil && clicked {
		time.Sleep(1500 * time.Millisecond)
		return nil
	}

	editorFields := append(append([]browser.Selector{}, browser.TitleSelectors...), browser.ContentSelectors...)
	if session.AnyPresent(editorFields) {
		return nil
	}
	return errors.NewAutomationError("Could not switch to image post tab ('上传图文').", err)
}

// extractNote 按固定优先级提取笔记 ID：
// 成功页 URL 最可信，其次是页面 HTML 里的详情链接，最后才是网络监听的捕获。
func (s *AutomationService) extractNote(session *browser.Session, capture *browser.NoteCapture) (string, string) {
	if location, err := session.Location(); err == nil {
		if noteID, noteURL := browser.ExtractNoteFromQuery(location, s.config.NoteURLBase); noteID != "" {
			return noteID, noteURL
		}
	}

	if html, err := session.PageHTML(); err == nil {
		if noteID, noteURL := browser.ExtractNoteFromHTML(html); noteID != "" {
			return noteID, noteURL
		}
	}

	return capture.Result()
}

// buildResponse 根据提取结果组装响应。
// 提取失败不是发布失败：动作已经做完，只是拿不到远端确认，
// 标记为 published_unverified 并退回已知的远端 id 或本地占位 id。
func (s *AutomationService) buildResponse(req *models.PublishRequest, record models.PostRecord, remotePostID, noteID, noteURL string) *models.PublishResponse {
	if noteID != "" {
		return &models.PublishResponse{
			PostID:  noteID,
			PostURL: noteURL,
			Status:  models.StatusPublished,
			Message: "Published and extracted note ID.",
		}
	}

	postID := remotePostID
	if postID == "" {
		postID = LocalPostID(req.BookSlug, req.ChapterSlug, req.ContentHash)
	}
	return &models.PublishResponse{
		PostID:  postID,
		PostURL: record.PostURL,
		Status:  models.StatusPublishedUnverified,
		Message: "Publish action completed but note ID could not be auto-detected. Using fallback postId.",
	}
}

func (s *AutomationService) emit(runID, step, message string) {
	s.logger.Debugf("[%s] %s: %s", runID, step, message)
	s.progress.Publish(runID, step, message)
}

// usableLocalPaths 过滤掉磁盘上不存在的本地图片路径
func usableLocalPaths(paths []string) []string {
	var usable []string
	for _, path := range paths {
		if path == "" {
			continue
		}
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			usable = append(usable, path)
		}
	}
	return usable
}
