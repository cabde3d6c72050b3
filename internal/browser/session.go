// internal/browser/session.go
package browser

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/gofrs/flock"
	"github.com/qironman/zenapp/internal/errors"
)

// guardFileName webhook 在配置目录里占用的锁文件名。
// 登录引导工具持有同一把锁，保证同一配置目录同时只有一个浏览器进程。
const guardFileName = "zenapp-webhook.lock"

// Options 浏览器会话配置
type Options struct {
	ProfileDir    string
	Headless      bool
	ActionTimeout time.Duration

	// 登录引导场景不需要无头回退
	DisableHeadlessFallback bool
}

// Session 绑定持久化配置目录的浏览器会话。
// 配置目录跨调用复用，登录态在进程重启后仍然有效。
type Session struct {
	Ctx context.Context

	actionTimeout time.Duration
	allocCancel   context.CancelFunc
	ctxCancel     context.CancelFunc
	guard         *flock.Flock
}

// NewSession 启动绑定配置目录的浏览器会话。
// 配置目录被其他进程占用时返回独立的 session_error，提示操作者先关掉冲突进程。
func NewSession(opts Options) (*Session, error) {
	if err := os.MkdirAll(opts.ProfileDir, 0755); err != nil {
		return nil, errors.NewSessionError("创建浏览器配置目录失败", err)
	}

	guard := flock.New(filepath.Join(opts.ProfileDir, guardFileName))
	locked, err := guard.TryLock()
	if err == nil && !locked {
		return nil, profileLockedError(nil)
	}
	if err != nil {
		return nil, errors.NewSessionError("获取配置目录锁失败", err)
	}

	session, launchErr := launch(opts.ProfileDir, opts.Headless, opts.ActionTimeout)
	if launchErr != nil {
		message := strings.ToLower(launchErr.Error())

		if !opts.Headless && !opts.DisableHeadlessFallback && isDisplayError(message) {
			// 服务器环境没有显示服务，降级为无头模式再试一次
			session, launchErr = launch(opts.ProfileDir, true, opts.ActionTimeout)
			if launchErr != nil {
				guard.Unlock()
				return nil, errors.NewSessionError(
					"Webhook cannot start browser in headed mode and headless fallback also failed.", launchErr)
			}
		} else {
			guard.Unlock()
			if isSingletonError(message) {
				return nil, profileLockedError(launchErr)
			}
			if isDisplayError(message) {
				return nil, errors.NewSessionError(
					"Webhook is running in headed mode without a display server. "+
						"Set XHS_HEADLESS=true and restart the webhook.", launchErr)
			}
			return nil, errors.NewSessionError("启动浏览器失败", launchErr)
		}
	}

	session.guard = guard
	return session, nil
}

// launch 创建浏览器上下文并确认浏览器进程真的起来了
func launch(profileDir string, headless bool, actionTimeout time.Duration) (*Session, error) {
	allocOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(profileDir),
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	ctx, ctxCancel := chromedp.NewContext(allocCtx)

	// 空 Run 强制启动浏览器，启动失败在这里暴露
	startCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	if err := chromedp.Run(startCtx); err != nil {
		ctxCancel()
		allocCancel()
		return nil, err
	}

	return &Session{
		Ctx:           ctx,
		actionTimeout: actionTimeout,
		allocCancel:   allocCancel,
		ctxCancel:     ctxCancel,
	}, nil
}

// Close 关闭浏览器并释放配置目录锁，可重复调用
func (s *Session) Close() {
	if s.ctxCancel != nil {
		s.ctxCancel()
		s.ctxCancel = nil
	}
	if s.allocCancel != nil {
		s.allocCancel()
		s.allocCancel = nil
	}
	if s.guard != nil {
		s.guard.Unlock()
		s.guard = nil
	}
}

// run 在动作超时限制内执行一组浏览器动作
func (s *Session) run(actions ...chromedp.Action) error {
	tctx, cancel := context.WithTimeout(s.Ctx, s.actionTimeout)
	defer cancel()
	return chromedp.Run(tctx, actions...)
}

// EnableNetwork 打开网络事件域，响应监听依赖它
func (s *Session) EnableNetwork() error {
	return s.run(network.Enable())
}

// Navigate 跳转到目标页面并稍作停顿等待渲染
func (s *Session) Navigate(url string) error {
	return s.run(
		chromedp.Navigate(url),
		chromedp.Sleep(time.Second),
	)
}

// Location 返回当前页面 URL
func (s *Session) Location() (string, error) {
	var loc string
	if err := s.run(chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

// PageHTML 返回当前页面完整 HTML
func (s *Session) PageHTML() (string, error) {
	var html string
	if err := s.run(chromedp.OuterHTML("html", &html)); err != nil {
		return "", err
	}
	return html, nil
}

func profileLockedError(cause error) *errors.AppError {
	return errors.NewSessionError(
		"XHS profile is locked by another browser session. "+
			"Close the login helper (cmd/xhslogin) and related Chromium processes, then retry.", cause)
}

func isSingletonError(lowerMessage string) bool {
	return strings.Contains(lowerMessage, "processsingleton") ||
		strings.Contains(lowerMessage, "singletonlock")
}

func isDisplayError(lowerMessage string) bool {
	return strings.Contains(lowerMessage, "missing x server") ||
		strings.Contains(lowerMessage, "$display") ||
		strings.Contains(lowerMessage, "x11") ||
		strings.Contains(lowerMessage, "no authorisation")
}
