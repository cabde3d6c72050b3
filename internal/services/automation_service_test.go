// internal/services/automation_service_test.go
package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/qironman/zenapp/internal/config"
	"github.com/qironman/zenapp/internal/errors"
	"github.com/qironman/zenapp/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 覆盖开浏览器之前的所有校验路径，真实的浏览器流程不在单测范围内

func newAutomationFixture(t *testing.T) (*AutomationService, *PublishGate, *StateService) {
	t.Helper()

	state, err := NewStateService(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)

	gate := NewPublishGate()
	svc := NewAutomationService(&config.Config{}, state, gate, NewProgressBroker())
	return svc, gate, state
}

func TestAutomationRejectsUnknownPlatform(t *testing.T) {
	svc, _, _ := newAutomationFixture(t)

	_, err := svc.Publish(&models.PublishRequest{Platform: "weibo"})
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
}

func TestAutomationRequiresSlugs(t *testing.T) {
	svc, _, _ := newAutomationFixture(t)

	_, err := svc.Publish(&models.PublishRequest{Platform: models.PlatformXiaohongshu})
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
}

func TestAutomationRejectsNonImageURLs(t *testing.T) {
	svc, _, _ := newAutomationFixture(t)

	_, err := svc.Publish(&models.PublishRequest{
		Platform:    models.PlatformXiaohongshu,
		Operation:   models.OperationCreate,
		BookSlug:    "b",
		ChapterSlug: "c",
		ImageURLs:   []string{"http://x/video.mp4"},
	})
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
	assert.Contains(t, err.Error(), "Unsupported image URL(s)")
}

func TestAutomationConflictWhenGateHeld(t *testing.T) {
	svc, gate, _ := newAutomationFixture(t)

	require.True(t, gate.TryAcquire("other"))
	defer gate.Release()

	_, err := svc.Publish(&models.PublishRequest{
		Platform:    models.PlatformXiaohongshu,
		Operation:   models.OperationCreate,
		BookSlug:    "b",
		ChapterSlug: "c",
	})
	require.Error(t, err)
	assert.True(t, errors.IsConflictError(err))
}

func TestAutomationUpdateWithoutRemoteIDFailsEarly(t *testing.T) {
	svc, gate, state := newAutomationFixture(t)

	// 存储里只有本地占位 id，不足以支撑 update
	require.NoError(t, state.Put("b", "c", models.PostRecord{PostID: "local-abc123"}))

	_, err := svc.Publish(&models.PublishRequest{
		Platform:    models.PlatformXiaohongshu,
		Operation:   models.OperationUpdate,
		BookSlug:    "b",
		ChapterSlug: "c",
	})
	require.Error(t, err)
	assert.True(t, errors.IsAutomationError(err))
	assert.Contains(t, err.Error(), "remote postId is unavailable")

	// 失败后闸门已释放
	assert.True(t, gate.TryAcquire("next"))
	gate.Release()
}

func TestBuildResponseFallbacks(t *testing.T) {
	svc, _, _ := newAutomationFixture(t)

	req := &models.PublishRequest{
		BookSlug:    "b",
		ChapterSlug: "c",
		ContentHash: "hash",
	}

	// 提取成功
	resp := svc.buildResponse(req, models.PostRecord{}, "", "note1", "https://www.xiaohongshu.com/explore/note1")
	assert.Equal(t, models.StatusPublished, resp.Status)
	assert.Equal(t, "note1", resp.PostID)

	// 提取失败但有已知远端 id
	resp = svc.buildResponse(req, models.PostRecord{PostURL: "https://old"}, "note0", "", "")
	assert.Equal(t, models.StatusPublishedUnverified, resp.Status)
	assert.Equal(t, "note0", resp.PostID)
	assert.Equal(t, "https://old", resp.PostURL)

	// 完全没有远端 id，退回确定性占位 id
	resp = svc.buildResponse(req, models.PostRecord{}, "", "", "")
	assert.Equal(t, models.StatusPublishedUnverified, resp.Status)
	assert.True(t, models.IsLocalPostID(resp.PostID))
	assert.Equal(t, LocalPostID("b", "c", "hash"), resp.PostID)
}

func TestUsableLocalPaths(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "a.jpg")
	require.NoError(t, os.WriteFile(existing, []byte("x"), 0644))

	paths := usableLocalPaths([]string{existing, filepath.Join(dir, "missing.jpg"), "", dir})
	assert.Equal(t, []string{existing}, paths)
}
