// internal/services/publish_service_test.go
package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/qironman/zenapp/internal/config"
	"github.com/qironman/zenapp/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newPublishFixture 组装决策引擎及其依赖，webhookURL 为空表示仅准备模式
func newPublishFixture(t *testing.T, booksDir, webhookURL string) (*PublishService, *StateService) {
	t.Helper()

	state, err := NewStateService(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)

	cfg := &config.Config{
		PublishWebhook:      webhookURL,
		PublishWebhookToken: "secret-token",
	}
	payload := NewPayloadService(booksDir, baseURL)
	return NewPublishService(payload, state, cfg), state
}

func TestPublishPreparedModeUsesLocalPlaceholder(t *testing.T) {
	booksDir := writeChapter(t, "book1", "ch1", "# 标题\n\n正文。\n")
	svc, _ := newPublishFixture(t, booksDir, "")

	status, err := svc.Publish("book1", "ch1", false)
	require.NoError(t, err)

	assert.Equal(t, models.StatusPrepared, status.Status)
	assert.False(t, status.Published)
	assert.Equal(t, models.OperationCreate, status.Operation)
	assert.Contains(t, status.Message, "Prepared publish payload")

	// 占位 id 是内容哈希的前 12 位
	payload, err := NewPayloadService(booksDir, baseURL).BuildPayload("book1", "ch1")
	require.NoError(t, err)
	assert.Equal(t, models.LocalPostIDPrefix+payload.ContentHash[:12], status.PostID)
}

func TestPublishShortCircuitWhenUnchanged(t *testing.T) {
	booksDir := writeChapter(t, "book1", "ch1", "# 标题\n\n正文。\n")

	var calls int32
	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		json.NewEncoder(w).Encode(models.PublishResponse{PostID: "note1", Status: models.StatusPublished})
	}))
	defer webhook.Close()

	svc, state := newPublishFixture(t, booksDir, webhook.URL)

	// 先发一次，记录内容哈希
	_, err := svc.Publish("book1", "ch1", false)
	require.NoError(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))

	// 内容没变，第二次直接短路
	status, err := svc.Publish("book1", "ch1", false)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, "No content changes since last publish.", status.Message)
	assert.True(t, status.Published)
	assert.False(t, status.NeedsUpdate)

	// force 绕过短路
	_, err = svc.Publish("book1", "ch1", true)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	record, ok := state.Get("book1", "ch1")
	require.True(t, ok)
	assert.Equal(t, "note1", record.PostID)
}

func TestPublishSelectsUpdateForRemotePost(t *testing.T) {
	booksDir := writeChapter(t, "book1", "ch1", "# 标题\n\n新正文。\n")

	var received models.PublishRequest
	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret-token", r.Header.Get("X-Webhook-Token"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		json.NewEncoder(w).Encode(models.PublishResponse{PostID: "note1", Status: models.StatusPublished})
	}))
	defer webhook.Close()

	svc, state := newPublishFixture(t, booksDir, webhook.URL)
	require.NoError(t, state.Put("book1", "ch1", models.PostRecord{
		PostID:      "note1",
		ContentHash: "stale-hash",
	}))

	status, err := svc.Publish("book1", "ch1", false)
	require.NoError(t, err)

	assert.Equal(t, models.OperationUpdate, received.Operation)
	assert.Equal(t, "note1", received.PostID)
	assert.Equal(t, models.OperationUpdate, status.Operation)
}

func TestPublishLocalPlaceholderNeverTriggersUpdate(t *testing.T) {
	booksDir := writeChapter(t, "book1", "ch1", "# 标题\n\n正文。\n")

	var received models.PublishRequest
	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		json.NewEncoder(w).Encode(models.PublishResponse{PostID: "note9", Status: models.StatusPublished})
	}))
	defer webhook.Close()

	svc, state := newPublishFixture(t, booksDir, webhook.URL)
	require.NoError(t, state.Put("book1", "ch1", models.PostRecord{
		PostID:      "local-abc123def456",
		ContentHash: "stale-hash",
	}))

	_, err := svc.Publish("book1", "ch1", false)
	require.NoError(t, err)

	// 占位 id 不算已发布，必须走 create 且不携带 postId
	assert.Equal(t, models.OperationCreate, received.Operation)
	assert.Empty(t, received.PostID)
}

func TestPublishWebhookFailureLeavesStateUntouched(t *testing.T) {
	booksDir := writeChapter(t, "book1", "ch1", "# 标题\n\n正文。\n")

	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer webhook.Close()

	svc, state := newPublishFixture(t, booksDir, webhook.URL)

	_, err := svc.Publish("book1", "ch1", false)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "502"))

	_, ok := state.Get("book1", "ch1")
	assert.False(t, ok)
}

func TestStatusNeedsUpdateTracking(t *testing.T) {
	booksDir := writeChapter(t, "book1", "ch1", "# 标题\n\n正文。\n")
	svc, state := newPublishFixture(t, booksDir, "")

	// 从未发布
	status, err := svc.Status("book1", "ch1")
	require.NoError(t, err)
	assert.False(t, status.Published)
	assert.True(t, status.NeedsUpdate)
	assert.Equal(t, models.StatusNeverPublished, status.Status)
	assert.Equal(t, "标题", status.Preview.Title)

	// 已发布且哈希一致
	payload, err := NewPayloadService(booksDir, baseURL).BuildPayload("book1", "ch1")
	require.NoError(t, err)
	require.NoError(t, state.Put("book1", "ch1", models.PostRecord{
		PostID:      "note1",
		ContentHash: payload.ContentHash,
		Status:      models.StatusPublished,
	}))

	status, err = svc.Status("book1", "ch1")
	require.NoError(t, err)
	assert.True(t, status.Published)
	assert.False(t, status.NeedsUpdate)
}

func TestLocalPostIDDeterministic(t *testing.T) {
	id1 := LocalPostID("b", "c", "hash")
	id2 := LocalPostID("b", "c", "hash")
	id3 := LocalPostID("b", "c", "other")

	assert.Equal(t, id1, id2)
	assert.NotEqual(t, id1, id3)
	assert.True(t, models.IsLocalPostID(id1))
	assert.Len(t, id1, len(models.LocalPostIDPrefix)+12)
}
