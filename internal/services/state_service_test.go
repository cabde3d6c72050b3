// internal/services/state_service_test.go
package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/qironman/zenapp/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStateService(t *testing.T) *StateService {
	t.Helper()
	svc, err := NewStateService(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)
	return svc
}

func TestStateRoundtrip(t *testing.T) {
	svc := newTestStateService(t)

	record := models.PostRecord{
		PostID:      "abc123",
		PostURL:     "https://www.xiaohongshu.com/explore/abc123",
		ContentHash: "deadbeef",
		Status:      models.StatusPublished,
	}
	require.NoError(t, svc.Put("book1", "ch1", record))

	got, ok := svc.Get("book1", "ch1")
	require.True(t, ok)
	assert.Equal(t, record, got)

	_, ok = svc.Get("book1", "other")
	assert.False(t, ok)
}

func TestStateMissingFileIsEmpty(t *testing.T) {
	svc := newTestStateService(t)

	state := svc.Load()
	assert.Equal(t, 1, state.Version)
	assert.Empty(t, state.Posts)
}

func TestStateCorruptFileTreatedAsEmpty(t *testing.T) {
	dir := t.TempDir()
	stateFile := filepath.Join(dir, "state.json")
	require.NoError(t, os.WriteFile(stateFile, []byte("{not json"), 0644))

	svc, err := NewStateService(stateFile)
	require.NoError(t, err)

	state := svc.Load()
	assert.Empty(t, state.Posts)

	// 损坏状态可以被正常覆盖写入
	require.NoError(t, svc.Put("b", "c", models.PostRecord{PostID: "x1"}))
	got, ok := svc.Get("b", "c")
	require.True(t, ok)
	assert.Equal(t, "x1", got.PostID)
}

func TestUpdateBindingPreservesOtherFields(t *testing.T) {
	svc := newTestStateService(t)

	require.NoError(t, svc.Put("book1", "ch1", models.PostRecord{
		PostID:        "local-abc123def456",
		ContentHash:   "hash1",
		LastOperation: models.OperationCreate,
		Status:        models.StatusPublishedUnverified,
	}))

	record, err := svc.UpdateBinding("book1", "ch1", "real789", "https://www.xiaohongshu.com/explore/real789")
	require.NoError(t, err)

	assert.Equal(t, "real789", record.PostID)
	assert.Equal(t, "https://www.xiaohongshu.com/explore/real789", record.PostURL)
	assert.Equal(t, "hash1", record.ContentHash)
	assert.Equal(t, models.StatusPublishedUnverified, record.Status)
}

func TestUpdateBindingEmptyURLKeepsExisting(t *testing.T) {
	svc := newTestStateService(t)

	require.NoError(t, svc.Put("b", "c", models.PostRecord{
		PostID:  "old",
		PostURL: "https://example.com/old",
	}))

	record, err := svc.UpdateBinding("b", "c", "new", "")
	require.NoError(t, err)
	assert.Equal(t, "new", record.PostID)
	assert.Equal(t, "https://example.com/old", record.PostURL)
}

func TestStateKey(t *testing.T) {
	assert.Equal(t, "book1/ch1", StateKey("book1", "ch1"))
}
