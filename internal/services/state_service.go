// internal/services/state_service.go
package services

import (
	"fmt"
	"path/filepath"

	"github.com/qironman/zenapp/internal/models"
	"github.com/qironman/zenapp/internal/storage"
	"github.com/qironman/zenapp/internal/utils"
)

// StateService 管理发布状态文档（单文件整读整写）。
// 读到损坏的文件不算错误，按"没有历史状态"处理；
// 写入方只有持有发布闸门的编排器，最后写入者胜出是安全的。
type StateService struct {
	storage  *storage.FileStorage
	filename string
}

// NewStateService 创建状态存储服务，stateFile 为状态文档路径
func NewStateService(stateFile string) (*StateService, error) {
	fs, err := storage.NewFileStorage(filepath.Dir(stateFile))
	if err != nil {
		return nil, fmt.Errorf("初始化状态存储失败: %w", err)
	}

	return &StateService{
		storage:  fs,
		filename: filepath.Base(stateFile),
	}, nil
}

// StateKey 组合 (book, chapter) 为状态文档的键
func StateKey(bookSlug, chapterSlug string) string {
	return bookSlug + "/" + chapterSlug
}

// Load 读取状态文档，文件缺失或损坏时返回空文档
func (s *StateService) Load() *models.PublishState {
	if !s.storage.FileExists("", s.filename) {
		return models.NewPublishState()
	}

	state := &models.PublishState{}
	if err := s.storage.LoadJSONFile("", s.filename, state); err != nil {
		utils.GetLogger().Warnf("状态文档损坏，按空状态处理: %v", err)
		return models.NewPublishState()
	}

	if state.Posts == nil {
		state.Posts = make(map[string]models.PostRecord)
	}
	if state.Version == 0 {
		state.Version = 1
	}
	return state
}

// Save 整体覆盖写入状态文档
func (s *StateService) Save(state *models.PublishState) error {
	return s.storage.SaveJSONFile("", s.filename, state)
}

// Get 返回指定章节的发布记录
func (s *StateService) Get(bookSlug, chapterSlug string) (models.PostRecord, bool) {
	state := s.Load()
	record, ok := state.Posts[StateKey(bookSlug, chapterSlug)]
	return record, ok
}

// Put 覆盖指定章节的发布记录
func (s *StateService) Put(bookSlug, chapterSlug string, record models.PostRecord) error {
	state := s.Load()
	state.Posts[StateKey(bookSlug, chapterSlug)] = record
	return s.Save(state)
}

// UpdateBinding 手动绑定远端 postId，保留记录中的其他字段
func (s *StateService) UpdateBinding(bookSlug, chapterSlug, postID, postURL string) (models.PostRecord, error) {
	state := s.Load()
	key := StateKey(bookSlug, chapterSlug)

	record := state.Posts[key]
	record.PostID = postID
	if postURL != "" {
		record.PostURL = postURL
	}
	state.Posts[key] = record

	if err := s.Save(state); err != nil {
		return models.PostRecord{}, err
	}
	return record, nil
}
