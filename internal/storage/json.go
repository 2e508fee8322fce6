package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/RecoveryAshes/F95Crawler/internal/models"
)

// JSONStore 以JSON文件保存已发布ID, 每次追加都原子重写整个文件
type JSONStore struct {
	path string
	mu   sync.Mutex
	ids  map[string]struct{}
}

// NewJSONStore 创建JSON存储
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path, ids: make(map[string]struct{})}
}

// Load 读取文件, 文件不存在时返回空集合
func (s *JSONStore) Load(ctx context.Context) ([]string, error) {
	st, err := models.LoadPublishedState(s.path)
	if err != nil {
		return nil, fmt.Errorf("加载状态文件失败 [%s]: %w", s.path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = st.Set()
	return st.ThreadIDs, nil
}

// Append 合并新ID并写回文件
func (s *JSONStore) Append(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	if err := models.NewPublishedState(s.ids).SaveToFile(s.path); err != nil {
		return fmt.Errorf("保存状态文件失败 [%s]: %w", s.path, err)
	}
	return nil
}

// Close 实现Store接口
func (s *JSONStore) Close() error { return nil }
