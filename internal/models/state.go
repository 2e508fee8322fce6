package models

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// PublishedState 已发布帖子ID的持久化格式
type PublishedState struct {
	ThreadIDs []string  `json:"thread_ids"` // 已排序
	UpdatedAt time.Time `json:"updated_at"`
}

// NewPublishedState 从ID集合创建状态
func NewPublishedState(ids map[string]struct{}) *PublishedState {
	list := make([]string, 0, len(ids))
	for id := range ids {
		list = append(list, id)
	}
	sort.Strings(list)
	return &PublishedState{ThreadIDs: list, UpdatedAt: time.Now()}
}

// Set 转换为ID集合
func (s *PublishedState) Set() map[string]struct{} {
	set := make(map[string]struct{}, len(s.ThreadIDs))
	for _, id := range s.ThreadIDs {
		if id != "" {
			set[id] = struct{}{}
		}
	}
	return set
}

// ToJSON 序列化为JSON
func (s *PublishedState) ToJSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// FromJSON 从JSON反序列化
// 兼容旧格式: 纯ID数组
func (s *PublishedState) FromJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err == nil {
		s.ThreadIDs = ids
		return nil
	}
	return json.Unmarshal(data, s)
}

// SaveToFile 原子写入文件 (先写临时文件再重命名)
func (s *PublishedState) SaveToFile(path string) error {
	data, err := s.ToJSON()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("创建状态目录失败: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("写入临时文件失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("替换状态文件失败: %w", err)
	}
	return nil
}

// LoadPublishedState 从文件加载
// 文件不存在时返回空状态
func LoadPublishedState(path string) (*PublishedState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &PublishedState{}, nil
		}
		return nil, err
	}

	var st PublishedState
	if err := st.FromJSON(data); err != nil {
		return nil, fmt.Errorf("解析状态文件失败: %w", err)
	}
	return &st, nil
}
