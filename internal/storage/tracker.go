package storage

import (
	"context"
	"fmt"

	"github.com/RecoveryAshes/F95Crawler/internal/utils"
)

// Tracker 判断帖子是否已发布
// 集合只增不减, 只在单个执行流中使用
type Tracker struct {
	store  Store
	remote ExistingSource

	published map[string]struct{}
	pending   []string // 已标记但尚未持久化
}

// NewTracker 创建跟踪器, remote可以为nil
func NewTracker(store Store, remote ExistingSource) *Tracker {
	if store == nil {
		store = NopStore{}
	}
	return &Tracker{
		store:     store,
		remote:    remote,
		published: make(map[string]struct{}),
	}
}

// Load 从本地存储和远端加载已发布集合
// 本地存储失败返回错误, 远端失败只记录警告
func (t *Tracker) Load(ctx context.Context) error {
	local, err := t.store.Load(ctx)
	if err != nil {
		return err
	}
	for _, id := range local {
		t.published[id] = struct{}{}
	}
	utils.Infof("📂 本地已发布记录: %d 个", len(local))

	if t.remote != nil {
		ids, err := t.remote.FetchExisting(ctx)
		for _, id := range ids {
			t.published[id] = struct{}{}
		}
		if err != nil {
			utils.Warnf("⚠️  同步远端已发布帖子失败, 仅使用已加载的 %d 个: %v", len(t.published), err)
		} else if len(ids) > 0 {
			utils.Infof("🌐 远端已存在帖子: %d 个", len(ids))
		}
	}

	return nil
}

// IsDuplicate 帖子是否已发布
func (t *Tracker) IsDuplicate(id string) bool {
	_, ok := t.published[id]
	return ok
}

// MarkPublished 标记为已发布, 调用Save后持久化
func (t *Tracker) MarkPublished(id string) {
	if _, ok := t.published[id]; ok {
		return
	}
	t.published[id] = struct{}{}
	t.pending = append(t.pending, id)
}

// Save 持久化尚未写入的ID
func (t *Tracker) Save(ctx context.Context) error {
	if len(t.pending) == 0 {
		return nil
	}
	if err := t.store.Append(ctx, t.pending); err != nil {
		return fmt.Errorf("保存已发布记录失败: %w", err)
	}
	utils.Debugf("已持久化 %d 个新发布的帖子ID", len(t.pending))
	t.pending = t.pending[:0]
	return nil
}

// Len 已发布集合大小
func (t *Tracker) Len() int {
	return len(t.published)
}

// Close 关闭存储
func (t *Tracker) Close() error {
	return t.store.Close()
}
