package core

import (
	"context"
	"errors"

	"github.com/RecoveryAshes/F95Crawler/internal/models"
	"github.com/RecoveryAshes/F95Crawler/internal/utils"
)

// Publisher 发布一批记录, 单条失败不影响其余记录
type Publisher interface {
	Publish(ctx context.Context, batch *models.Batch) []models.PublishResult
	// MarksPublished 成功的记录是否写入已发布集合 (试运行为false)
	MarksPublished() bool
}

// DuplicateTracker 已发布帖子集合
type DuplicateTracker interface {
	IsDuplicate(id string) bool
	MarkPublished(id string)
	Save(ctx context.Context) error
}

// Batcher 累积提取好的记录, 满一批后发布
type Batcher struct {
	publisher Publisher
	tracker   DuplicateTracker
	summary   *models.RunSummary
	size      int

	index   int
	pending []*models.GameRecord
	results []models.PublishResult
}

// NewBatcher 创建批处理器
func NewBatcher(publisher Publisher, tracker DuplicateTracker, summary *models.RunSummary, size int) *Batcher {
	if size < 1 {
		size = models.DefaultBatchSize
	}
	return &Batcher{
		publisher: publisher,
		tracker:   tracker,
		summary:   summary,
		size:      size,
		pending:   make([]*models.GameRecord, 0, size),
	}
}

// Add 加入一条记录, 满一批时立即发布
func (b *Batcher) Add(ctx context.Context, rec *models.GameRecord) {
	b.pending = append(b.pending, rec)
	if len(b.pending) >= b.size {
		b.Flush(ctx)
	}
}

// Pending 尚未发布的记录数
func (b *Batcher) Pending() int {
	return len(b.pending)
}

// Results 全部发布结果
func (b *Batcher) Results() []models.PublishResult {
	return b.results
}

// Flush 发布当前累积的记录并持久化已发布集合
func (b *Batcher) Flush(ctx context.Context) {
	if len(b.pending) == 0 {
		return
	}

	b.index++
	batch := &models.Batch{Index: b.index, Records: b.pending}
	b.pending = make([]*models.GameRecord, 0, b.size)

	utils.Infof("📦 发布第%d批: %d 条记录", batch.Index, batch.Len())

	refs := make(map[string]models.ThreadRef, batch.Len())
	for _, rec := range batch.Records {
		refs[rec.ID] = rec.ThreadRef
	}

	stats := &b.summary.Stats
	ok, failed := 0, 0
	for _, res := range b.publisher.Publish(ctx, batch) {
		if res.Success {
			ok++
			stats.Published++
			if b.publisher.MarksPublished() {
				b.tracker.MarkPublished(res.ThreadID)
			}
		} else {
			failed++
			stats.PublishFailures++
			err := res.Error
			if err == nil {
				err = errors.New("未知错误")
			}
			b.summary.AddFailure(refs[res.ThreadID], "publish", err)
			utils.Warnf("❌ 发布失败 [%s]: %v", res.ThreadID, err)
		}
		b.results = append(b.results, res)
	}
	stats.Batches++

	// 每批之后增量保存, 中断时已发布的记录不会重复发布
	if err := b.tracker.Save(context.WithoutCancel(ctx)); err != nil {
		utils.Errorf("❌ %v", err)
	}

	utils.Infof("✅ 第%d批完成: 成功 %d, 失败 %d", batch.Index, ok, failed)
}
