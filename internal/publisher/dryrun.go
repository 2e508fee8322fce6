package publisher

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/RecoveryAshes/F95Crawler/internal/models"
	"github.com/RecoveryAshes/F95Crawler/internal/utils"
)

// DryRun 不调用WordPress, 每条记录输出一行JSON (NDJSON)
type DryRun struct {
	mu    sync.Mutex
	enc   *json.Encoder
	proxy *ImageProxy
}

// NewDryRun 创建试运行发布器
func NewDryRun(w io.Writer, proxy *ImageProxy) *DryRun {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &DryRun{enc: enc, proxy: proxy}
}

// Publish 输出整批记录, 编码失败的记录标记为失败
func (d *DryRun) Publish(ctx context.Context, batch *models.Batch) []models.PublishResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	results := make([]models.PublishResult, 0, batch.Len())
	for _, rec := range batch.Records {
		res := models.PublishResult{ThreadID: rec.ID, Title: rec.Title}
		if err := d.enc.Encode(d.proxy.Apply(rec)); err != nil {
			res.Error = &models.PublishError{ThreadID: rec.ID, Cause: err}
		} else {
			res.Success = true
		}
		results = append(results, res)
	}
	utils.Debugf("试运行: 第%d批输出 %d 条记录", batch.Index, len(results))
	return results
}

// MarksPublished 试运行不写入已发布集合
func (d *DryRun) MarksPublished() bool {
	return false
}
