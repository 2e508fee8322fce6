package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// StopReason 运行结束原因
type StopReason string

const (
	StopPageLimit    StopReason = "page_limit"    // 达到页数上限
	StopThreadLimit  StopReason = "thread_limit"  // 达到帖子数上限
	StopNoMorePages  StopReason = "no_more_pages" // 列表页没有新帖子
	StopCaughtUp     StopReason = "caught_up"     // 整页都已发布
	StopListingError StopReason = "listing_error" // 后续列表页抓取失败
	StopCancelled    StopReason = "cancelled"     // 被信号中断
	StopFatal        StopReason = "fatal"         // 致命错误
)

// RunLimits 运行上限
// 0 表示不限制
type RunLimits struct {
	Pages      int  `json:"pages"`       // 最多抓取的列表页数
	MaxThreads int  `json:"max_threads"` // 最多抓取的帖子数
	BatchSize  int  `json:"batch_size"`  // 每批发布的记录数 (默认:10)
	Infinite   bool `json:"infinite"`    // 忽略页数上限,直到没有新页
}

// DefaultBatchSize 默认批大小
const DefaultBatchSize = 10

// MaxBatchSize 批大小上限
const MaxBatchSize = 500

// Validate 验证上限参数
func (l *RunLimits) Validate() error {
	if l.Pages < 0 {
		return fmt.Errorf("页数不能为负数: %d", l.Pages)
	}
	if l.MaxThreads < 0 {
		return fmt.Errorf("帖子数不能为负数: %d", l.MaxThreads)
	}
	if l.BatchSize < 1 || l.BatchSize > MaxBatchSize {
		return fmt.Errorf("批大小必须在1-%d之间", MaxBatchSize)
	}
	return nil
}

// PageAllowed 判断是否还能抓取第page页 (从1开始)
func (l *RunLimits) PageAllowed(page int) bool {
	if l.Infinite || l.Pages == 0 {
		return true
	}
	return page <= l.Pages
}

// ThreadAllowed 判断已抓取fetched个帖子后是否还能继续
func (l *RunLimits) ThreadAllowed(fetched int) bool {
	return l.MaxThreads == 0 || fetched < l.MaxThreads
}

// RunStats 运行统计
type RunStats struct {
	PagesFetched      int `json:"pages_fetched"`      // 成功抓取的列表页
	ThreadsFound      int `json:"threads_found"`      // 列表页中发现的帖子
	DuplicatesSkipped int `json:"duplicates_skipped"` // 已发布或本次已见过的帖子
	ThreadsFetched    int `json:"threads_fetched"`    // 尝试抓取的帖子页
	Extracted         int `json:"extracted"`          // 成功提取的记录
	Published         int `json:"published"`          // 成功发布的记录
	FetchFailures     int `json:"fetch_failures"`
	ExtractFailures   int `json:"extract_failures"`
	PublishFailures   int `json:"publish_failures"`
	Batches           int `json:"batches"`
}

// FailedThread 失败的帖子
type FailedThread struct {
	ThreadID string `json:"thread_id"`
	URL      string `json:"url"`
	Stage    string `json:"stage"` // fetch, extract, publish
	Error    string `json:"error"`
}

// RunSummary 一次运行的汇总
type RunSummary struct {
	RunID      string         `json:"run_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Duration   float64        `json:"duration"` // 秒
	Limits     RunLimits      `json:"limits"`
	DryRun     bool           `json:"dry_run"`
	Stats      RunStats       `json:"stats"`
	Failed     []FailedThread `json:"failed_threads"`
	StopReason StopReason     `json:"stop_reason"`
	Error      string         `json:"error,omitempty"`
}

// NewRunSummary 创建汇总
func NewRunSummary(limits RunLimits, dryRun bool) *RunSummary {
	return &RunSummary{
		RunID:     generateID(),
		StartedAt: time.Now(),
		Limits:    limits,
		DryRun:    dryRun,
		Failed:    []FailedThread{},
	}
}

// AddFailure 记录失败的帖子
func (s *RunSummary) AddFailure(ref ThreadRef, stage string, err error) {
	s.Failed = append(s.Failed, FailedThread{
		ThreadID: ref.ID,
		URL:      ref.URL,
		Stage:    stage,
		Error:    err.Error(),
	})
}

// Finish 结束计时并记录结束原因
func (s *RunSummary) Finish(reason StopReason) {
	s.FinishedAt = time.Now()
	s.Duration = s.FinishedAt.Sub(s.StartedAt).Seconds()
	s.StopReason = reason
}

// ToJSON 序列化为JSON
func (s *RunSummary) ToJSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// FromJSON 从JSON反序列化
func (s *RunSummary) FromJSON(data []byte) error {
	return json.Unmarshal(data, s)
}
