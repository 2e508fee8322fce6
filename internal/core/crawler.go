package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RecoveryAshes/F95Crawler/internal/crawlers"
	"github.com/RecoveryAshes/F95Crawler/internal/models"
	"github.com/RecoveryAshes/F95Crawler/internal/utils"
	"github.com/schollz/progressbar/v3"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("github.com/RecoveryAshes/F95Crawler/internal/core")

// Fetcher 抓取页面
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*models.Page, error)
}

// CrawlOptions 一次运行的参数
type CrawlOptions struct {
	CategoryURL      string
	Limits           models.RunLimits
	Ignore           map[string]bool
	Retries          int           // 单个页面的重试次数
	Backoff          time.Duration // 重试初始退避
	StopWhenCaughtUp bool
	DryRun           bool
	ShowProgress     bool
}

// Crawler 主流程: 翻页 -> 过滤 -> 抓取帖子 -> 提取 -> 批量发布
// 单线程顺序执行, 已发布集合只在这里修改
type Crawler struct {
	opts    CrawlOptions
	fetcher Fetcher
	tracker DuplicateTracker
	batcher *Batcher
	summary *models.RunSummary

	// 本次运行已见过的帖子
	seen map[string]bool
	bar  *progressbar.ProgressBar
}

// NewCrawler 创建主流程
func NewCrawler(opts CrawlOptions, fetcher Fetcher, publisher Publisher, tracker DuplicateTracker) *Crawler {
	if opts.Limits.BatchSize < 1 {
		opts.Limits.BatchSize = models.DefaultBatchSize
	}
	if opts.Backoff <= 0 {
		opts.Backoff = time.Second
	}

	summary := models.NewRunSummary(opts.Limits, opts.DryRun)
	return &Crawler{
		opts:    opts,
		fetcher: fetcher,
		tracker: tracker,
		batcher: NewBatcher(publisher, tracker, summary, opts.Limits.BatchSize),
		summary: summary,
		seen:    make(map[string]bool),
	}
}

// Crawl 执行一次运行
// 执行流程:
//  1. 逐页抓取分类列表, 直到达到上限或没有新帖子
//  2. 跳过已发布的帖子, 抓取并提取其余帖子
//  3. 每满一批发布一次, 并增量保存已发布集合
//  4. 发布剩余记录, 保存状态, 返回汇总
//
// 只有第一页列表抓取失败时返回错误
func (c *Crawler) Crawl(ctx context.Context) (*models.RunSummary, error) {
	ctx, span := tracer.Start(ctx, "crawl")
	defer span.End()

	utils.Infof("🚀 开始运行 %s", c.summary.RunID)
	utils.Infof("分类地址: %s", c.opts.CategoryURL)
	utils.Infof("上限: 页数=%s, 帖子数=%s, 批大小=%d",
		limitText(c.opts.Limits.Pages, c.opts.Limits.Infinite), limitText(c.opts.Limits.MaxThreads, false), c.opts.Limits.BatchSize)
	if c.opts.DryRun {
		utils.Info("🧪 试运行模式: 不会调用WordPress, 也不会记录已发布")
	}

	if c.opts.ShowProgress {
		max := -1
		if c.opts.Limits.MaxThreads > 0 {
			max = c.opts.Limits.MaxThreads
		}
		c.bar = utils.NewProgressBar(max, "抓取帖子")
	}

	reason, err := c.run(ctx)

	if ctx.Err() == nil {
		c.batcher.Flush(ctx)
	} else if n := c.batcher.Pending(); n > 0 {
		utils.Warnf("⚠️  运行被中断, %d 条已提取的记录未发布", n)
	}

	if c.bar != nil {
		_ = c.bar.Finish()
	}

	if saveErr := c.tracker.Save(context.WithoutCancel(ctx)); saveErr != nil {
		utils.Errorf("❌ %v", saveErr)
	}

	c.summary.Finish(reason)
	if err != nil {
		c.summary.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(
		attribute.String("stop_reason", string(reason)),
		attribute.Int("published", c.summary.Stats.Published),
	)

	utils.Infof("🏁 运行结束: %s", reason)
	return c.summary, err
}

// Summary 当前汇总
func (c *Crawler) Summary() *models.RunSummary {
	return c.summary
}

// Results 全部发布结果
func (c *Crawler) Results() []models.PublishResult {
	return c.batcher.Results()
}

// run 翻页主循环, 返回结束原因
func (c *Crawler) run(ctx context.Context) (models.StopReason, error) {
	limits := c.opts.Limits
	stats := &c.summary.Stats

	for page := 1; ; page++ {
		if !limits.PageAllowed(page) {
			return models.StopPageLimit, nil
		}
		if !limits.ThreadAllowed(stats.ThreadsFetched) {
			return models.StopThreadLimit, nil
		}
		if ctx.Err() != nil {
			return models.StopCancelled, nil
		}

		refs, err := c.fetchListing(ctx, page)
		if err != nil {
			if ctx.Err() != nil {
				return models.StopCancelled, nil
			}
			if page == 1 {
				return models.StopFatal, fmt.Errorf("抓取第一页列表失败: %w", err)
			}
			utils.Warnf("⚠️  抓取第%d页列表失败, 停止翻页: %v", page, err)
			return models.StopListingError, nil
		}

		stats.PagesFetched++
		stats.ThreadsFound += len(refs)
		if len(refs) == 0 {
			utils.Infof("第%d页没有帖子, 已到达末尾", page)
			return models.StopNoMorePages, nil
		}

		fresh, unpublished := 0, 0
		for _, ref := range refs {
			if c.seen[ref.ID] {
				stats.DuplicatesSkipped++
				continue
			}
			c.seen[ref.ID] = true
			fresh++

			if c.tracker.IsDuplicate(ref.ID) {
				stats.DuplicatesSkipped++
				utils.Debugf("跳过已发布的帖子: %s (ID: %s)", ref.Title, ref.ID)
				continue
			}
			unpublished++

			if !limits.ThreadAllowed(stats.ThreadsFetched) {
				return models.StopThreadLimit, nil
			}
			if ctx.Err() != nil {
				return models.StopCancelled, nil
			}
			c.processThread(ctx, ref)
		}

		utils.Infof("第%d页: %d 个帖子, 新帖子 %d 个", page, len(refs), unpublished)

		// 超出范围的页码会重复显示最后一页
		if fresh == 0 {
			utils.Infof("第%d页的帖子本次都已处理过, 已到达末尾", page)
			return models.StopNoMorePages, nil
		}
		if c.opts.StopWhenCaughtUp && unpublished == 0 {
			utils.Infof("第%d页的帖子都已发布, 停止翻页", page)
			return models.StopCaughtUp, nil
		}
	}
}

// fetchListing 抓取并解析一页列表
func (c *Crawler) fetchListing(ctx context.Context, page int) ([]models.ThreadRef, error) {
	pageURL := crawlers.PageURL(c.opts.CategoryURL, page)
	utils.Infof("📄 抓取第%d页列表: %s", page, pageURL)

	p, err := c.fetchWithRetry(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	return crawlers.ParseListing(string(p.Body), pageURL, c.opts.Ignore)
}

// processThread 抓取并提取单个帖子, 失败只记录不中断
func (c *Crawler) processThread(ctx context.Context, ref models.ThreadRef) {
	ctx, span := tracer.Start(ctx, "thread")
	defer span.End()
	span.SetAttributes(attribute.String("thread.id", ref.ID))

	stats := &c.summary.Stats
	stats.ThreadsFetched++
	if c.bar != nil {
		defer c.bar.Add(1)
	}

	utils.Infof("🔍 [%d] %s", stats.ThreadsFetched, utils.Truncate(ref.Title, 80))

	page, err := c.fetchWithRetry(ctx, ref.URL)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		stats.FetchFailures++
		c.summary.AddFailure(ref, "fetch", err)
		span.RecordError(err)
		utils.Warnf("❌ 抓取帖子失败 [%s]: %v", ref.ID, err)
		return
	}

	rec, err := crawlers.Extract(string(page.Body), ref)
	if err != nil {
		stats.ExtractFailures++
		c.summary.AddFailure(ref, "extract", err)
		span.RecordError(err)
		utils.Warnf("❌ %v", err)
		return
	}

	stats.Extracted++
	c.batcher.Add(ctx, rec)
}

// fetchWithRetry 抓取页面, 可重试的错误按指数退避重试
func (c *Crawler) fetchWithRetry(ctx context.Context, url string) (*models.Page, error) {
	backoff := retry.WithMaxRetries(uint64(c.opts.Retries), retry.NewExponential(c.opts.Backoff))

	var page *models.Page
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		p, err := c.fetcher.Fetch(ctx, url)
		if err == nil {
			page = p
			return nil
		}

		var fe *models.FetchError
		if errors.As(err, &fe) && fe.Retryable() && ctx.Err() == nil {
			utils.Debugf("第%d次抓取失败, 稍后重试: %v", attempt, err)
			return retry.RetryableError(err)
		}
		return err
	})
	return page, err
}

func limitText(n int, infinite bool) string {
	if infinite || n == 0 {
		return "不限"
	}
	return fmt.Sprintf("%d", n)
}
