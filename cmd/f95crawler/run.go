package main

import (
	"context"
	"fmt"
	"os"

	"github.com/RecoveryAshes/F95Crawler/internal/core"
	"github.com/RecoveryAshes/F95Crawler/internal/crawlers"
	"github.com/RecoveryAshes/F95Crawler/internal/models"
	"github.com/RecoveryAshes/F95Crawler/internal/publisher"
	"github.com/RecoveryAshes/F95Crawler/internal/storage"
	"github.com/RecoveryAshes/F95Crawler/internal/utils"
)

// runValidate 验证配置并显示合并后的头部(脱敏)
func runValidate(cfg *core.Config) error {
	utils.Info("🔍 验证配置...")

	hm, err := core.NewHeaderManager(cfg, headers)
	if err != nil {
		return fmt.Errorf("创建HTTP头部管理器失败: %w", err)
	}
	if err := hm.Validate(); err != nil {
		return fmt.Errorf("配置验证失败: %w", err)
	}

	safeHeaders := hm.GetSafeHeaders()
	utils.Info("✅ 配置验证通过!")
	utils.Infof("发布接口: %s", cfg.WordPressAPIURL)
	utils.Infof("API密钥: %s", utils.RedactSecret(cfg.WordPressAPIKey))
	utils.Infof("分类地址: %s", cfg.CategoryURL)
	utils.Infof("状态存储: %s", cfg.State.Driver)
	utils.Infof("当前有效的HTTP头部 (%d个):", len(safeHeaders))
	for name, value := range safeHeaders {
		utils.Infof("  %s: %s", name, value)
	}
	return nil
}

// runCrawl 组装各组件并执行一次运行
func runCrawl(ctx context.Context, cfg *core.Config) error {
	hm, err := core.NewHeaderManager(cfg, headers)
	if err != nil {
		return fmt.Errorf("创建HTTP头部管理器失败: %w", err)
	}
	if err := hm.Validate(); err != nil {
		return fmt.Errorf("HTTP头部验证失败: %w", err)
	}
	utils.Debugf("请求头部: %s", utils.NewHeaderRedactor().RedactToString(hm.GetMergedHeaders()))

	fetcher := crawlers.NewFetcher(crawlers.FetcherConfig{
		Delay:            cfg.Delay(),
		Timeout:          cfg.Timeout(),
		RespectRobotsTxt: cfg.RespectRobotsTxt,
	}, hm)

	store, err := storage.Open(ctx, storage.Options{
		Driver: cfg.State.Driver,
		Path:   cfg.State.Path,
		DSN:    cfg.State.DSN,
	})
	if err != nil {
		return fmt.Errorf("打开状态存储失败: %w", err)
	}

	httpClient := publisher.NewHTTPClient(cfg.Timeout())

	var remote storage.ExistingSource
	if cfg.SyncExisting {
		remote = storage.NewRemoteSource(httpClient, cfg.ExistingThreadsURL(), cfg.WordPressAPIKey, cfg.ExistingPageSize)
	}

	tracker := storage.NewTracker(store, remote)
	defer tracker.Close()
	if err := tracker.Load(ctx); err != nil {
		return err
	}
	utils.Infof("已发布帖子: %d 个", tracker.Len())

	var proxy *publisher.ImageProxy
	if cfg.ImageProxy.Enabled {
		proxy = publisher.NewImageProxy(cfg.WordPressRoot(), cfg.ImageProxy.Hosts)
	}

	var pub core.Publisher
	if dryRun {
		pub = publisher.NewDryRun(os.Stdout, proxy)
	} else {
		var notifier publisher.Notifier
		if cfg.NATS.URL != "" {
			n, err := publisher.NewNATSNotifier(cfg.NATS.URL, cfg.NATS.Subject)
			if err != nil {
				utils.Warnf("⚠️  %v, 不发送发布通知", err)
			} else {
				defer n.Close()
				notifier = n
			}
		}
		pub = publisher.NewClient(httpClient, publisher.Options{
			Endpoint:      cfg.WordPressAPIURL,
			BatchEndpoint: cfg.BatchURL(),
			APIKey:        cfg.WordPressAPIKey,
			UseBatch:      cfg.UseBatchEndpoint,
		}, proxy, notifier)
	}

	crawler := core.NewCrawler(core.CrawlOptions{
		CategoryURL:      cfg.CategoryURL,
		Limits:           cfg.Limits(infinite),
		Ignore:           cfg.IgnoreSet(),
		Retries:          cfg.FetchRetries,
		Backoff:          cfg.Backoff(),
		StopWhenCaughtUp: cfg.StopWhenCaughtUp,
		DryRun:           dryRun,
		ShowProgress:     !verbose,
	}, fetcher, pub, tracker)

	summary, runErr := crawler.Crawl(ctx)
	utils.Infof("HTTP请求数: %d", fetcher.Requests())

	utils.PrintSummary(os.Stderr, summary)

	report := &models.RunReport{
		Summary:      summary,
		CategoryURL:  cfg.CategoryURL,
		PublishURL:   cfg.WordPressAPIURL,
		StateDriver:  cfg.State.Driver,
		Headers:      hm.GetSafeHeaders(),
		Results:      crawler.Results(),
		PublishedIDs: publishedIDs(crawler.Results()),
	}
	if _, err := utils.NewReporter(cfg.ReportDir).WriteRunReport(report); err != nil {
		utils.Warnf("生成报告失败: %v", err)
	}

	if runErr != nil {
		return runErr
	}
	utils.Info("✨ 运行完成!")
	return nil
}

func publishedIDs(results []models.PublishResult) []string {
	ids := make([]string, 0, len(results))
	for _, r := range results {
		if r.Success {
			ids = append(ids, r.ThreadID)
		}
	}
	return ids
}
