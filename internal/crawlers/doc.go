// Package crawlers 抓取F95Zone论坛页面并解析为结构化数据
//
// # 核心组件
//
// ## Fetcher
//
// 基于Colly的同步抓取器,每次请求附带会话Cookie和配置的头部,
// 请求之间至少间隔 delay_between_requests。非2xx响应和网络错误返回 *models.FetchError,
// 不自动重试,重试由调用方决定。
//
//	f := NewFetcher(FetcherConfig{Delay: 2 * time.Second, Timeout: 30 * time.Second}, headerManager)
//	page, err := f.Fetch(ctx, "https://f95zone.to/forums/games.2/")
//
// ## ParseListing
//
// 解析分类列表页,按文档顺序返回 ThreadRef。缺少ID的条目丢弃,可选字段缺失时保持零值。
//
//	refs, err := ParseListing(html, PageURL(categoryURL, 2), ignore)
//
// ## Extract
//
// 把单个帖子页解析为 GameRecord。只有标题块或首帖正文缺失时返回 *models.ExtractionError,
// 其余字段缺失时留空。图片保留原始地址,代理改写由发布端完成。
//
//	rec, err := Extract(html, ref)
//
// # 并发
//
// Fetcher 只在单个执行流中使用; ParseListing 和 Extract 是纯函数。
package crawlers
