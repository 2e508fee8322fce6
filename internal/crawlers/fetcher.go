package crawlers

import (
	"bytes"
	"compress/flate"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/RecoveryAshes/F95Crawler/internal/models"
	"github.com/RecoveryAshes/F95Crawler/internal/utils"
	"github.com/andybalholm/brotli"
	"github.com/gocolly/colly/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

const ctxPageKey = "page"

var tracer = otel.Tracer("github.com/RecoveryAshes/F95Crawler/internal/crawlers")

// FetcherConfig 抓取器配置
type FetcherConfig struct {
	Delay            time.Duration // 两次请求之间的最小间隔
	Timeout          time.Duration // 单次请求超时
	RespectRobotsTxt bool
}

// Fetcher 带会话cookie的顺序抓取器(使用Colly)
// 不做重试,重试策略由调用方决定
type Fetcher struct {
	collector *colly.Collector
	headers   models.HeaderProvider
	limiter   *rate.Limiter
	requests  int
}

// NewFetcher 创建抓取器
func NewFetcher(cfg FetcherConfig, headers models.HeaderProvider) *Fetcher {
	c := colly.NewCollector(
		colly.AllowURLRevisit(),
	)
	c.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	// 非2xx响应也走OnResponse,由Fetch统一转换为FetchError
	c.ParseHTTPErrorResponse = true

	if cfg.Timeout > 0 {
		c.SetRequestTimeout(cfg.Timeout)
	}

	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
	}); err != nil {
		utils.Warnf("设置并发限制失败: %v", err)
	}

	limit := rate.Inf
	if cfg.Delay > 0 {
		limit = rate.Every(cfg.Delay)
	}

	f := &Fetcher{
		collector: c,
		headers:   headers,
		limiter:   rate.NewLimiter(limit, 1),
	}
	f.setupCallbacks()

	utils.Debugf("抓取器: 请求间隔=%v, 超时=%v, robots.txt=%v", cfg.Delay, cfg.Timeout, cfg.RespectRobotsTxt)
	return f
}

// setupCallbacks 设置Colly回调
func (f *Fetcher) setupCallbacks() {
	f.collector.OnRequest(func(r *colly.Request) {
		utils.Debugf("访问: %s", r.URL.String())
	})

	f.collector.OnResponse(func(r *colly.Response) {
		body := r.Body
		if enc := r.Headers.Get("Content-Encoding"); enc != "" {
			decompressed, err := decompressResponse(enc, r.Body)
			if err != nil {
				utils.Warnf("解压响应失败 [%s] (编码=%s): %v", r.Request.URL, enc, err)
			} else {
				body = decompressed
			}
		}

		r.Ctx.Put(ctxPageKey, &models.Page{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       body,
			FetchedAt:  time.Now(),
		})
	})

	f.collector.OnError(func(r *colly.Response, err error) {
		utils.Debugf("请求失败 [%s]: %v", r.Request.URL, err)
	})
}

// Fetch 抓取一个页面
// 等待请求间隔后发出GET请求, 网络错误或非2xx响应返回 *models.FetchError
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*models.Page, error) {
	ctx, span := tracer.Start(ctx, "fetch")
	defer span.End()
	span.SetAttributes(attribute.String("url", rawURL))

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, &models.FetchError{URL: rawURL, Cause: err}
	}

	var hdr http.Header
	if f.headers != nil {
		h, err := f.headers.GetHeaders()
		if err != nil {
			return nil, fmt.Errorf("获取HTTP头部失败: %w", err)
		}
		hdr = h.Clone()
	}

	cctx := colly.NewContext()
	f.requests++
	err := f.collector.Request(http.MethodGet, rawURL, nil, cctx, hdr)
	page, _ := cctx.GetAny(ctxPageKey).(*models.Page)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, &models.FetchError{URL: rawURL, Cause: ctxErr}
	}

	if err != nil {
		fe := &models.FetchError{URL: rawURL, Cause: err}
		if page != nil {
			fe.StatusCode = page.StatusCode
		}
		span.RecordError(fe)
		span.SetStatus(codes.Error, fe.Error())
		return nil, fe
	}
	if page == nil {
		return nil, &models.FetchError{URL: rawURL, Cause: errors.New("没有收到响应")}
	}

	span.SetAttributes(attribute.Int("http.status_code", page.StatusCode))
	if page.StatusCode < 200 || page.StatusCode > 299 {
		fe := &models.FetchError{
			URL:        rawURL,
			StatusCode: page.StatusCode,
			Cause:      errors.New(http.StatusText(page.StatusCode)),
		}
		span.SetStatus(codes.Error, fe.Error())
		return page, fe
	}

	return page, nil
}

// Requests 已发出的请求数
func (f *Fetcher) Requests() int {
	return f.requests
}

// decompressResponse 解压响应体
// gzip由Colly自行处理,这里只处理br和deflate
func decompressResponse(contentEncoding string, body []byte) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "br":
		decompressed, err := io.ReadAll(brotli.NewReader(bytes.NewReader(body)))
		if err != nil {
			return nil, fmt.Errorf("brotli读取失败: %w", err)
		}
		return decompressed, nil

	case "deflate":
		reader := flate.NewReader(bytes.NewReader(body))
		defer reader.Close()
		decompressed, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("deflate读取失败: %w", err)
		}
		return decompressed, nil

	default:
		return body, nil
	}
}
