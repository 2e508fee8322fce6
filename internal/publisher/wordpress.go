// Package publisher 将游戏记录发布到WordPress插件的REST接口
package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/RecoveryAshes/F95Crawler/internal/models"
	"github.com/RecoveryAshes/F95Crawler/internal/utils"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("github.com/RecoveryAshes/F95Crawler/internal/publisher")

// maxErrorBody 错误信息中保留的响应体长度
const maxErrorBody = 300

// Options WordPress客户端选项
type Options struct {
	Endpoint      string // create-post 接口
	BatchEndpoint string // create-batch 接口
	APIKey        string
	UseBatch      bool // 先尝试批量接口,失败后逐条发布
}

// NewHTTPClient 创建带otel追踪的HTTP客户端, 发布和远端同步共用
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// Client WordPress发布客户端
type Client struct {
	http     *http.Client
	opts     Options
	proxy    *ImageProxy
	notifier Notifier
}

// NewClient 创建发布客户端, proxy和notifier可以为nil
func NewClient(httpClient *http.Client, opts Options, proxy *ImageProxy, notifier Notifier) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient(30 * time.Second)
	}
	return &Client{http: httpClient, opts: opts, proxy: proxy, notifier: notifier}
}

type createPostResponse struct {
	Success *bool  `json:"success"`
	PostID  int64  `json:"post_id"`
	Message string `json:"message"`
}

type createBatchResponse struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

// Publish 发布一批记录
// 单条失败不影响其余记录, 结果顺序与批次一致
func (c *Client) Publish(ctx context.Context, batch *models.Batch) []models.PublishResult {
	ctx, span := tracer.Start(ctx, "publish")
	defer span.End()
	span.SetAttributes(attribute.Int("batch.index", batch.Index), attribute.Int("batch.size", batch.Len()))

	if c.opts.UseBatch && c.opts.BatchEndpoint != "" && batch.Len() > 1 {
		results, err := c.publishBatch(ctx, batch)
		if err == nil {
			return results
		}
		utils.Warnf("⚠️  批量发布失败, 改为逐条发布: %v", err)
	}

	results := make([]models.PublishResult, 0, batch.Len())
	for _, rec := range batch.Records {
		if err := ctx.Err(); err != nil {
			results = append(results, models.PublishResult{
				ThreadID: rec.ID,
				Title:    rec.Title,
				Error:    &models.PublishError{ThreadID: rec.ID, Cause: err},
			})
			continue
		}
		results = append(results, c.publishOne(ctx, rec))
	}
	return results
}

// MarksPublished 发布成功的记录需要写入已发布集合
func (c *Client) MarksPublished() bool {
	return true
}

func (c *Client) publishOne(ctx context.Context, rec *models.GameRecord) models.PublishResult {
	res := models.PublishResult{ThreadID: rec.ID, Title: rec.Title}

	status, body, err := c.post(ctx, c.opts.Endpoint, c.proxy.Apply(rec))
	if err != nil {
		res.Error = &models.PublishError{ThreadID: rec.ID, Cause: err}
		return res
	}
	if status < 200 || status >= 300 {
		res.Error = &models.PublishError{
			ThreadID:   rec.ID,
			StatusCode: status,
			Body:       utils.Truncate(string(body), maxErrorBody),
		}
		return res
	}

	var parsed createPostResponse
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &parsed); err != nil {
			utils.Debugf("发布响应不是JSON [thread %s]: %v", rec.ID, err)
		}
	}
	if parsed.Success != nil && !*parsed.Success {
		res.Error = &models.PublishError{
			ThreadID:   rec.ID,
			StatusCode: status,
			Body:       utils.Truncate(parsed.Message, maxErrorBody),
		}
		return res
	}

	res.Success = true
	res.PostID = parsed.PostID
	utils.Infof("📤 已发布: %s (post_id=%d)", utils.Truncate(rec.Title, 60), parsed.PostID)
	c.notify(ctx, rec, res)
	return res
}

func (c *Client) publishBatch(ctx context.Context, batch *models.Batch) ([]models.PublishResult, error) {
	posts := make([]*models.GameRecord, 0, batch.Len())
	for _, rec := range batch.Records {
		posts = append(posts, c.proxy.Apply(rec))
	}

	status, body, err := c.post(ctx, c.opts.BatchEndpoint, map[string]interface{}{"posts": posts})
	accepted := status >= 200 && status < 300
	if err != nil && !accepted {
		return nil, err
	}
	if !accepted {
		return nil, fmt.Errorf("HTTP %d: %s", status, utils.Truncate(string(body), maxErrorBody))
	}

	// 2xx 即视为服务端已接收, 响应异常时不能再逐条重发
	var parsed createBatchResponse
	if err != nil {
		utils.Warnf("⚠️  第%d批已被接收, 但读取响应失败: %v", batch.Index, err)
	} else if err := json.Unmarshal(body, &parsed); err != nil {
		utils.Warnf("⚠️  第%d批已被接收, 但响应不是JSON: %v", batch.Index, err)
	} else {
		utils.Infof("📤 第%d批已发布: 新建 %d, 跳过 %d", batch.Index, parsed.Created, parsed.Skipped)
	}

	results := make([]models.PublishResult, 0, batch.Len())
	for _, rec := range batch.Records {
		res := models.PublishResult{ThreadID: rec.ID, Title: rec.Title, Success: true}
		c.notify(ctx, rec, res)
		results = append(results, res)
	}
	return results, nil
}

// post 发送JSON请求, 返回状态码和响应体
func (c *Client) post(ctx context.Context, endpoint string, payload interface{}) (int, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.opts.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("读取响应失败: %w", err)
	}
	return resp.StatusCode, body, nil
}

func (c *Client) notify(ctx context.Context, rec *models.GameRecord, res models.PublishResult) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Notify(ctx, rec, res); err != nil {
		utils.Warnf("⚠️  发布通知失败 [thread %s]: %v", rec.ID, err)
	}
}
