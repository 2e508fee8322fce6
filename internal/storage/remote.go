package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/RecoveryAshes/F95Crawler/internal/utils"
)

// RemoteSource 分页读取WordPress插件的 existing-threads 接口
type RemoteSource struct {
	client   *http.Client
	endpoint string
	apiKey   string
	pageSize int
}

// NewRemoteSource 创建远端来源
func NewRemoteSource(client *http.Client, endpoint, apiKey string, pageSize int) *RemoteSource {
	if client == nil {
		client = http.DefaultClient
	}
	if pageSize < 1 {
		pageSize = 2000
	}
	return &RemoteSource{client: client, endpoint: endpoint, apiKey: apiKey, pageSize: pageSize}
}

type existingResponse struct {
	ThreadIDs []json.RawMessage `json:"thread_ids"`
}

// FetchExisting 读取全部已存在的帖子ID
// 出错时返回已读取的部分和错误
func (r *RemoteSource) FetchExisting(ctx context.Context) ([]string, error) {
	var all []string
	seen := make(map[string]bool)

	for offset := 0; ; offset += r.pageSize {
		page, err := r.fetchPage(ctx, offset)
		if err != nil {
			return all, err
		}

		added := 0
		for _, id := range page {
			if !seen[id] {
				seen[id] = true
				all = append(all, id)
				added++
			}
		}
		utils.Debugf("远端已存在帖子: offset=%d, 本页 %d 个", offset, len(page))

		// 服务端忽略offset时避免死循环
		if len(page) < r.pageSize || added == 0 {
			return all, nil
		}
	}
}

func (r *RemoteSource) fetchPage(ctx context.Context, offset int) ([]string, error) {
	u, err := url.Parse(r.endpoint)
	if err != nil {
		return nil, fmt.Errorf("existing-threads 地址无效: %w", err)
	}
	q := u.Query()
	q.Set("limit", strconv.Itoa(r.pageSize))
	q.Set("offset", strconv.Itoa(offset))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-Key", r.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求 existing-threads 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("existing-threads 返回 HTTP %d: %s", resp.StatusCode, utils.Truncate(string(body), 200))
	}

	var parsed existingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("解析 existing-threads 响应失败: %w", err)
	}

	ids := make([]string, 0, len(parsed.ThreadIDs))
	for _, raw := range parsed.ThreadIDs {
		if id := rawID(raw); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// rawID 帖子ID可能是数字也可能是字符串
func rawID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
