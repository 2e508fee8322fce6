package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/RecoveryAshes/F95Crawler/internal/models"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

const testKey = "test-api-key"

func newRecord(id, title string) *models.GameRecord {
	return &models.GameRecord{
		ThreadRef: models.ThreadRef{
			ID:    id,
			URL:   "https://f95zone.to/threads/game." + id + "/",
			Title: title,
		},
		Version:       "1.0",
		Images:        []string{"https://attachments.f95zone.to/2024/01/thumb/1_a.png"},
		FeaturedImage: "https://attachments.f95zone.to/2024/01/thumb/1_a.png",
		Content:       `<div class="bbWrapper"><img src="https://attachments.f95zone.to/2024/01/1_a.png"> text</div>`,
	}
}

func TestImageProxy_Rewrite(t *testing.T) {
	p := NewImageProxy("https://wp.example.com/", []string{"attachments.f95zone.to"})

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"代理域名去除thumb",
			"https://attachments.f95zone.to/2024/01/thumb/1_a.png",
			"https://wp.example.com" + ImageProxyPath + "?url=" + url.QueryEscape("https://attachments.f95zone.to/2024/01/1_a.png"),
		},
		{
			"大写域名",
			"https://ATTACHMENTS.f95zone.to/x.png",
			"https://wp.example.com" + ImageProxyPath + "?url=" + url.QueryEscape("https://ATTACHMENTS.f95zone.to/x.png"),
		},
		{"其他域名不变", "https://i.imgur.com/abc.png", "https://i.imgur.com/abc.png"},
		{"空地址", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Rewrite(tt.in); got != tt.want {
				t.Errorf("Rewrite() = %q, want %q", got, tt.want)
			}
		})
	}

	var nilProxy *ImageProxy
	if got := nilProxy.Rewrite("https://attachments.f95zone.to/x.png"); got != "https://attachments.f95zone.to/x.png" {
		t.Errorf("nil代理不应改写: %q", got)
	}
}

func TestImageProxy_Apply(t *testing.T) {
	p := NewImageProxy("https://wp.example.com", []string{"attachments.f95zone.to"})
	rec := newRecord("100", "Game")

	out := p.Apply(rec)
	if !strings.HasPrefix(out.Images[0], "https://wp.example.com"+ImageProxyPath) {
		t.Errorf("Images 未改写: %s", out.Images[0])
	}
	if !strings.HasPrefix(out.FeaturedImage, "https://wp.example.com"+ImageProxyPath) {
		t.Errorf("FeaturedImage 未改写: %s", out.FeaturedImage)
	}
	if !strings.Contains(out.Content, "wp.example.com") || strings.Contains(out.Content, `src="https://attachments`) {
		t.Errorf("Content 未改写: %s", out.Content)
	}
	if !strings.Contains(out.Content, "bbWrapper") {
		t.Errorf("Content 丢失外层div: %s", out.Content)
	}

	// 原记录保持原始地址
	if rec.Images[0] != "https://attachments.f95zone.to/2024/01/thumb/1_a.png" {
		t.Errorf("原记录被修改: %s", rec.Images[0])
	}
	if strings.Contains(rec.Content, "wp.example.com") {
		t.Error("原记录Content被修改")
	}
}

// wpServer 模拟 create-post 接口, rejectID 对应的记录返回500
type wpServer struct {
	mu       sync.Mutex
	received []models.GameRecord
	keys     []string
	rejectID string
	batchErr bool
	// batchHTML 批量接口接收记录后返回非JSON响应
	batchHTML bool
	batches   int
}

func (s *wpServer) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/wp-json/f95-crawler/v1/create-post", func(w http.ResponseWriter, r *http.Request) {
		var rec models.GameRecord
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			t.Errorf("解析请求失败: %v", err)
		}
		s.mu.Lock()
		s.received = append(s.received, rec)
		s.keys = append(s.keys, r.Header.Get("X-API-Key"))
		n := len(s.received)
		s.mu.Unlock()

		if rec.ID == s.rejectID {
			w.WriteHeader(http.StatusInternalServerError)
			io.WriteString(w, `{"code":"db_error"}`)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "post_id": 500 + n})
	})
	mux.HandleFunc("/wp-json/f95-crawler/v1/create-batch", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.batches++
		s.mu.Unlock()
		if s.batchErr {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var body struct {
			Posts []models.GameRecord `json:"posts"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		s.mu.Lock()
		s.received = append(s.received, body.Posts...)
		s.mu.Unlock()
		if s.batchHTML {
			io.WriteString(w, "<html><body>ok</body></html>")
			return
		}
		json.NewEncoder(w).Encode(map[string]int{"created": len(body.Posts), "skipped": 0})
	})
	return mux
}

func newTestClient(srv *httptest.Server, useBatch bool, notifier Notifier) *Client {
	return NewClient(srv.Client(), Options{
		Endpoint:      srv.URL + "/wp-json/f95-crawler/v1/create-post",
		BatchEndpoint: srv.URL + "/wp-json/f95-crawler/v1/create-batch",
		APIKey:        testKey,
		UseBatch:      useBatch,
	}, NewImageProxy(srv.URL, []string{"attachments.f95zone.to"}), notifier)
}

func TestClient_PublishPartialFailure(t *testing.T) {
	wp := &wpServer{rejectID: "2"}
	srv := httptest.NewServer(wp.handler(t))
	defer srv.Close()

	c := newTestClient(srv, false, nil)
	batch := &models.Batch{Index: 1, Records: []*models.GameRecord{
		newRecord("1", "A"), newRecord("2", "B"), newRecord("3", "C"),
	}}

	results := c.Publish(context.Background(), batch)
	if len(results) != 3 {
		t.Fatalf("结果数 = %d, want 3", len(results))
	}

	wantSuccess := []bool{true, false, true}
	for i, res := range results {
		if res.ThreadID != batch.Records[i].ID {
			t.Errorf("结果[%d] 顺序错误: %s", i, res.ThreadID)
		}
		if res.Success != wantSuccess[i] {
			t.Errorf("结果[%d].Success = %v, want %v (err=%v)", i, res.Success, wantSuccess[i], res.Error)
		}
	}

	var pe *models.PublishError
	if !errors.As(results[1].Error, &pe) {
		t.Fatalf("失败结果应为 PublishError, got %T", results[1].Error)
	}
	if pe.StatusCode != http.StatusInternalServerError || !strings.Contains(pe.Body, "db_error") {
		t.Errorf("PublishError = %+v", pe)
	}
	if results[0].PostID == 0 {
		t.Error("成功结果应带 post_id")
	}

	for i, k := range wp.keys {
		if k != testKey {
			t.Errorf("请求[%d] X-API-Key = %q", i, k)
		}
	}
	// 发送的图片地址已改写为代理地址
	if !strings.HasPrefix(wp.received[0].Images[0], srv.URL+ImageProxyPath) {
		t.Errorf("发送的图片地址未改写: %s", wp.received[0].Images[0])
	}
}

func TestClient_SuccessFalse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"success":false,"message":"duplicate thread"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), Options{Endpoint: srv.URL, APIKey: testKey}, nil, nil)
	results := c.Publish(context.Background(), &models.Batch{Index: 1, Records: []*models.GameRecord{newRecord("1", "A")}})
	if results[0].Success {
		t.Fatal("success=false 应视为失败")
	}
	if !strings.Contains(results[0].Error.Error(), "duplicate thread") {
		t.Errorf("错误信息应包含响应消息: %v", results[0].Error)
	}
}

func TestClient_BatchEndpoint(t *testing.T) {
	wp := &wpServer{}
	srv := httptest.NewServer(wp.handler(t))
	defer srv.Close()

	c := newTestClient(srv, true, nil)
	results := c.Publish(context.Background(), &models.Batch{Index: 1, Records: []*models.GameRecord{
		newRecord("1", "A"), newRecord("2", "B"),
	}})

	if wp.batches != 1 {
		t.Errorf("批量接口调用 %d 次, want 1", wp.batches)
	}
	if len(wp.received) != 2 {
		t.Errorf("收到 %d 条记录, want 2", len(wp.received))
	}
	for _, res := range results {
		if !res.Success {
			t.Errorf("批量发布结果失败: %+v", res)
		}
	}
}

func TestClient_BatchFallback(t *testing.T) {
	wp := &wpServer{batchErr: true}
	srv := httptest.NewServer(wp.handler(t))
	defer srv.Close()

	c := newTestClient(srv, true, nil)
	results := c.Publish(context.Background(), &models.Batch{Index: 1, Records: []*models.GameRecord{
		newRecord("1", "A"), newRecord("2", "B"),
	}})

	if wp.batches != 1 {
		t.Errorf("批量接口调用 %d 次, want 1", wp.batches)
	}
	if len(wp.keys) != 2 {
		t.Errorf("回退后逐条发布 %d 次, want 2", len(wp.keys))
	}
	for _, res := range results {
		if !res.Success {
			t.Errorf("回退发布失败: %+v", res)
		}
	}
}

func TestClient_BatchAcceptedWithoutJSON(t *testing.T) {
	wp := &wpServer{batchHTML: true}
	srv := httptest.NewServer(wp.handler(t))
	defer srv.Close()

	c := newTestClient(srv, true, nil)
	results := c.Publish(context.Background(), &models.Batch{Index: 1, Records: []*models.GameRecord{
		newRecord("1", "A"), newRecord("2", "B"),
	}})

	if wp.batches != 1 {
		t.Errorf("批量接口调用 %d 次, want 1", wp.batches)
	}
	// 2xx 后不能再逐条发布, 否则同一帖子会出现两篇文章
	if len(wp.keys) != 0 {
		t.Errorf("批量已被接收后又逐条发布 %d 次", len(wp.keys))
	}
	if len(wp.received) != 2 {
		t.Errorf("收到 %d 条记录, want 2", len(wp.received))
	}
	for _, res := range results {
		if !res.Success {
			t.Errorf("已接收的批次应视为成功: %+v", res)
		}
	}
}

func TestClient_CancelledContext(t *testing.T) {
	wp := &wpServer{}
	srv := httptest.NewServer(wp.handler(t))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newTestClient(srv, false, nil)
	results := c.Publish(ctx, &models.Batch{Index: 1, Records: []*models.GameRecord{newRecord("1", "A")}})
	if results[0].Success {
		t.Error("已取消的上下文不应发布成功")
	}
	if len(wp.received) != 0 {
		t.Error("已取消的上下文不应发送请求")
	}
}

func TestDryRun(t *testing.T) {
	var buf bytes.Buffer
	d := NewDryRun(&buf, NewImageProxy("https://wp.example.com", []string{"attachments.f95zone.to"}))

	results := d.Publish(context.Background(), &models.Batch{Index: 1, Records: []*models.GameRecord{
		newRecord("1", "A & B"), newRecord("2", "C"),
	}})
	for _, res := range results {
		if !res.Success {
			t.Errorf("试运行结果失败: %+v", res)
		}
	}
	if d.MarksPublished() {
		t.Error("试运行不应标记已发布")
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("输出 %d 行, want 2", len(lines))
	}
	var rec models.GameRecord
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("输出不是JSON: %v", err)
	}
	if rec.ID != "1" || rec.Title != "A & B" {
		t.Errorf("输出记录 = %+v", rec.ThreadRef)
	}
	if !strings.Contains(lines[0], "A & B") {
		t.Error("试运行输出不应转义HTML字符")
	}
}

func startTestNATS(t *testing.T) *natsserver.Server {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Port: -1})
	if err != nil {
		t.Fatal(err)
	}
	srv.Start()
	if !srv.ReadyForConnections(3 * time.Second) {
		t.Fatal("nats 未就绪")
	}
	t.Cleanup(srv.Shutdown)
	return srv
}

func TestNATSNotifier(t *testing.T) {
	srv := startTestNATS(t)

	sub, err := nats.Connect(srv.ClientURL())
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	ch := make(chan *nats.Msg, 4)
	s, err := sub.ChanSubscribe("f95crawler.published", ch)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Unsubscribe()
	sub.Flush()

	notifier, err := NewNATSNotifier(srv.ClientURL(), "f95crawler.published")
	if err != nil {
		t.Fatalf("NewNATSNotifier() error = %v", err)
	}
	defer notifier.Close()

	wp := &wpServer{}
	web := httptest.NewServer(wp.handler(t))
	defer web.Close()

	c := newTestClient(web, false, notifier)
	c.Publish(context.Background(), &models.Batch{Index: 1, Records: []*models.GameRecord{newRecord("42", "Notify Me")}})

	select {
	case msg := <-ch:
		var ev PublishedEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			t.Fatalf("解析事件失败: %v", err)
		}
		if ev.ThreadID != "42" || ev.Title != "Notify Me" || ev.PostID == 0 {
			t.Errorf("事件内容 = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("等待通知超时")
	}
}

func TestNewNATSNotifier_Unreachable(t *testing.T) {
	if _, err := NewNATSNotifier("nats://127.0.0.1:1", "x"); err == nil {
		t.Error("连接不可达的NATS应返回错误")
	}
}
