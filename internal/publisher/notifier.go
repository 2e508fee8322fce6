package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/RecoveryAshes/F95Crawler/internal/models"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
)

// Notifier 发布成功后的通知
type Notifier interface {
	Notify(ctx context.Context, rec *models.GameRecord, res models.PublishResult) error
	Close() error
}

// PublishedEvent 发布成功事件
type PublishedEvent struct {
	ThreadID    string    `json:"thread_id"`
	ThreadURL   string    `json:"thread_url"`
	Title       string    `json:"title"`
	Version     string    `json:"version,omitempty"`
	Developer   string    `json:"developer,omitempty"`
	PostID      int64     `json:"post_id,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// NATSNotifier 将发布事件写入NATS主题
type NATSNotifier struct {
	nc      *nats.Conn
	subject string
}

// NewNATSNotifier 连接NATS
func NewNATSNotifier(natsURL, subject string) (*NATSNotifier, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("f95crawler"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(3),
	)
	if err != nil {
		return nil, fmt.Errorf("连接NATS失败 [%s]: %w", natsURL, err)
	}
	return &NATSNotifier{nc: nc, subject: subject}, nil
}

// Notify 发布一条事件
func (n *NATSNotifier) Notify(ctx context.Context, rec *models.GameRecord, res models.PublishResult) error {
	data, err := json.Marshal(PublishedEvent{
		ThreadID:    rec.ID,
		ThreadURL:   rec.URL,
		Title:       rec.Title,
		Version:     rec.Version,
		Developer:   rec.Developer,
		PostID:      res.PostID,
		PublishedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	msg := &nats.Msg{Subject: n.subject, Data: data}
	otel.GetTextMapPropagator().Inject(ctx, (*headerCarrier)(msg))
	return n.nc.PublishMsg(msg)
}

// Close 刷新并关闭连接
func (n *NATSNotifier) Close() error {
	if n == nil || n.nc == nil {
		return nil
	}
	err := n.nc.FlushTimeout(2 * time.Second)
	n.nc.Close()
	return err
}

// headerCarrier 让otel把trace上下文写入NATS消息头
type headerCarrier nats.Msg

func (c *headerCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *headerCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}
