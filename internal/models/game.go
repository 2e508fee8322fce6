package models

import (
	"encoding/json"
	"time"
)

// ThreadRef 列表页中的一个帖子条目
// ID和URL为必需字段,其余字段缺失时保持零值
type ThreadRef struct {
	ID          string   `json:"thread_id"`    // 帖子ID (URL中 threads/<slug>.<id>)
	URL         string   `json:"thread_url"`   // 帖子绝对URL
	Title       string   `json:"title"`        // 列表页显示的标题
	Author      string   `json:"author"`       // 发帖人
	AuthorURL   string   `json:"author_url"`   // 发帖人主页
	Replies     int      `json:"replies"`      // 回复数
	Views       int      `json:"views"`        // 浏览数
	Rating      float64  `json:"rating"`       // 评分(星级)
	RatingCount int      `json:"rating_count"` // 评分人数
	Prefixes    []string `json:"prefixes"`     // 标题前缀标签
}

// DownloadLink 下载链接 (平台 -> URL)
type DownloadLink struct {
	Platform string `json:"platform"` // 平台描述 (如 "Win/Linux")
	Host     string `json:"host"`     // 网盘名称 (大写)
	URL      string `json:"url"`      // 下载地址
}

// GameRecord 从帖子页提取的游戏记录
// 同一个ID最多对应一篇已发布的文章
type GameRecord struct {
	ThreadRef

	// 标题解析结果
	Version    string   `json:"version"`
	Developer  string   `json:"developer"`
	Categories []string `json:"categories"`
	Tags       []string `json:"tags"`

	// 正文
	Content       string         `json:"content"` // 首帖bbWrapper的HTML
	Images        []string       `json:"images"`  // 截图原始URL(已去除/thumb/)
	FeaturedImage string         `json:"featured_image,omitempty"`
	UseExternal   bool           `json:"use_external_images,omitempty"`
	DownloadLinks []DownloadLink `json:"download_links"`

	// 正文中的结构化字段
	Overview      string `json:"overview,omitempty"`
	ThreadUpdated string `json:"thread_updated,omitempty"`
	ReleaseDate   string `json:"release_date,omitempty"`
	Censored      string `json:"censored,omitempty"`
	OSPlatforms   string `json:"os_platforms,omitempty"`
	Language      string `json:"language,omitempty"`
	Genre         string `json:"genre,omitempty"`
	DeveloperURL  string `json:"developer_url,omitempty"`
	Changelog     string `json:"changelog,omitempty"`
	Installation  string `json:"installation,omitempty"`
}

// ToJSON 序列化为JSON
func (g *GameRecord) ToJSON() ([]byte, error) {
	return json.Marshal(g)
}

// Clone 深拷贝记录,用于在发送前改写图片地址而不影响原记录
func (g *GameRecord) Clone() *GameRecord {
	c := *g
	c.Prefixes = append([]string(nil), g.Prefixes...)
	c.Categories = append([]string(nil), g.Categories...)
	c.Tags = append([]string(nil), g.Tags...)
	c.Images = append([]string(nil), g.Images...)
	c.DownloadLinks = append([]DownloadLink(nil), g.DownloadLinks...)
	return &c
}

// Page 一次抓取的结果
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
	FetchedAt  time.Time
}

// Batch 一批待发布的记录,大小不超过batch size
type Batch struct {
	Index   int           // 批次序号(从1开始)
	Records []*GameRecord // 按提取顺序
}

// Len 批次中的记录数
func (b *Batch) Len() int {
	return len(b.Records)
}

// PublishResult 单条记录的发布结果
type PublishResult struct {
	ThreadID string `json:"thread_id"`
	Title    string `json:"title"`
	Success  bool   `json:"success"`
	PostID   int64  `json:"post_id,omitempty"`
	Error    error  `json:"-"`
}
