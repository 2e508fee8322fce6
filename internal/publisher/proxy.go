package publisher

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/F95Crawler/internal/models"
)

// ImageProxyPath WordPress插件的图片代理接口
const ImageProxyPath = "/wp-json/f95-crawler/v1/image-proxy"

// ImageProxy 将防盗链站点的图片地址改写为WordPress代理地址
type ImageProxy struct {
	root  string
	hosts map[string]bool
}

// NewImageProxy 创建图片代理改写器
// root 为WordPress站点根地址, hosts 为需要代理的图片域名
func NewImageProxy(root string, hosts []string) *ImageProxy {
	set := make(map[string]bool, len(hosts))
	for _, h := range hosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			set[h] = true
		}
	}
	return &ImageProxy{root: strings.TrimRight(root, "/"), hosts: set}
}

// Rewrite 改写单个图片地址,其他域名原样返回
func (p *ImageProxy) Rewrite(raw string) string {
	if p == nil || raw == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || !p.hosts[strings.ToLower(u.Hostname())] {
		return raw
	}
	full := strings.Replace(raw, "/thumb/", "/", 1)
	return p.root + ImageProxyPath + "?url=" + url.QueryEscape(full)
}

// RewriteContent 改写HTML中所有 <img src>
func (p *ImageProxy) RewriteContent(content string) string {
	if p == nil || content == "" {
		return content
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return content
	}

	changed := false
	doc.Find("img[src]").Each(func(_ int, img *goquery.Selection) {
		src, _ := img.Attr("src")
		if out := p.Rewrite(src); out != src {
			img.SetAttr("src", out)
			changed = true
		}
	})
	if !changed {
		return content
	}

	// 解析器会补全html/body, 只取回body内部
	out, err := doc.Find("body").Html()
	if err != nil {
		return content
	}
	return out
}

// Apply 返回改写后的副本, 原记录保持原始地址
func (p *ImageProxy) Apply(rec *models.GameRecord) *models.GameRecord {
	out := rec.Clone()
	if p == nil {
		return out
	}
	for i, img := range out.Images {
		out.Images[i] = p.Rewrite(img)
	}
	out.FeaturedImage = p.Rewrite(out.FeaturedImage)
	out.Content = p.RewriteContent(out.Content)
	return out
}
