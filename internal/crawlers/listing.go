package crawlers

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/F95Crawler/internal/models"
	"github.com/RecoveryAshes/F95Crawler/internal/utils"
)

var (
	threadIDRe    = regexp.MustCompile(`threads/[^/]+\.(\d+)`)
	ratingRe      = regexp.MustCompile(`([\d.]+)\s+star`)
	ratingCountRe = regexp.MustCompile(`(\d[\d,]*)`)
)

// PageURL 第n页列表地址, 第1页为分类地址本身
func PageURL(categoryURL string, n int) string {
	base := utils.EnsureTrailingSlash(categoryURL)
	if n <= 1 {
		return base
	}
	return fmt.Sprintf("%spage-%d", base, n)
}

// ThreadID 从帖子URL中提取ID, 没有时返回空字符串
func ThreadID(threadURL string) string {
	m := threadIDRe.FindStringSubmatch(threadURL)
	if m == nil {
		return ""
	}
	return m[1]
}

// ParseListing 解析分类列表页, 按文档顺序返回帖子
// 缺少ID的条目记录警告后丢弃, 可选字段缺失时保持零值
// ignore中的ID(公告、版规等)直接跳过
func ParseListing(html, pageURL string, ignore map[string]bool) ([]models.ThreadRef, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("解析列表页失败: %w", err)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("解析列表页URL失败: %w", err)
	}

	refs := make([]models.ThreadRef, 0)
	seen := make(map[string]bool)

	doc.Find("div.structItem--thread").Each(func(i int, item *goquery.Selection) {
		link := item.Find(`a[data-tp-primary="on"]`).First()
		if link.Length() == 0 {
			utils.Warnf("⚠️  列表第%d项缺少帖子链接, 已丢弃", i+1)
			return
		}

		href, _ := link.Attr("href")
		threadURL := resolve(base, href)
		title := utils.CollapseSpace(link.Text())

		id := ThreadID(threadURL)
		if id == "" {
			utils.Warnf("⚠️  列表第%d项缺少帖子ID, 已丢弃: %s", i+1, href)
			return
		}
		if ignore[id] {
			utils.Infof("跳过忽略的帖子: %s (ID: %s)", title, id)
			return
		}
		if seen[id] {
			return
		}
		seen[id] = true

		ref := models.ThreadRef{
			ID:       id,
			URL:      threadURL,
			Title:    title,
			Author:   "Unknown",
			Prefixes: []string{},
		}

		if author := item.Find("a.username").First(); author.Length() > 0 {
			ref.Author = strings.TrimSpace(author.Text())
			if h, ok := author.Attr("href"); ok {
				ref.AuthorURL = resolve(base, h)
			}
		}

		item.Find("div.structItem-cell--meta dl.pairs").Each(func(_ int, pair *goquery.Selection) {
			label, _ := pair.Find("dt").Attr("title")
			value := pair.Find("dd").Text()
			switch {
			case strings.Contains(label, "Replies"):
				ref.Replies = models.ParseCount(value)
			case strings.Contains(label, "Views"):
				ref.Views = models.ParseCount(value)
			}
		})

		if stars, ok := item.Find("span.ratingStars").Attr("title"); ok {
			if m := ratingRe.FindStringSubmatch(stars); m != nil {
				ref.Rating, _ = strconv.ParseFloat(m[1], 64)
			}
		}
		if m := ratingCountRe.FindStringSubmatch(item.Find("span.ratingStarsRow-text").Text()); m != nil {
			ref.RatingCount = models.ParseCount(m[1])
		}

		item.Find("a.labelLink").Each(func(_ int, p *goquery.Selection) {
			if text := strings.TrimSpace(p.Text()); text != "" {
				ref.Prefixes = append(ref.Prefixes, text)
			}
		})

		refs = append(refs, ref)
	})

	return refs, nil
}

// resolve 相对地址转绝对地址, 失败时原样返回
func resolve(base *url.URL, href string) string {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	return base.ResolveReference(u).String()
}
