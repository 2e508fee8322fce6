package crawlers

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/F95Crawler/internal/models"
	"github.com/RecoveryAshes/F95Crawler/internal/utils"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// HostPatterns 下载区中识别为网盘链接的地址片段
var HostPatterns = []string{
	"mega.nz", "pixeldrain", "gofile", "anonfiles", "workupload",
	"mediafire", "uploadhaven", "mixdrop", "krakenfiles", "dropbox",
	"drive.google", "nopy.to", "wetransfer", "sendspace", "buzzheavier",
	"uploadnow", "f95zone.to/masked", "catbox.moe", "datanodes.to",
}

// 下载区中的界面文字, 不是网盘名称
var uiLabels = map[string]bool{
	"REACTIONS": true, "MEMBERS": true, "LOGIN": true,
	"REGISTER": true, "FORUMS": true, "TAGS": true,
}

var platformKeywords = []string{"Windows", "Linux", "Mac", "Android", "iOS"}

var (
	versionRe  = regexp.MustCompile(`\[v?([\d.]+[^\[\]]*)\]`)
	bracketRe  = regexp.MustCompile(`\[([^\[\]]+)\]`)
	osLineRe   = regexp.MustCompile(`(?i)\bOS[:\s]+([^\n]+)`)
	overviewRe = regexp.MustCompile(`(?i)Overview[:\s]+`)
	overEndRe  = regexp.MustCompile(`(?i)\n\n|Thread Updated|Release Date|Developer`)
	downloadRe = regexp.MustCompile(`(?i)DOWNLOAD`)

	fieldPatterns = []struct {
		field string
		re    *regexp.Regexp
	}{
		{"thread_updated", regexp.MustCompile(`(?i)Thread Updated[:\s]+(\d{4}-\d{2}-\d{2})`)},
		{"release_date", regexp.MustCompile(`(?i)Release Date[:\s]+(\d{4}-\d{2}-\d{2})`)},
		{"censored", regexp.MustCompile(`(?i)Censored[:\s]+([^\n]+)`)},
		{"os_platforms", regexp.MustCompile(`(?i)\bOS[:\s]+([^\n]+)`)},
		{"language", regexp.MustCompile(`(?i)Language[:\s]+([^\n]+)`)},
		{"genre", regexp.MustCompile(`(?i)Genre[:\s]+([^\n]+)`)},
	}
)

// Extract 把帖子页解析为游戏记录
// 标题块或首帖正文缺失时返回 *models.ExtractionError, 其余字段缺失时留空
// 图片保留原始地址, 代理改写由发布端完成
func Extract(page string, ref models.ThreadRef) (*models.GameRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil, &models.ExtractionError{URL: ref.URL, Reason: "HTML解析失败: " + err.Error()}
	}

	titleEl := doc.Find("h1.p-title-value").First()
	if titleEl.Length() == 0 {
		return nil, &models.ExtractionError{URL: ref.URL, Reason: "找不到标题块 h1.p-title-value"}
	}

	content := doc.Find("article.message-body div.bbWrapper").First()
	if content.Length() == 0 {
		return nil, &models.ExtractionError{URL: ref.URL, Reason: "找不到首帖正文 div.bbWrapper"}
	}

	rec := &models.GameRecord{ThreadRef: ref}
	if rec.Prefixes == nil {
		rec.Prefixes = []string{}
	}

	parseTitle(titleEl, rec)

	rec.Tags = []string{}
	doc.Find("span.js-tagList a.tagItem").Each(func(_ int, s *goquery.Selection) {
		if tag := strings.TrimSpace(s.Text()); tag != "" {
			rec.Tags = append(rec.Tags, tag)
		}
	})

	text := content.Text()
	rec.Categories = append(rec.Categories, platformsFromText(text)...)
	parseTextFields(text, rec)
	parseLabeledFields(content, ref.URL, rec)

	rec.DownloadLinks = extractDownloadLinks(doc, content)
	fixLazyImages(content)
	rec.Images = extractImages(content)
	if len(rec.Images) > 0 {
		rec.FeaturedImage = rec.Images[0]
		rec.UseExternal = true
	}

	body, err := goquery.OuterHtml(content)
	if err != nil {
		return nil, &models.ExtractionError{URL: ref.URL, Reason: "正文序列化失败: " + err.Error()}
	}
	rec.Content = body

	logger := utils.WithThread(ref.ID)
	logger.Debug().
		Str("title", rec.Title).
		Str("version", rec.Version).
		Int("images", len(rec.Images)).
		Int("downloads", len(rec.DownloadLinks)).
		Msg("帖子解析完成")

	return rec, nil
}

// parseTitle 解析标题: 前缀标签作为分类, 版本和开发者从方括号中取出
func parseTitle(titleEl *goquery.Selection, rec *models.GameRecord) {
	rec.Categories = []string{}
	titleEl.Find("span.label, span.pre-renpy").Each(func(_ int, s *goquery.Selection) {
		if label := strings.TrimSpace(s.Text()); label != "" {
			rec.Categories = append(rec.Categories, label)
		}
	})

	clean := titleEl.Clone()
	clean.Find("span.label, span.pre-renpy").Remove()
	title := utils.CollapseSpace(clean.Text())

	versionLoc := versionRe.FindStringSubmatchIndex(title)
	if versionLoc != nil {
		rec.Version = strings.TrimSpace(title[versionLoc[2]:versionLoc[3]])
	}

	// 开发者是最后一个方括号, 且不能是版本所在的方括号
	var devLoc []int
	if all := bracketRe.FindAllStringSubmatchIndex(title, -1); len(all) > 0 {
		last := all[len(all)-1]
		if versionLoc == nil || last[1] <= versionLoc[0] || last[0] >= versionLoc[1] {
			devLoc = last
			rec.Developer = strings.TrimSpace(title[last[2]:last[3]])
		}
	}

	rec.Title = utils.CollapseSpace(removeSpans(title, devLoc, versionLoc))
}

// removeSpans 按起始位置从后往前删除互不重叠的区间, 重叠或越界的区间被忽略
func removeSpans(s string, locs ...[]int) string {
	spans := make([][2]int, 0, len(locs))
	for _, loc := range locs {
		if len(loc) >= 2 && loc[0] >= 0 && loc[0] <= loc[1] && loc[1] <= len(s) {
			spans = append(spans, [2]int{loc[0], loc[1]})
		}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i][0] > spans[j][0] })

	end := len(s)
	for _, sp := range spans {
		if sp[1] > end {
			continue
		}
		s = s[:sp[0]] + s[sp[1]:]
		end = sp[0]
	}
	return s
}

// platformsFromText 从 "OS: Windows, Linux" 行中识别平台
func platformsFromText(text string) []string {
	m := osLineRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	line := strings.ToLower(m[1])
	var out []string
	for _, p := range platformKeywords {
		if strings.Contains(line, strings.ToLower(p)) {
			out = append(out, p)
		}
	}
	return out
}

// parseTextFields 从正文纯文本中提取结构化字段
func parseTextFields(text string, rec *models.GameRecord) {
	if loc := overviewRe.FindStringIndex(text); loc != nil {
		rest := text[loc[1]:]
		if end := overEndRe.FindStringIndex(rest); end != nil {
			rec.Overview = strings.TrimSpace(rest[:end[0]])
		}
	}

	for _, p := range fieldPatterns {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		value := strings.TrimSpace(m[1])
		switch p.field {
		case "thread_updated":
			rec.ThreadUpdated = value
		case "release_date":
			rec.ReleaseDate = value
		case "censored":
			rec.Censored = value
		case "os_platforms":
			rec.OSPlatforms = value
		case "language":
			rec.Language = value
		case "genre":
			rec.Genre = value
		}
	}
}

// parseLabeledFields 处理粗体标签后面的内容
// Developer: 后的第一个链接, Genre: 后的同级文本, Changelog/Installation: 后的第一个折叠块
func parseLabeledFields(content *goquery.Selection, baseURL string, rec *models.GameRecord) {
	root := content.Get(0)
	nodes := flatten(root)

	for i, n := range nodes {
		if n.Type != html.ElementNode || n.DataAtom != atom.B {
			continue
		}
		label := strings.ToLower(nodeText(n))

		switch {
		case strings.Contains(label, "developer:") && rec.DeveloperURL == "":
			if a := nextElement(nodes[i+1:], func(m *html.Node) bool { return m.DataAtom == atom.A }); a != nil {
				if href := attr(a, "href"); href != "" {
					rec.DeveloperURL = resolveAgainst(baseURL, href)
				}
			}

		case strings.Contains(label, "genre:"):
			if genre := siblingText(n); genre != "" {
				rec.Genre = genre
			}

		case strings.Contains(label, "changelog:") && rec.Changelog == "":
			if sp := nextElement(nodes[i+1:], isSpoiler); sp != nil {
				rec.Changelog = strings.TrimSpace(nodeText(sp))
			}

		case strings.Contains(label, "installation:") && rec.Installation == "":
			if sp := nextElement(nodes[i+1:], isSpoiler); sp != nil {
				rec.Installation = strings.TrimSpace(nodeText(sp))
			}
		}
	}
}

// siblingText 收集标签之后的同级文本, 遇到 <b> 或 <br> 停止
func siblingText(n *html.Node) string {
	var parts []string
	for s := n.NextSibling; s != nil; s = s.NextSibling {
		if s.Type == html.ElementNode {
			if s.DataAtom == atom.B || s.DataAtom == atom.Br {
				break
			}
			continue
		}
		if s.Type == html.TextNode {
			if t := strings.TrimSpace(s.Data); t != "" && t != ":" {
				parts = append(parts, t)
			}
		}
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// extractDownloadLinks 在第一个 DOWNLOAD 文字所在的 div 中查找网盘链接
func extractDownloadLinks(doc *goquery.Document, content *goquery.Selection) []models.DownloadLink {
	links := []models.DownloadLink{}

	var marker *html.Node
	for _, n := range flatten(content.Get(0)) {
		if n.Type == html.TextNode && downloadRe.MatchString(n.Data) {
			marker = n
			break
		}
	}
	if marker == nil {
		return links
	}

	section := marker.Parent
	for section != nil && section.DataAtom != atom.Div {
		section = section.Parent
	}
	if section == nil {
		return links
	}

	doc.FindNodes(section).Find("a").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if href == "" || !isHostLink(href) {
			return
		}
		text := strings.TrimSpace(a.Text())
		if utf8.RuneCountInString(text) < 2 || uiLabels[strings.ToUpper(text)] {
			return
		}
		links = append(links, models.DownloadLink{
			Platform: platformFor(a.Get(0), section),
			Host:     strings.ToUpper(text),
			URL:      href,
		})
	})

	return links
}

func isHostLink(href string) bool {
	lower := strings.ToLower(href)
	for _, p := range HostPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// platformFor 向前查找同一行中提到平台的文字 (如 "Win/Linux:")
// 当前层找不到且父节点不是下载区时, 到父节点继续找
func platformFor(link, section *html.Node) string {
	for n := link; n != nil && n != section; n = n.Parent {
		for s := n.PrevSibling; s != nil; s = s.PrevSibling {
			if s.Type == html.ElementNode && s.DataAtom == atom.Br {
				break
			}
			if s.Type == html.ElementNode && s.DataAtom == atom.A {
				continue
			}
			var text string
			if s.Type == html.TextNode {
				text = s.Data
			} else {
				text = nodeText(s)
			}
			if mentionsPlatform(text) {
				return strings.TrimRight(strings.TrimSpace(text), ": -")
			}
		}
	}
	return ""
}

func mentionsPlatform(s string) bool {
	for _, k := range []string{"Win", "Mac", "Linux", "Android"} {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// extractImages 收集正文截图的原始地址
// 跳过懒加载占位图, 去掉 /thumb/ 以取得原图, 按出现顺序去重
func extractImages(content *goquery.Selection) []string {
	var images []string
	content.Find("img.bbImage").Each(func(_ int, img *goquery.Selection) {
		src, _ := img.Attr("src")
		if src == "" || strings.Contains(src, "data:image") || strings.Contains(src, "svg+xml") {
			src, _ = img.Attr("data-src")
		}
		if src == "" || !strings.Contains(src, "http") {
			return
		}
		images = append(images, strings.ReplaceAll(src, "/thumb/", "/"))
	})
	return utils.Dedupe(images)
}

// fixLazyImages 用 data-src 替换懒加载占位图并删除重复图片
func fixLazyImages(content *goquery.Selection) {
	seen := make(map[string]bool)
	content.Find("img.bbImage").Each(func(_ int, img *goquery.Selection) {
		src, ok := img.Attr("data-src")
		if !ok || src == "" {
			src, _ = img.Attr("src")
		}
		if seen[src] {
			img.Remove()
			return
		}
		seen[src] = true

		if dataSrc, ok := img.Attr("data-src"); ok && dataSrc != "" {
			img.SetAttr("src", dataSrc)
			img.RemoveAttr("data-src")
			img.RemoveClass("lazyload")
		}
	})
}

// flatten 按文档顺序展开子树
func flatten(root *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		out = append(out, n)
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	if root != nil {
		walk(root)
	}
	return out
}

func nextElement(nodes []*html.Node, match func(*html.Node) bool) *html.Node {
	for _, n := range nodes {
		if n.Type == html.ElementNode && match(n) {
			return n
		}
	}
	return nil
}

func isSpoiler(n *html.Node) bool {
	if n.DataAtom != atom.Div {
		return false
	}
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == "bbCodeSpoiler" {
			return true
		}
	}
	return false
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	for _, c := range flatten(n) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func resolveAgainst(base, href string) string {
	b, err := url.Parse(base)
	if err != nil || b.Scheme == "" {
		return href
	}
	return resolve(b, href)
}
