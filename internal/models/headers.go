package models

import (
	"fmt"
	"net/http"
	"strings"
)

// Cookie 配置文件中的会话cookie
// 原样作为Cookie头部发送
type Cookie struct {
	Name   string `mapstructure:"name" json:"name"`
	Value  string `mapstructure:"value" json:"value"`
	Domain string `mapstructure:"domain" json:"domain,omitempty"`
}

// CookieHeader 将cookie列表拼接为Cookie头部值,跳过名称为空的项
func CookieHeader(cookies []Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			continue
		}
		parts = append(parts, name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

// CliHeaders 表示命令行传递的头部列表
// 每个字符串格式为 "Name: Value"
type CliHeaders []string

// Parse 将字符串列表解析为 http.Header
func (ch CliHeaders) Parse() (http.Header, error) {
	result := make(http.Header)
	for i, s := range ch {
		name, value, err := parseHeaderString(s)
		if err != nil {
			return nil, fmt.Errorf("参数 --header 第%d项格式错误: %w", i+1, err)
		}
		result.Set(name, value)
	}
	return result, nil
}

// parseHeaderString 解析单个头部字符串 "Name: Value"
func parseHeaderString(s string) (name, value string, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("格式错误: 缺少冒号分隔符,应为 'Name: Value'")
	}

	name = strings.TrimSpace(parts[0])
	value = strings.TrimSpace(parts[1])

	if name == "" {
		return "", "", fmt.Errorf("头部名称不能为空")
	}

	return name, value, nil
}

// HeaderProvider 为抓取请求提供HTTP头部
// 返回的头部已包含会话Cookie
type HeaderProvider interface {
	GetHeaders() (http.Header, error)
}
