package utils

import (
	"net/http"
	"sort"
	"strings"
)

var (
	// SensitiveKeywords 敏感头部名称关键字 (用于脱敏)
	SensitiveKeywords = []string{
		"authorization",
		"cookie",
		"token",
		"key",
		"secret",
		"password",
	}
)

// HeaderRedactor 头部脱敏器
// 用于日志和报告中的头部与密钥输出
type HeaderRedactor struct {
	sensitiveKeywords []string
}

// NewHeaderRedactor 创建头部脱敏器
func NewHeaderRedactor() *HeaderRedactor {
	return &HeaderRedactor{
		sensitiveKeywords: SensitiveKeywords,
	}
}

// IsSensitiveHeader 根据名称关键字判断是否敏感
func (hr *HeaderRedactor) IsSensitiveHeader(name string) bool {
	nameLower := strings.ToLower(name)
	for _, keyword := range hr.sensitiveKeywords {
		if strings.Contains(nameLower, keyword) {
			return true
		}
	}
	return false
}

// RedactHeaderValue 脱敏单个头部值
func (hr *HeaderRedactor) RedactHeaderValue(name, value string) string {
	if !hr.IsSensitiveHeader(name) {
		return value
	}

	if strings.EqualFold(name, "Cookie") {
		return redactCookies(value)
	}
	if strings.HasPrefix(value, "Bearer ") {
		return "Bearer ***"
	}
	return RedactSecret(value)
}

// RedactSecret 长密钥保留首尾4位,短密钥完全隐藏
func RedactSecret(value string) string {
	if len(value) > 8 {
		return value[:4] + "***" + value[len(value)-4:]
	}
	if value == "" {
		return ""
	}
	return "***"
}

// redactCookies 保留cookie名,隐藏值
func redactCookies(value string) string {
	parts := strings.Split(value, ";")
	for i, p := range parts {
		name, _, found := strings.Cut(strings.TrimSpace(p), "=")
		if found {
			parts[i] = name + "=***"
		} else {
			parts[i] = strings.TrimSpace(p)
		}
	}
	return strings.Join(parts, "; ")
}

// Redact 脱敏整个http.Header,返回安全的字符串map
func (hr *HeaderRedactor) Redact(headers http.Header) map[string]string {
	result := make(map[string]string, len(headers))
	for name, values := range headers {
		if len(values) == 0 {
			continue
		}
		result[name] = hr.RedactHeaderValue(name, values[0])
	}
	return result
}

// RedactToString 脱敏并按名称排序输出
// 格式: "Header1: value1, Header2: value2"
func (hr *HeaderRedactor) RedactToString(headers http.Header) string {
	redacted := hr.Redact(headers)
	names := make([]string, 0, len(redacted))
	for name := range redacted {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+redacted[name])
	}
	return strings.Join(parts, ", ")
}
