package models

import (
	"fmt"
)

// FetchError 网络错误或非2xx响应
// 只影响单个页面,列表首页除外
type FetchError struct {
	URL        string
	StatusCode int // 网络错误时为0
	Cause      error
}

// Error 实现error接口
func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("抓取失败 [%s]: HTTP %d: %v", e.URL, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("抓取失败 [%s]: %v", e.URL, e.Cause)
}

// Unwrap 支持errors.Unwrap
func (e *FetchError) Unwrap() error {
	return e.Cause
}

// Retryable 4xx中只有429和408值得重试
func (e *FetchError) Retryable() bool {
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode == 408 || e.StatusCode == 429:
		return true
	case e.StatusCode >= 500:
		return true
	}
	return false
}

// ExtractionError 页面无法识别为帖子页
type ExtractionError struct {
	URL    string
	Reason string
}

// Error 实现error接口
func (e *ExtractionError) Error() string {
	return fmt.Sprintf("解析帖子失败 [%s]: %s", e.URL, e.Reason)
}

// PublishError 远端拒绝了一条记录
type PublishError struct {
	ThreadID   string
	StatusCode int
	Body       string // 响应体(截断)
	Cause      error
}

// Error 实现error接口
func (e *PublishError) Error() string {
	msg := fmt.Sprintf("发布失败 [thread %s]", e.ThreadID)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": HTTP %d", e.StatusCode)
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(": %v", e.Cause)
	}
	if e.Body != "" {
		msg += fmt.Sprintf(" (响应: %s)", e.Body)
	}
	return msg
}

// Unwrap 支持errors.Unwrap
func (e *PublishError) Unwrap() error {
	return e.Cause
}

// ValidationError 头部验证错误
type ValidationError struct {
	// Field 出错的字段 ("name" 或 "value")
	Field string

	HeaderName string
	Reason     string

	// Suggestion 修复建议 (可选)
	Suggestion string
}

// Error 实现error接口
func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("头部验证失败 [%s]: %s", e.HeaderName, e.Reason)
	if e.Suggestion != "" {
		msg += fmt.Sprintf(" (建议: %s)", e.Suggestion)
	}
	return msg
}

// ConfigError 配置文件错误,属于致命错误
type ConfigError struct {
	FilePath string
	Cause    error
}

// Error 实现error接口
func (e *ConfigError) Error() string {
	return fmt.Sprintf("配置文件错误 [%s]: %v", e.FilePath, e.Cause)
}

// Unwrap 支持errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Cause
}
