package core

import (
	"net/http"

	"github.com/RecoveryAshes/F95Crawler/internal/models"
	"github.com/RecoveryAshes/F95Crawler/internal/utils"
	"github.com/corpix/uarand"
)

const (
	// DefaultUserAgent 默认User-Agent
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/120.0.0.0 Safari/537.36"
)

// HeaderManager 合并抓取请求的HTTP头部
// 优先级: 默认 < 配置文件 < 命令行, Cookie头部由会话cookie生成
// 实现 HeaderProvider 接口
type HeaderManager struct {
	defaults http.Header
	config   http.Header
	cli      http.Header
	cookies  []models.Cookie

	validator *utils.HeaderValidator
	redactor  *utils.HeaderRedactor
}

// NewHeaderManager 创建头部管理器
// 命令行头部格式错误时返回错误
func NewHeaderManager(cfg *Config, cliHeaders []string) (*HeaderManager, error) {
	hm := &HeaderManager{
		defaults:  getDefaultHeaders(cfg.RandomUserAgent),
		config:    make(http.Header),
		cli:       make(http.Header),
		cookies:   cfg.Cookies,
		validator: utils.NewHeaderValidator(),
		redactor:  utils.NewHeaderRedactor(),
	}

	for name, value := range cfg.Headers {
		hm.config.Set(name, value)
	}

	if len(cliHeaders) > 0 {
		parsed, err := models.CliHeaders(cliHeaders).Parse()
		if err != nil {
			return nil, err
		}
		hm.cli = parsed
	}

	return hm, nil
}

// getDefaultHeaders 返回默认头部
func getDefaultHeaders(randomUA bool) http.Header {
	ua := DefaultUserAgent
	if randomUA {
		ua = uarand.GetRandom()
	}
	return http.Header{
		"User-Agent":      []string{ua},
		"Accept":          []string{"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"},
		"Accept-Language": []string{"en-US,en;q=0.9"},
		"Accept-Encoding": []string{"gzip, deflate, br"},
	}
}

// Validate 验证配置和命令行头部
func (hm *HeaderManager) Validate() error {
	if err := hm.validator.Validate(hm.config); err != nil {
		utils.Errorf("配置文件头部验证失败: %v", err)
		return err
	}
	if err := hm.validator.Validate(hm.cli); err != nil {
		utils.Errorf("命令行头部验证失败: %v", err)
		return err
	}
	return hm.validator.ValidateCookies(hm.cookies)
}

// GetMergedHeaders 按优先级合并头部
// 命令行显式指定的Cookie优先于配置中的cookie
func (hm *HeaderManager) GetMergedHeaders() http.Header {
	result := make(http.Header)

	for name, values := range hm.defaults {
		result[name] = values
	}
	if cookie := models.CookieHeader(hm.cookies); cookie != "" {
		result.Set("Cookie", cookie)
	}
	for name, values := range hm.config {
		result[name] = values
	}
	for name, values := range hm.cli {
		result[name] = values
	}

	return result
}

// GetSafeHeaders 返回脱敏后的头部 (用于日志)
func (hm *HeaderManager) GetSafeHeaders() map[string]string {
	return hm.redactor.Redact(hm.GetMergedHeaders())
}

// GetHeaders 实现 HeaderProvider 接口
func (hm *HeaderManager) GetHeaders() (http.Header, error) {
	if err := hm.Validate(); err != nil {
		return nil, err
	}
	return hm.GetMergedHeaders(), nil
}
