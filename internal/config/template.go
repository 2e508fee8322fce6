package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/RecoveryAshes/F95Crawler/internal/models"
)

const (
	// DefaultConfigFile 默认配置文件路径
	DefaultConfigFile = "config.json"

	// MaxConfigFileSize 配置文件最大大小 (1MB)
	MaxConfigFileSize = 1 * 1024 * 1024
)

//go:embed config_template.json
var defaultTemplate []byte

// Template 返回内置配置模板
func Template() []byte {
	out := make([]byte, len(defaultTemplate))
	copy(out, defaultTemplate)
	return out
}

// WriteTemplate 写入配置模板
// 文件已存在且未指定force时返回错误
func WriteTemplate(path string, force bool) error {
	if path == "" {
		path = DefaultConfigFile
	}

	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("配置文件已存在 [%s], 使用 --force 覆盖", path)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("无法创建配置目录 [%s]: %w", dir, err)
	}

	// 含API密钥和cookie,仅当前用户可读
	if err := os.WriteFile(path, defaultTemplate, 0600); err != nil {
		return fmt.Errorf("无法生成配置文件 [%s]: %w", path, err)
	}
	return nil
}

// CheckFile 验证配置文件存在且大小在限制内
func CheckFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &models.ConfigError{
				FilePath: path,
				Cause:    fmt.Errorf("配置文件不存在, 可运行 'f95crawler init' 生成模板"),
			}
		}
		return &models.ConfigError{FilePath: path, Cause: err}
	}

	if info.IsDir() {
		return &models.ConfigError{FilePath: path, Cause: fmt.Errorf("路径是目录")}
	}

	if info.Size() > MaxConfigFileSize {
		return &models.ConfigError{
			FilePath: path,
			Cause: fmt.Errorf("配置文件过大: %d 字节 (最大 %d 字节)",
				info.Size(), MaxConfigFileSize),
		}
	}

	return nil
}
