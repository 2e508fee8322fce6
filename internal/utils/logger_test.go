package utils

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func newTestLogConfig(dir, level string) LogConfig {
	cfg := DefaultLogConfig()
	cfg.Dir = dir
	cfg.Level = level
	cfg.Compress = false
	cfg.Console = false
	return cfg
}

func TestInitLogger(t *testing.T) {
	tempDir := t.TempDir()

	if err := InitLogger(newTestLogConfig(tempDir, "debug")); err != nil {
		t.Fatalf("初始化日志器失败: %v", err)
	}
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	Infof("抓取列表页 %d", 1)
	Warn("测试警告日志")

	content, err := os.ReadFile(filepath.Join(tempDir, "crawler.log"))
	if err != nil {
		t.Fatalf("读取主日志失败: %v", err)
	}
	if !strings.Contains(string(content), "抓取列表页 1") {
		t.Errorf("主日志缺少内容: %s", content)
	}
}

func TestErrorLogOnlyErrors(t *testing.T) {
	tempDir := t.TempDir()

	if err := InitLogger(newTestLogConfig(tempDir, "info")); err != nil {
		t.Fatalf("初始化日志器失败: %v", err)
	}

	Info("普通信息")
	Error(errors.New("boom"), "发布失败")

	content, err := os.ReadFile(filepath.Join(tempDir, "crawler_error.log"))
	if err != nil {
		t.Fatalf("读取错误日志失败: %v", err)
	}
	if strings.Contains(string(content), "普通信息") {
		t.Error("错误日志不应包含info级别")
	}
	if !strings.Contains(string(content), "发布失败") {
		t.Error("错误日志缺少error级别内容")
	}
}

func TestLogLevelFilter(t *testing.T) {
	tempDir := t.TempDir()

	if err := InitLogger(newTestLogConfig(tempDir, "warn")); err != nil {
		t.Fatalf("初始化日志器失败: %v", err)
	}
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	Debugf("调试 %v", true)
	Info("信息")
	Warnf("警告 %d", 123)

	content, _ := os.ReadFile(filepath.Join(tempDir, "crawler.log"))
	if strings.Contains(string(content), "信息") {
		t.Error("warn级别下不应写入info日志")
	}
	if !strings.Contains(string(content), "警告 123") {
		t.Error("缺少warn日志")
	}
}

func TestDefaultLogConfig(t *testing.T) {
	config := DefaultLogConfig()

	if config.Level != "info" {
		t.Errorf("默认日志级别错误: 期望 'info', 得到 '%s'", config.Level)
	}
	if config.FileName != "crawler.log" {
		t.Errorf("默认日志文件错误: %s", config.FileName)
	}
	if config.ErrorLogName() != "crawler_error.log" {
		t.Errorf("错误日志文件名错误: %s", config.ErrorLogName())
	}
}
