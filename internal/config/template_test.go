package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/RecoveryAshes/F95Crawler/internal/models"
)

func TestTemplateIsValidJSON(t *testing.T) {
	var m map[string]interface{}
	if err := json.Unmarshal(Template(), &m); err != nil {
		t.Fatalf("内置模板不是合法JSON: %v", err)
	}
	for _, key := range []string{"wordpress_api_url", "wordpress_api_key", "delay_between_requests", "cookies"} {
		if _, ok := m[key]; !ok {
			t.Errorf("模板缺少键 %s", key)
		}
	}
}

func TestWriteTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")

	if err := WriteTemplate(path, false); err != nil {
		t.Fatalf("写入模板失败: %v", err)
	}
	if err := WriteTemplate(path, false); err == nil {
		t.Error("文件已存在时应返回错误")
	}
	if err := WriteTemplate(path, true); err != nil {
		t.Errorf("force 覆盖失败: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("模板文件不存在: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("模板文件权限错误: %v", info.Mode().Perm())
	}
}

func TestCheckFile(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		setup   func() string
		wantErr bool
	}{
		{
			name:    "文件不存在",
			setup:   func() string { return filepath.Join(dir, "missing.json") },
			wantErr: true,
		},
		{
			name:    "路径是目录",
			setup:   func() string { return dir },
			wantErr: true,
		},
		{
			name: "文件过大",
			setup: func() string {
				p := filepath.Join(dir, "big.json")
				os.WriteFile(p, make([]byte, MaxConfigFileSize+1), 0644)
				return p
			},
			wantErr: true,
		},
		{
			name: "正常文件",
			setup: func() string {
				p := filepath.Join(dir, "ok.json")
				os.WriteFile(p, []byte(`{}`), 0644)
				return p
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckFile(tt.setup())
			if (err != nil) != tt.wantErr {
				t.Fatalf("CheckFile() error = %v, wantErr %v", err, tt.wantErr)
			}
			var ce *models.ConfigError
			if err != nil && !errors.As(err, &ce) {
				t.Errorf("应返回 ConfigError, got %T", err)
			}
		})
	}
}
