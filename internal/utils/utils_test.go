package utils

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/RecoveryAshes/F95Crawler/internal/models"
)

func TestHeaderRedactor(t *testing.T) {
	hr := NewHeaderRedactor()

	tests := []struct {
		name   string
		header string
		value  string
		want   string
	}{
		{"普通头部", "Referer", "https://f95zone.to/", "https://f95zone.to/"},
		{"API密钥", "X-API-Key", "abcd1234efgh5678", "abcd***5678"},
		{"短密钥", "X-API-Key", "short", "***"},
		{"Bearer", "Authorization", "Bearer xyz", "Bearer ***"},
		{"Cookie", "Cookie", "xf_user=1%2Cabc; xf_session=zzz", "xf_user=***; xf_session=***"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := hr.RedactHeaderValue(tt.header, tt.value); got != tt.want {
				t.Errorf("RedactHeaderValue() = %q, want %q", got, tt.want)
			}
		})
	}

	h := http.Header{}
	h.Set("User-Agent", "ua")
	h.Set("Cookie", "a=b")
	if got := hr.RedactToString(h); got != "Cookie: a=***, User-Agent: ua" {
		t.Errorf("RedactToString() = %q", got)
	}
}

func TestHeaderValidator(t *testing.T) {
	hv := NewHeaderValidator()

	tests := []struct {
		name    string
		header  string
		value   string
		wantErr bool
	}{
		{"合法头部", "Referer", "https://f95zone.to/", false},
		{"禁止的头部", "Host", "example.com", true},
		{"非法名称", "Bad Header", "x", true},
		{"非法值", "X-Test", "line\nbreak", true},
		{"值过长", "X-Test", strings.Repeat("a", MaxHeaderValueLength+1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := hv.ValidateHeader(tt.header, tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateHeader() error = %v, wantErr %v", err, tt.wantErr)
			}
			var ve *models.ValidationError
			if err != nil && !errors.As(err, &ve) {
				t.Errorf("应返回 ValidationError, got %T", err)
			}
		})
	}
}

func TestValidateCookies(t *testing.T) {
	hv := NewHeaderValidator()

	ok := []models.Cookie{{Name: "xf_user", Value: "123%2Cabc"}, {Name: "xf_csrf", Value: "x"}}
	if err := hv.ValidateCookies(ok); err != nil {
		t.Errorf("合法cookie被拒绝: %v", err)
	}
	if err := hv.ValidateCookies([]models.Cookie{{Name: "bad name", Value: "x"}}); err == nil {
		t.Error("非法cookie名称应返回错误")
	}
	if err := hv.ValidateCookies([]models.Cookie{{Name: "a", Value: "x; b=c"}}); err == nil {
		t.Error("包含分号的值应返回错误")
	}
}

func TestHelpers(t *testing.T) {
	if EnsureTrailingSlash("https://f95zone.to/forums/games.2") != "https://f95zone.to/forums/games.2/" {
		t.Error("EnsureTrailingSlash 未补全斜杠")
	}
	if EnsureTrailingSlash("https://x/") != "https://x/" {
		t.Error("EnsureTrailingSlash 不应重复斜杠")
	}
	if Truncate("你好世界", 2) != "你好..." {
		t.Errorf("Truncate() = %q", Truncate("你好世界", 2))
	}
	if CollapseSpace("  a \n\t b  ") != "a b" {
		t.Error("CollapseSpace 结果错误")
	}
	got := Dedupe([]string{"a", "", "b", "a"})
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Dedupe() = %v", got)
	}
	if err := ValidateURL("f95zone.to"); err == nil {
		t.Error("缺少协议应返回错误")
	}
}

func TestReporter_WriteRunReport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	r := NewReporter(dir)

	summary := models.NewRunSummary(models.RunLimits{BatchSize: 10}, false)
	summary.Stats.Published = 3
	summary.Finish(models.StopNoMorePages)

	path, err := r.WriteRunReport(&models.RunReport{Summary: summary, StateDriver: "json"})
	if err != nil {
		t.Fatalf("写入报告失败: %v", err)
	}
	if filepath.Base(path) != "run_"+summary.RunID+".json" {
		t.Errorf("报告文件名错误: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("读取报告失败: %v", err)
	}
	var back models.RunReport
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("报告不是合法JSON: %v", err)
	}
	if back.Summary.Stats.Published != 3 || back.Summary.StopReason != models.StopNoMorePages {
		t.Errorf("报告内容错误: %+v", back.Summary)
	}

	if _, err := r.WriteRunReport(nil); err == nil {
		t.Error("空报告应返回错误")
	}
}

func TestPrintSummary(t *testing.T) {
	s := models.NewRunSummary(models.RunLimits{BatchSize: 10}, true)
	s.Stats.Published = 2
	s.Finish(models.StopPageLimit)

	var buf bytes.Buffer
	PrintSummary(&buf, s)
	out := buf.String()
	if !strings.Contains(out, "试运行输出:   2") || !strings.Contains(out, "page_limit") {
		t.Errorf("汇总输出错误:\n%s", out)
	}
}
