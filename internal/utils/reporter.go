package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/RecoveryAshes/F95Crawler/internal/models"
	"github.com/schollz/progressbar/v3"
)

// Reporter 运行报告生成器
type Reporter struct {
	outputDir string
}

// NewReporter 创建报告生成器
func NewReporter(outputDir string) *Reporter {
	return &Reporter{outputDir: outputDir}
}

// WriteRunReport 写入 run_<id>.json,返回文件路径
func (r *Reporter) WriteRunReport(report *models.RunReport) (string, error) {
	if report == nil || report.Summary == nil {
		return "", fmt.Errorf("报告为空")
	}
	if err := os.MkdirAll(r.outputDir, 0755); err != nil {
		return "", fmt.Errorf("创建报告目录失败: %w", err)
	}

	path := filepath.Join(r.outputDir, fmt.Sprintf("run_%s.json", report.Summary.RunID))
	if err := saveJSON(path, report); err != nil {
		return "", err
	}

	Infof("✅ 报告已生成: %s", path)
	return path, nil
}

// saveJSON 保存JSON文件
func saveJSON(path string, data interface{}) error {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化JSON失败: %w", err)
	}
	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("写入报告文件失败: %w", err)
	}
	return nil
}

// PrintSummary 向终端输出运行汇总
func PrintSummary(w io.Writer, s *models.RunSummary) {
	st := s.Stats
	fmt.Fprintln(w)
	fmt.Fprintln(w, "==================== 运行汇总 ====================")
	fmt.Fprintf(w, "运行ID:       %s\n", s.RunID)
	fmt.Fprintf(w, "耗时:         %s\n", (time.Duration(s.Duration * float64(time.Second))).Round(time.Millisecond))
	fmt.Fprintf(w, "结束原因:     %s\n", s.StopReason)
	fmt.Fprintf(w, "列表页:       %d\n", st.PagesFetched)
	fmt.Fprintf(w, "发现帖子:     %d (跳过重复 %d)\n", st.ThreadsFound, st.DuplicatesSkipped)
	fmt.Fprintf(w, "抓取帖子:     %d (失败 %d)\n", st.ThreadsFetched, st.FetchFailures)
	fmt.Fprintf(w, "提取成功:     %d (失败 %d)\n", st.Extracted, st.ExtractFailures)
	if s.DryRun {
		fmt.Fprintf(w, "试运行输出:   %d\n", st.Published)
	} else {
		fmt.Fprintf(w, "发布成功:     %d (失败 %d, 共 %d 批)\n", st.Published, st.PublishFailures, st.Batches)
	}
	if s.Error != "" {
		fmt.Fprintf(w, "错误:         %s\n", s.Error)
	}
	fmt.Fprintln(w, "==================================================")
}

// NewProgressBar 创建进度条,max为-1时显示为旋转指示器
func NewProgressBar(max int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(max,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
