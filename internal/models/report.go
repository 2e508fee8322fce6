package models

import (
	"encoding/json"
)

// RunReport 运行报告,写入 report_dir/run_<id>.json
type RunReport struct {
	Summary *RunSummary `json:"summary"`

	// 配置快照 (敏感值已脱敏)
	CategoryURL  string            `json:"category_url"`
	PublishURL   string            `json:"publish_url"`
	StateDriver  string            `json:"state_driver"`
	Headers      map[string]string `json:"headers,omitempty"`
	Results      []PublishResult   `json:"results,omitempty"`
	PublishedIDs []string          `json:"published_ids"`
}

// ToJSON 序列化为JSON
func (r *RunReport) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// FromJSON 从JSON反序列化
func (r *RunReport) FromJSON(data []byte) error {
	return json.Unmarshal(data, r)
}
