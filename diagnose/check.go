// Package diagnose 实现环境自检：密钥、平台连通性、样例文件与产物读写，
// 汇总为一份 JSON 报告并给出整体结论（ready / needs_api_keys / needs_setup）。
package diagnose

import (
	"time"
)

// CheckStatus 单项检查结果
type CheckStatus string

const (
	StatusOK   CheckStatus = "ok"
	StatusWarn CheckStatus = "warn" // 可用但有缺失（如可选密钥未配）
	StatusFail CheckStatus = "fail"
)

// OverallStatus 整体结论
type OverallStatus string

const (
	// StatusReady 环境可用：通过率达标且至少配置了平台密钥
	StatusReady OverallStatus = "ready"
	// StatusNeedsAPIKeys 代码与依赖就绪，但缺少 API 密钥
	StatusNeedsAPIKeys OverallStatus = "needs_api_keys"
	// StatusNeedsSetup 通过率不达标，环境需要修复
	StatusNeedsSetup OverallStatus = "needs_setup"
)

// CheckResult 一项检查的结果
type CheckResult struct {
	Name      string        `json:"name"`
	Status    CheckStatus   `json:"status"`
	Detail    string        `json:"detail,omitempty"`
	LatencyMS int64         `json:"latency_ms,omitempty"`
	Latency   time.Duration `json:"-"`
}

// Passed warn 记为通过：可选项缺失不应压低通过率
func (r CheckResult) Passed() bool {
	return r.Status == StatusOK || r.Status == StatusWarn
}

// Report 一次完整自检的报告，会被序列化为 JSON 落盘
type Report struct {
	RunID     string        `json:"run_id"`
	Timestamp time.Time     `json:"timestamp"`
	GoVersion string        `json:"go_version"`
	Platform  string        `json:"platform"`
	Checks    []CheckResult `json:"checks"`
	Passed    int           `json:"passed"`
	Total     int           `json:"total"`
	PassRatio float64       `json:"pass_ratio"`
	Status    OverallStatus `json:"status"`
	Duration  time.Duration `json:"-"`
	DurationS float64       `json:"duration_seconds"`
}

// Finalize 统计通过率并给出整体结论。
// anyKey 表示是否配置了任意 API 密钥，threshold 是达标通过率（如 0.7）。
func (r *Report) Finalize(anyKey bool, threshold float64) {
	r.Total = len(r.Checks)
	r.Passed = 0
	for _, c := range r.Checks {
		if c.Passed() {
			r.Passed++
		}
	}
	if r.Total > 0 {
		r.PassRatio = float64(r.Passed) / float64(r.Total)
	}

	switch {
	case r.PassRatio < threshold:
		r.Status = StatusNeedsSetup
	case !anyKey:
		r.Status = StatusNeedsAPIKeys
	default:
		r.Status = StatusReady
	}
}

// ExitCode 通过率达标返回 0，否则 1。缺密钥不算失败：
// 代码与依赖就绪即视为通过，密钥由用户补齐。
func (r *Report) ExitCode() int {
	if r.Status == StatusNeedsSetup {
		return 1
	}
	return 0
}
