package diagnose

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/visionkit/artifacts"
	"github.com/BaSui01/visionkit/config"
	"github.com/BaSui01/visionkit/internal/cache"
	"github.com/BaSui01/visionkit/internal/metrics"
	"github.com/BaSui01/visionkit/llm"
)

// Prober 连通性探测目标，llm.Provider 的子集
type Prober interface {
	Name() string
	HealthCheck(ctx context.Context) (*llm.HealthStatus, error)
}

// Runner 串起一次完整自检
type Runner struct {
	cfg     config.DoctorConfig
	creds   *config.Credentials
	probers []Prober
	store   *artifacts.Store
	cache   *cache.Manager
	metrics *metrics.Collector
	history *History
	logger  *zap.Logger
}

// Option 配置 Runner 的可选依赖
type Option func(*Runner)

// WithProbers 设置要探测的上游
func WithProbers(probers ...Prober) Option {
	return func(r *Runner) { r.probers = probers }
}

// WithArtifactStore 设置产物存储，报告会同时登记为产物
func WithArtifactStore(store *artifacts.Store) Option {
	return func(r *Runner) { r.store = store }
}

// WithProbeCache 设置探测结果缓存
func WithProbeCache(c *cache.Manager) Option {
	return func(r *Runner) { r.cache = c }
}

// WithMetrics 设置指标收集器
func WithMetrics(m *metrics.Collector) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithHistory 设置运行历史存储
func WithHistory(h *History) Option {
	return func(r *Runner) { r.history = h }
}

// NewRunner 创建自检 Runner
func NewRunner(cfg config.DoctorConfig, creds *config.Credentials, logger *zap.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		cfg:    cfg,
		creds:  creds,
		logger: logger.With(zap.String("component", "doctor")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run 执行全部检查并生成报告。报告总会返回，error 只表示报告本身无法产出。
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{
		RunID:     "run_" + uuid.NewString(),
		Timestamp: start,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}

	r.logger.Info("starting diagnostics", zap.String("run_id", report.RunID))

	report.Checks = append(report.Checks, r.checkRuntime())
	report.Checks = append(report.Checks, r.checkCredentials()...)
	report.Checks = append(report.Checks, r.probeProviders(ctx)...)
	report.Checks = append(report.Checks, r.checkSamples())
	if r.store != nil {
		report.Checks = append(report.Checks, r.checkArtifactRoundTrip(ctx))
	}
	report.Checks = append(report.Checks, r.checkMockCredentials())

	report.Duration = time.Since(start)
	report.DurationS = report.Duration.Seconds()
	report.Finalize(r.creds.AnySet(), r.cfg.PassRatio)

	for _, c := range report.Checks {
		field := zap.String("detail", c.Detail)
		switch c.Status {
		case StatusOK:
			r.logger.Info("check passed", zap.String("check", c.Name), field)
		case StatusWarn:
			r.logger.Warn("check warning", zap.String("check", c.Name), field)
		default:
			r.logger.Error("check failed", zap.String("check", c.Name), field)
		}
	}
	r.logger.Info("diagnostics completed",
		zap.String("status", string(report.Status)),
		zap.Int("passed", report.Passed),
		zap.Int("total", report.Total),
		zap.Duration("duration", report.Duration),
	)

	if err := r.persist(ctx, report); err != nil {
		return report, err
	}
	return report, nil
}

// checkRuntime 记录运行环境，永远通过
func (r *Runner) checkRuntime() CheckResult {
	return CheckResult{
		Name:   "runtime",
		Status: StatusOK,
		Detail: fmt.Sprintf("%s on %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH),
	}
}

// checkCredentials 每个密钥一项，只报告设置情况与长度
func (r *Runner) checkCredentials() []CheckResult {
	results := make([]CheckResult, 0, 3)
	for _, s := range r.creds.Statuses() {
		if s.Set {
			results = append(results, CheckResult{
				Name:   "credential:" + s.Name,
				Status: StatusOK,
				Detail: fmt.Sprintf("set (%d chars)", s.Length),
			})
		} else {
			results = append(results, CheckResult{
				Name:   "credential:" + s.Name,
				Status: StatusWarn,
				Detail: "not set",
			})
		}
	}
	return results
}

// probeProviders 并发探测全部上游，每个探测有独立超时。
// 配了缓存时近期结果直接复用，避免对上游重复打点。
func (r *Runner) probeProviders(ctx context.Context) []CheckResult {
	if len(r.probers) == 0 {
		return nil
	}

	var mu sync.Mutex
	results := make([]CheckResult, 0, len(r.probers))

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range r.probers {
		p := p
		g.Go(func() error {
			result := r.probeOne(gctx, p)
			mu.Lock()
			results = append(results, result)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // goroutine 不返回错误，失败体现在单项结果里

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return results
}

func (r *Runner) probeOne(ctx context.Context, p Prober) CheckResult {
	name := "provider:" + p.Name()

	if r.cache != nil {
		if cached, err := r.cache.GetProbe(ctx, p.Name()); err == nil {
			status := StatusFail
			if cached.Healthy {
				status = StatusOK
			}
			return CheckResult{
				Name:      name,
				Status:    status,
				Detail:    fmt.Sprintf("cached result from %s", cached.CheckedAt.Format(time.RFC3339)),
				LatencyMS: cached.LatencyMS,
			}
		} else if !errors.Is(err, cache.ErrMiss) {
			r.logger.Warn("probe cache lookup failed", zap.String("provider", p.Name()), zap.Error(err))
		}
	}

	timeout := r.cfg.ProbeTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	health, err := p.HealthCheck(probeCtx)

	var latency time.Duration
	healthy := err == nil && health != nil && health.Healthy
	if health != nil {
		latency = health.Latency
	}

	if r.metrics != nil {
		r.metrics.RecordProbe(p.Name(), healthy, latency)
	}
	if r.cache != nil {
		if cerr := r.cache.SetProbe(ctx, p.Name(), cache.ProbeEntry{
			Healthy:   healthy,
			LatencyMS: latency.Milliseconds(),
			CheckedAt: time.Now(),
		}); cerr != nil {
			r.logger.Warn("probe cache store failed", zap.String("provider", p.Name()), zap.Error(cerr))
		}
	}

	if !healthy {
		detail := "unhealthy"
		if err != nil {
			detail = err.Error()
		}
		return CheckResult{
			Name:      name,
			Status:    StatusFail,
			Detail:    detail,
			Latency:   latency,
			LatencyMS: latency.Milliseconds(),
		}
	}

	return CheckResult{
		Name:      name,
		Status:    StatusOK,
		Detail:    fmt.Sprintf("reachable in %s", latency.Round(time.Millisecond)),
		Latency:   latency,
		LatencyMS: latency.Milliseconds(),
	}
}

// checkSamples 样例目录存在且至少有一张图片
func (r *Runner) checkSamples() CheckResult {
	const name = "samples"
	if r.cfg.SampleDir == "" {
		return CheckResult{Name: name, Status: StatusWarn, Detail: "no sample directory configured"}
	}

	entries, err := os.ReadDir(r.cfg.SampleDir)
	if err != nil {
		return CheckResult{Name: name, Status: StatusWarn, Detail: fmt.Sprintf("sample directory unavailable: %v", err)}
	}

	images := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png", ".bmp", ".webp", ".gif":
			images++
		}
	}
	if images == 0 {
		return CheckResult{Name: name, Status: StatusWarn, Detail: "no sample images found"}
	}
	return CheckResult{Name: name, Status: StatusOK, Detail: fmt.Sprintf("%d sample image(s)", images)}
}

// checkArtifactRoundTrip 写一个小产物再读回，校验存储层可用
func (r *Runner) checkArtifactRoundTrip(ctx context.Context) CheckResult {
	const name = "artifact_store"
	payload := []byte(`{"probe": true}`)

	artifact, err := r.store.Create(ctx, "doctor_probe.json", artifacts.TypeData,
		bytes.NewReader(payload), artifacts.WithTags("doctor", "probe"))
	if err != nil {
		return CheckResult{Name: name, Status: StatusFail, Detail: fmt.Sprintf("write failed: %v", err)}
	}
	defer r.store.Delete(ctx, artifact.ID)

	meta, reader, err := r.store.Open(ctx, artifact.ID)
	if err != nil {
		return CheckResult{Name: name, Status: StatusFail, Detail: fmt.Sprintf("read failed: %v", err)}
	}
	reader.Close()

	if meta.Size != int64(len(payload)) {
		return CheckResult{Name: name, Status: StatusFail, Detail: "round trip size mismatch"}
	}
	return CheckResult{Name: name, Status: StatusOK, Detail: "write/read round trip ok"}
}

// checkMockCredentials 用临时密钥走一遍加载链路，验证环境变量加载可用。
// 原有环境变量先备份，结束后原样恢复（包括未设置状态）。
func (r *Runner) checkMockCredentials() CheckResult {
	const name = "mock_credentials"

	backup := make(map[string]*string, 3)
	for _, key := range config.RequiredKeys() {
		if v, ok := os.LookupEnv(key); ok {
			val := v
			backup[key] = &val
		} else {
			backup[key] = nil
		}
	}
	defer func() {
		for key, v := range backup {
			if v == nil {
				os.Unsetenv(key)
			} else {
				os.Setenv(key, *v)
			}
		}
	}()

	for _, key := range config.RequiredKeys() {
		os.Setenv(key, "mock_"+strings.ToLower(key))
	}

	creds, err := config.LoadCredentials("")
	if err != nil {
		return CheckResult{Name: name, Status: StatusFail, Detail: fmt.Sprintf("load failed: %v", err)}
	}
	if !creds.AnySet() || len(creds.Missing()) != 0 {
		return CheckResult{Name: name, Status: StatusFail, Detail: "mock keys not visible through loader"}
	}
	return CheckResult{Name: name, Status: StatusOK, Detail: "credential loading verified with mock keys"}
}

// persist 落盘报告：JSON 文件、产物登记与运行历史
func (r *Runner) persist(ctx context.Context, report *Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if r.cfg.ReportFile != "" {
		if err := os.WriteFile(r.cfg.ReportFile, data, 0o644); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		r.logger.Info("report written", zap.String("path", r.cfg.ReportFile))
	}

	if r.store != nil {
		reportName := "doctor_report.json"
		if r.cfg.ReportFile != "" {
			reportName = filepath.Base(r.cfg.ReportFile)
		}
		if _, err := r.store.Create(ctx, reportName, artifacts.TypeReport,
			bytes.NewReader(data),
			artifacts.WithMimeType("application/json"),
			artifacts.WithRunID(report.RunID),
			artifacts.WithTags("doctor"),
		); err != nil {
			r.logger.Warn("failed to register report artifact", zap.Error(err))
		}
	}

	if r.history != nil {
		if err := r.history.Record(ctx, report); err != nil {
			r.logger.Warn("failed to record run history", zap.Error(err))
		}
	}
	return nil
}
