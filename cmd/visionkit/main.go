// =============================================================================
// VisionKit 主入口
// =============================================================================
// Vision Agent 平台的自检与示例驱动工具
//
// 使用方法:
//
//	visionkit doctor                      # 环境自检，生成 JSON 报告
//	visionkit codegen --prompt "..."      # 生成视觉处理代码
//	visionkit detect --prompt "..."       # 目标检测并输出标注图
//	visionkit keys                        # 查看 API 密钥配置情况
//	visionkit version                     # 显示版本信息
// =============================================================================
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/visionkit/agent"
	"github.com/BaSui01/visionkit/artifacts"
	"github.com/BaSui01/visionkit/config"
	"github.com/BaSui01/visionkit/diagnose"
	"github.com/BaSui01/visionkit/internal/cache"
	"github.com/BaSui01/visionkit/internal/metrics"
	"github.com/BaSui01/visionkit/providers"
	claude "github.com/BaSui01/visionkit/providers/anthropic"
	"github.com/BaSui01/visionkit/providers/gemini"
	"github.com/BaSui01/visionkit/providers/visionagent"
	"github.com/BaSui01/visionkit/vision"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "doctor":
		runDoctor(os.Args[2:])
	case "codegen":
		runCodegen(os.Args[2:])
	case "detect":
		runDetect(os.Args[2:])
	case "keys":
		runKeys(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// =============================================================================
// 🧰 公共初始化
// =============================================================================

type env struct {
	cfg    *config.Config
	creds  *config.Credentials
	logger *zap.Logger
}

// setup 加载配置与凭证并初始化日志，所有子命令共用
func setup(configPath, envFile string) *env {
	loader := config.NewLoader()
	if configPath != "" {
		loader = loader.WithConfigPath(configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	creds, err := config.LoadCredentials(envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load credentials: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)
	if creds.EnvFile != "" {
		logger.Info("environment loaded", zap.String("env_file", creds.EnvFile))
	}

	return &env{cfg: cfg, creds: creds, logger: logger}
}

func (e *env) visionAgent() *visionagent.VisionAgentProvider {
	return visionagent.NewVisionAgentProvider(providers.VisionAgentConfig{
		APIKey:       e.creds.VisionAgentKey,
		BaseURL:      e.cfg.Providers.VisionAgentBaseURL,
		Timeout:      e.cfg.Providers.Timeout,
		RateLimitRPS: e.cfg.Providers.RateLimitRPS,
	}, e.logger)
}

func (e *env) artifactStore() *artifacts.Store {
	store, err := artifacts.NewStore(artifacts.Config{
		BasePath:   e.cfg.Artifacts.BasePath,
		MaxSize:    e.cfg.Artifacts.MaxSize,
		DefaultTTL: e.cfg.Artifacts.DefaultTTL,
	}, e.logger)
	if err != nil {
		e.logger.Warn("artifact store unavailable", zap.Error(err))
		return nil
	}
	return store
}

// =============================================================================
// 🩺 doctor 命令
// =============================================================================

func runDoctor(args []string) {
	fs := flag.NewFlagSet("doctor", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	envFile := fs.String("env-file", "", "Path to .env file (default .env)")
	timeout := fs.Duration("timeout", 2*time.Minute, "Overall diagnostics timeout")
	asJSON := fs.Bool("json", false, "Print the report as JSON instead of text")
	fs.Parse(args)

	e := setup(*configPath, *envFile)
	defer e.logger.Sync()

	opts := []diagnose.Option{
		diagnose.WithProbers(
			e.visionAgent(),
			claude.NewClaudeProvider(providers.ClaudeConfig{
				APIKey:  e.creds.AnthropicKey,
				BaseURL: e.cfg.Providers.AnthropicBaseURL,
				Timeout: e.cfg.Providers.Timeout,
			}, e.logger),
			gemini.NewGeminiProvider(providers.GeminiConfig{
				APIKey:  e.creds.GoogleKey,
				BaseURL: e.cfg.Providers.GeminiBaseURL,
				Timeout: e.cfg.Providers.Timeout,
			}, e.logger),
		),
		diagnose.WithMetrics(metrics.NewCollector("visionkit", nil, e.logger)),
	}

	if store := e.artifactStore(); store != nil {
		opts = append(opts, diagnose.WithArtifactStore(store))
	}

	if e.cfg.Cache.Enabled {
		cacheMgr, err := cache.NewManager(cache.Config{
			Addr:     e.cfg.Cache.Addr,
			Password: e.cfg.Cache.Password,
			DB:       e.cfg.Cache.DB,
			ProbeTTL: e.cfg.Cache.ProbeTTL,
		}, e.logger)
		if err != nil {
			e.logger.Warn("probe cache unavailable, probing directly", zap.Error(err))
		} else {
			defer cacheMgr.Close()
			opts = append(opts, diagnose.WithProbeCache(cacheMgr))
		}
	}

	if e.cfg.History.Enabled {
		history, err := diagnose.NewHistory(e.cfg.History.Path, e.cfg.History.MaxRuns, e.logger)
		if err != nil {
			e.logger.Warn("run history unavailable", zap.Error(err))
		} else {
			defer history.Close()
			opts = append(opts, diagnose.WithHistory(history))
		}
	}

	runner := diagnose.NewRunner(e.cfg.Doctor, e.creds, e.logger, opts...)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	report, err := runner.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Diagnostics failed: %v\n", err)
		os.Exit(1)
	}

	if *asJSON {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render report: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(data))
	} else {
		printReport(report)
	}
	os.Exit(report.ExitCode())
}

func printReport(report *diagnose.Report) {
	fmt.Printf("\nDiagnostics for %s (%s)\n", report.GoVersion, report.Platform)
	for _, c := range report.Checks {
		marker := "✓"
		switch c.Status {
		case diagnose.StatusWarn:
			marker = "!"
		case diagnose.StatusFail:
			marker = "✗"
		}
		fmt.Printf("  %s %-40s %s\n", marker, c.Name, c.Detail)
	}
	fmt.Printf("\n%d/%d checks passed (%.0f%%)\n", report.Passed, report.Total, report.PassRatio*100)

	switch report.Status {
	case diagnose.StatusReady:
		fmt.Println("Status: ready — environment is fully configured")
	case diagnose.StatusNeedsAPIKeys:
		fmt.Println("Status: needs_api_keys — add API keys to your .env file to go live")
	default:
		fmt.Println("Status: needs_setup — fix the failing checks above and rerun")
	}
}

// =============================================================================
// 🧪 codegen 命令
// =============================================================================

func runCodegen(args []string) {
	fs := flag.NewFlagSet("codegen", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	envFile := fs.String("env-file", "", "Path to .env file (default .env)")
	prompt := fs.String("prompt", "", "What the generated code should do")
	image := fs.String("image", "", "Input image (absolute path or name in the sample directory)")
	out := fs.String("out", "generated_code.py", "Output file for the generated code")
	fs.Parse(args)

	if *prompt == "" || *image == "" {
		fmt.Fprintln(os.Stderr, "codegen requires --prompt and --image")
		fs.Usage()
		os.Exit(1)
	}

	e := setup(*configPath, *envFile)
	defer e.logger.Sync()

	if e.creds.VisionAgentKey == "" {
		fmt.Fprintf(os.Stderr, "%s is not set; add it to your .env file\n", config.EnvVisionAgentKey)
		os.Exit(1)
	}

	coder := agent.NewCoder(e.visionAgent(), e.artifactStore(), e.cfg.Doctor.SampleDir, e.logger).
		WithMetrics(metrics.NewCollector("visionkit", nil, e.logger))

	result, err := coder.Generate(context.Background(), *prompt, *image, *out)
	if err != nil {
		guidance := agent.ClassifyFailure(err)
		fmt.Fprintf(os.Stderr, "Code generation failed: %v\n", err)
		fmt.Fprintf(os.Stderr, "Hint: %s\n", guidance.Hint)
		os.Exit(1)
	}

	fmt.Printf("Generated code written to %s\n\n", result.OutPath)
	for _, line := range result.Preview {
		fmt.Println("  " + line)
	}
	if strings.Count(result.Context.Code, "\n")+1 > len(result.Preview) {
		fmt.Println("  ...")
	}
}

// =============================================================================
// 🔍 detect 命令
// =============================================================================

func runDetect(args []string) {
	fs := flag.NewFlagSet("detect", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	envFile := fs.String("env-file", "", "Path to .env file (default .env)")
	prompt := fs.String("prompt", "", "Objects to detect, e.g. \"flower\"")
	image := fs.String("image", "", "Input image (absolute path or name in the sample directory)")
	out := fs.String("out", "", "Output path for the annotated image (default: alongside input)")
	noMock := fs.Bool("no-mock", false, "Fail instead of falling back to mock detections")
	fs.Parse(args)

	if *prompt == "" || *image == "" {
		fmt.Fprintln(os.Stderr, "detect requires --prompt and --image")
		fs.Usage()
		os.Exit(1)
	}

	e := setup(*configPath, *envFile)
	defer e.logger.Sync()

	collector := metrics.NewCollector("visionkit", nil, e.logger)
	source := "live"

	va := e.visionAgent()
	var detector vision.Detector = vision.DetectFunc(va.DetectObjects)
	if !*noMock {
		detector = &vision.FallbackDetector{
			Primary:    detector,
			Fallback:   vision.MockDetector{},
			Logger:     e.logger,
			OnFallback: func() { source = "mock" },
		}
	}

	annotator := agent.NewAnnotator(detector, e.artifactStore(), e.cfg.Doctor.SampleDir, e.logger)

	start := time.Now()
	result, err := annotator.Run(context.Background(), *prompt, *image, *out)
	if err != nil {
		collector.RecordDetection(err, source, 0)
		fmt.Fprintf(os.Stderr, "Detection failed: %v\n", err)
		os.Exit(1)
	}
	collector.RecordDetection(nil, source, len(result.Detections))
	e.logger.Debug("detect finished",
		zap.String("source", source),
		zap.Duration("duration", time.Since(start)),
	)

	fmt.Printf("Found %d object(s):\n", len(result.Detections))
	for _, d := range result.Detections {
		fmt.Printf("  %-20s %.2f  %s\n", d.Label, d.Score, d.Box.String())
	}
	fmt.Printf("Annotated image saved to %s\n", result.OutPath)
}

// =============================================================================
// 🔑 keys 命令
// =============================================================================

func runKeys(args []string) {
	fs := flag.NewFlagSet("keys", flag.ExitOnError)
	envFile := fs.String("env-file", "", "Path to .env file (default .env)")
	fs.Parse(args)

	creds, err := config.LoadCredentials(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load credentials: %v\n", err)
		os.Exit(1)
	}

	if creds.EnvFile != "" {
		fmt.Printf("Loaded %s\n\n", creds.EnvFile)
	}

	// 只打印设置情况与长度，永远不打印密钥内容
	for _, s := range creds.Statuses() {
		if s.Set {
			fmt.Printf("  ✓ %-24s set (%d chars)\n", s.Name, s.Length)
		} else {
			fmt.Printf("  ✗ %-24s not set\n", s.Name)
		}
	}

	if !creds.AnySet() {
		fmt.Println("\nNo API keys configured. Copy .env.example to .env and fill in your keys.")
		os.Exit(1)
	}
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("VisionKit %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`VisionKit - Vision Agent setup and diagnostics toolkit

Usage:
  visionkit <command> [options]

Commands:
  doctor    Run environment diagnostics and write a JSON report
  codegen   Generate vision code for a prompt and image
  detect    Detect objects in an image and save an annotated copy
  keys      Show API key configuration status
  version   Show version information
  help      Show this help message

Common options:
  --config <path>     Path to configuration file (YAML)
  --env-file <path>   Path to .env file (default .env)

Examples:
  visionkit doctor
  visionkit keys
  visionkit codegen --prompt "Count the flowers" --image flower.jpg
  visionkit detect --prompt "flower" --image flower.jpg --out annotated.png
  visionkit version`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	// 解析日志级别
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	// 配置编码器
	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoding = "console"
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputPaths := cfg.OutputPaths
	if len(outputPaths) == 0 {
		outputPaths = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapConfig.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}
	return logger
}
