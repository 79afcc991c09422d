// =============================================================================
// 📦 VisionKit 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("visionkit.yaml").
//	    WithEnvPrefix("VISIONKIT").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 VisionKit 的完整配置结构
type Config struct {
	// Providers 上游 API 客户端配置
	Providers ProvidersConfig `yaml:"providers" env:"PROVIDERS"`

	// Doctor 诊断套件配置
	Doctor DoctorConfig `yaml:"doctor" env:"DOCTOR"`

	// Artifacts 产物存储配置
	Artifacts ArtifactsConfig `yaml:"artifacts" env:"ARTIFACTS"`

	// Cache 探活结果缓存配置
	Cache CacheConfig `yaml:"cache" env:"CACHE"`

	// History 诊断历史存储配置
	History HistoryConfig `yaml:"history" env:"HISTORY"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`
}

// ProvidersConfig 上游客户端配置
type ProvidersConfig struct {
	// VisionAgent 平台地址（密钥走 VISION_AGENT_API_KEY）
	VisionAgentBaseURL string `yaml:"vision_agent_base_url" env:"VISION_AGENT_BASE_URL"`
	// Anthropic 地址（密钥走 ANTHROPIC_API_KEY）
	AnthropicBaseURL string `yaml:"anthropic_base_url" env:"ANTHROPIC_BASE_URL"`
	// Gemini 地址（密钥走 GOOGLE_API_KEY）
	GeminiBaseURL string `yaml:"gemini_base_url" env:"GEMINI_BASE_URL"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 客户端限流（每秒请求数，0 表示不限）
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
}

// DoctorConfig 诊断套件配置
type DoctorConfig struct {
	// 单次探活超时
	ProbeTimeout time.Duration `yaml:"probe_timeout" env:"PROBE_TIMEOUT"`
	// 样例资源目录
	SampleDir string `yaml:"sample_dir" env:"SAMPLE_DIR"`
	// 判定 ready 所需的检查通过率
	PassRatio float64 `yaml:"pass_ratio" env:"PASS_RATIO"`
	// 报告输出文件名
	ReportFile string `yaml:"report_file" env:"REPORT_FILE"`
}

// ArtifactsConfig 产物存储配置
type ArtifactsConfig struct {
	// 存储根目录
	BasePath string `yaml:"base_path" env:"BASE_PATH"`
	// 单个产物大小上限
	MaxSize int64 `yaml:"max_size" env:"MAX_SIZE"`
	// 默认保留时间（0 表示永久）
	DefaultTTL time.Duration `yaml:"default_ttl" env:"DEFAULT_TTL"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	// 是否启用（未配置 Redis 时自动降级为直连探活）
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// Redis 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 探活结果保留时间
	ProbeTTL time.Duration `yaml:"probe_ttl" env:"PROBE_TTL"`
}

// HistoryConfig 诊断历史配置
type HistoryConfig struct {
	// 是否记录历史
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// SQLite 文件路径
	Path string `yaml:"path" env:"PATH"`
	// 保留的最大运行记录数
	MaxRuns int `yaml:"max_runs" env:"MAX_RUNS"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "VISIONKIT",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 4. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		// 获取 env tag
		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		// 如果是结构体，递归处理
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		// 获取环境变量值
		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		// 设置字段值
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Doctor.ProbeTimeout <= 0 {
		errs = append(errs, "probe_timeout must be positive")
	}
	if c.Doctor.PassRatio <= 0 || c.Doctor.PassRatio > 1 {
		errs = append(errs, "pass_ratio must be in (0, 1]")
	}
	if c.Artifacts.BasePath == "" {
		errs = append(errs, "artifacts base_path must not be empty")
	}
	if c.Cache.Enabled && c.Cache.Addr == "" {
		errs = append(errs, "cache enabled but addr is empty")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
