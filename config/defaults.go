// =============================================================================
// 📦 VisionKit 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Providers: DefaultProvidersConfig(),
		Doctor:    DefaultDoctorConfig(),
		Artifacts: DefaultArtifactsConfig(),
		Cache:     DefaultCacheConfig(),
		History:   DefaultHistoryConfig(),
		Log:       DefaultLogConfig(),
	}
}

// DefaultProvidersConfig 返回默认上游客户端配置
func DefaultProvidersConfig() ProvidersConfig {
	return ProvidersConfig{
		VisionAgentBaseURL: "https://api.landing.ai",
		AnthropicBaseURL:   "https://api.anthropic.com",
		GeminiBaseURL:      "https://generativelanguage.googleapis.com",
		Timeout:            60 * time.Second,
		RateLimitRPS:       0,
	}
}

// DefaultDoctorConfig 返回默认诊断配置
func DefaultDoctorConfig() DoctorConfig {
	return DoctorConfig{
		ProbeTimeout: 10 * time.Second,
		SampleDir:    "quickstart",
		PassRatio:    0.7,
		ReportFile:   "vision_agent_test_results.json",
	}
}

// DefaultArtifactsConfig 返回默认产物存储配置
func DefaultArtifactsConfig() ArtifactsConfig {
	return ArtifactsConfig{
		BasePath:   "./artifacts",
		MaxSize:    100 * 1024 * 1024, // 100MB
		DefaultTTL: 0,
	}
}

// DefaultCacheConfig 返回默认缓存配置
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:  false,
		Addr:     "localhost:6379",
		Password: "",
		DB:       0,
		ProbeTTL: 5 * time.Minute,
	}
}

// DefaultHistoryConfig 返回默认诊断历史配置
func DefaultHistoryConfig() HistoryConfig {
	return HistoryConfig{
		Enabled: true,
		Path:    "./visionkit.db",
		MaxRuns: 100,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:       "info",
		Format:      "console",
		OutputPaths: []string{"stdout"},
	}
}
