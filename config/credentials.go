// =============================================================================
// 🔑 VisionKit 凭证管理
// =============================================================================
// 三个上游服务的 API 密钥统一从进程环境读取，支持从 .env 文件预载。
// 密钥内容永远不落日志，只暴露是否设置与长度。
// =============================================================================
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// 识别的凭证环境变量
const (
	EnvVisionAgentKey = "VISION_AGENT_API_KEY"
	EnvAnthropicKey   = "ANTHROPIC_API_KEY"
	EnvGoogleKey      = "GOOGLE_API_KEY"
)

// RequiredKeys 返回全部识别的凭证键名（顺序固定，便于展示）
func RequiredKeys() []string {
	return []string{EnvVisionAgentKey, EnvAnthropicKey, EnvGoogleKey}
}

// KeyStatus 单个密钥的状态（不含密钥内容）
type KeyStatus struct {
	Name   string `json:"name"`
	Set    bool   `json:"set"`
	Length int    `json:"length,omitempty"`
}

// Credentials 当前进程可见的凭证视图
type Credentials struct {
	VisionAgentKey string
	AnthropicKey   string
	GoogleKey      string

	// EnvFile 为成功加载的 .env 路径，未找到时为空
	EnvFile string
}

// LoadCredentials 加载凭证：先尝试把 .env 注入环境（不覆盖已有变量），
// 再从环境读取三个密钥。.env 不存在不是错误。
func LoadCredentials(envFile string) (*Credentials, error) {
	creds := &Credentials{}

	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
		creds.EnvFile = envFile
	}

	creds.VisionAgentKey = os.Getenv(EnvVisionAgentKey)
	creds.AnthropicKey = os.Getenv(EnvAnthropicKey)
	creds.GoogleKey = os.Getenv(EnvGoogleKey)

	return creds, nil
}

// Statuses 返回每个密钥的设置情况
func (c *Credentials) Statuses() []KeyStatus {
	values := map[string]string{
		EnvVisionAgentKey: c.VisionAgentKey,
		EnvAnthropicKey:   c.AnthropicKey,
		EnvGoogleKey:      c.GoogleKey,
	}

	statuses := make([]KeyStatus, 0, len(values))
	for _, name := range RequiredKeys() {
		v := values[name]
		statuses = append(statuses, KeyStatus{
			Name:   name,
			Set:    v != "",
			Length: len(v),
		})
	}
	return statuses
}

// AnySet 至少有一个密钥已设置
func (c *Credentials) AnySet() bool {
	return c.VisionAgentKey != "" || c.AnthropicKey != "" || c.GoogleKey != ""
}

// Missing 返回未设置的密钥名
func (c *Credentials) Missing() []string {
	var missing []string
	for _, s := range c.Statuses() {
		if !s.Set {
			missing = append(missing, s.Name)
		}
	}
	return missing
}
