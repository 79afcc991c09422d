// =============================================================================
// 💾 探测结果缓存
// =============================================================================
// 连通性探测打的是真实上游，短时间内反复执行 doctor 没必要重复打点。
// 探测结果以 JSON 存入 Redis，带 TTL，未命中返回 ErrMiss。
// =============================================================================
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrMiss 缓存未命中
var ErrMiss = errors.New("cache miss")

const probeKeyPrefix = "visionkit:probe:"

// ProbeEntry 一次探测的缓存记录
type ProbeEntry struct {
	Healthy   bool      `json:"healthy"`
	LatencyMS int64     `json:"latency_ms"`
	CheckedAt time.Time `json:"checked_at"`
}

// Config 缓存配置
type Config struct {
	Addr     string        `yaml:"addr" json:"addr"`
	Password string        `yaml:"password" json:"password"`
	DB       int           `yaml:"db" json:"db"`
	ProbeTTL time.Duration `yaml:"probe_ttl" json:"probe_ttl"`
}

// DefaultConfig 返回默认缓存配置
func DefaultConfig() Config {
	return Config{
		Addr:     "localhost:6379",
		ProbeTTL: 5 * time.Minute,
	}
}

// Manager 探测结果缓存管理器
type Manager struct {
	redis  *redis.Client
	config Config
	logger *zap.Logger
}

// NewManager 创建缓存管理器并验证连接
func NewManager(config Config, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("probe cache initialized", zap.String("addr", config.Addr))

	return &Manager{
		redis:  client,
		config: config,
		logger: logger.With(zap.String("component", "cache")),
	}, nil
}

// GetProbe 读取某个 provider 的缓存探测结果
func (m *Manager) GetProbe(ctx context.Context, provider string) (*ProbeEntry, error) {
	val, err := m.redis.Get(ctx, probeKeyPrefix+provider).Result()
	if err == redis.Nil {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache get failed: %w", err)
	}

	var entry ProbeEntry
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal probe entry: %w", err)
	}
	return &entry, nil
}

// SetProbe 写入某个 provider 的探测结果，带 TTL
func (m *Manager) SetProbe(ctx context.Context, provider string, entry ProbeEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal probe entry: %w", err)
	}

	ttl := m.config.ProbeTTL
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	if err := m.redis.Set(ctx, probeKeyPrefix+provider, data, ttl).Err(); err != nil {
		return fmt.Errorf("cache set failed: %w", err)
	}
	return nil
}

// Invalidate 清掉指定 provider 的缓存结果
func (m *Manager) Invalidate(ctx context.Context, providers ...string) error {
	if len(providers) == 0 {
		return nil
	}
	keys := make([]string, 0, len(providers))
	for _, p := range providers {
		keys = append(keys, probeKeyPrefix+p)
	}
	if err := m.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache delete failed: %w", err)
	}
	return nil
}

// Ping 检查 Redis 连接
func (m *Manager) Ping(ctx context.Context) error {
	return m.redis.Ping(ctx).Err()
}

// Close 关闭缓存连接
func (m *Manager) Close() error {
	return m.redis.Close()
}
