// Package agent 编排面向用户的两条示例链路：
// 代码生成（prompt + 图片 -> 可执行代码与测试）与目标检测（prompt + 图片 -> 标注图）。
// 它把 provider 调用、产物落盘与失败指引串成一次完整运行。
package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/visionkit/artifacts"
	"github.com/BaSui01/visionkit/internal/metrics"
	"github.com/BaSui01/visionkit/llm"
	"github.com/BaSui01/visionkit/providers/visionagent"
)

// CodeGenerator 抽象代码生成后端，便于测试替换
type CodeGenerator interface {
	GenerateCode(ctx context.Context, messages []llm.Message) (*visionagent.CodeContext, error)
}

// FailureKind 对失败做粗分类，决定给用户什么指引
type FailureKind string

const (
	FailureMissingKey FailureKind = "missing_key" // 未配置密钥
	FailureAuth       FailureKind = "auth"        // 密钥无效或无权限
	FailureNetwork    FailureKind = "network"     // 连不上或上游故障
	FailureOther      FailureKind = "other"
)

// Guidance 失败指引：分类 + 给用户的下一步建议
type Guidance struct {
	Kind FailureKind
	Hint string
}

// CodeResult 一次代码生成运行的结果
type CodeResult struct {
	Context  *visionagent.CodeContext
	Artifact *artifacts.Artifact
	OutPath  string
	Preview  []string
}

// previewLines 预览展示的最大行数
const previewLines = 10

// Coder 驱动一次完整的代码生成：校验输入、调用后端、落盘产物
type Coder struct {
	generator CodeGenerator
	store     *artifacts.Store
	logger    *zap.Logger
	sampleDir string
	metrics   *metrics.Collector
}

// NewCoder 创建代码生成驱动。store 可为 nil，此时只写本地文件不登记产物。
func NewCoder(generator CodeGenerator, store *artifacts.Store, sampleDir string, logger *zap.Logger) *Coder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coder{
		generator: generator,
		store:     store,
		logger:    logger.With(zap.String("component", "coder")),
		sampleDir: sampleDir,
	}
}

// WithMetrics 启用生成指标上报，返回自身便于链式调用
func (c *Coder) WithMetrics(m *metrics.Collector) *Coder {
	c.metrics = m
	return c
}

// Generate 执行一次代码生成并把结果写入 outPath。
// 产物内容为 代码 + "\n" + 测试，与平台返回的两段拼接。
func (c *Coder) Generate(ctx context.Context, prompt, image, outPath string) (*CodeResult, error) {
	imagePath, err := resolveImage(image, c.sampleDir)
	if err != nil {
		return nil, err
	}

	c.logger.Info("generating code",
		zap.String("prompt", prompt),
		zap.String("image", imagePath),
	)

	start := time.Now()
	codeCtx, err := c.generator.GenerateCode(ctx, []llm.Message{
		{
			Role:    llm.RoleUser,
			Content: prompt,
			Media:   []string{imagePath},
		},
	})
	if c.metrics != nil {
		c.metrics.RecordGeneration(err, time.Since(start))
	}
	if err != nil {
		guidance := ClassifyFailure(err)
		c.logger.Error("code generation failed",
			zap.String("kind", string(guidance.Kind)),
			zap.String("hint", guidance.Hint),
			zap.Error(err),
		)
		return nil, err
	}

	content := codeCtx.Code + "\n" + codeCtx.Test

	if outPath == "" {
		outPath = "generated_code.py"
	}
	if err := os.WriteFile(outPath, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write generated code: %w", err)
	}

	result := &CodeResult{
		Context: codeCtx,
		OutPath: outPath,
		Preview: previewOf(codeCtx.Code),
	}

	if c.store != nil {
		artifact, err := c.store.Create(ctx, filepath.Base(outPath), artifacts.TypeCode,
			strings.NewReader(content),
			artifacts.WithMimeType("text/x-python"),
			artifacts.WithMetadata(map[string]any{
				"prompt": prompt,
				"image":  imagePath,
			}),
		)
		if err != nil {
			// 产物登记失败不影响主流程，本地文件已写出
			c.logger.Warn("failed to register code artifact", zap.Error(err))
		} else {
			result.Artifact = artifact
		}
	}

	c.logger.Info("code generated",
		zap.String("out", outPath),
		zap.Int("code_bytes", len(codeCtx.Code)),
		zap.Int("test_bytes", len(codeCtx.Test)),
	)
	for _, line := range result.Preview {
		c.logger.Info("  " + line)
	}

	return result, nil
}

// previewOf 取代码前 previewLines 行用于展示
func previewOf(code string) []string {
	lines := strings.Split(code, "\n")
	if len(lines) > previewLines {
		lines = lines[:previewLines]
	}
	return lines
}

// ClassifyFailure 把错误归类并给出指引
func ClassifyFailure(err error) Guidance {
	var llmErr *llm.Error
	if errors.As(err, &llmErr) {
		switch llmErr.Code {
		case llm.ErrUnauthorized, llm.ErrForbidden:
			return Guidance{
				Kind: FailureAuth,
				Hint: "API key was rejected; verify VISION_AGENT_API_KEY in your .env file",
			}
		case llm.ErrUpstreamError, llm.ErrProviderUnavailable, llm.ErrUpstreamTimeout:
			return Guidance{
				Kind: FailureNetwork,
				Hint: "could not reach the platform; check your network connection and try again",
			}
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "api key") || strings.Contains(msg, "unauthorized"):
		return Guidance{
			Kind: FailureMissingKey,
			Hint: "set VISION_AGENT_API_KEY in your .env file before generating code",
		}
	case strings.Contains(msg, "connection") || strings.Contains(msg, "timeout") || strings.Contains(msg, "no such host"):
		return Guidance{
			Kind: FailureNetwork,
			Hint: "could not reach the platform; check your network connection and try again",
		}
	default:
		return Guidance{Kind: FailureOther, Hint: "run `visionkit doctor` to diagnose your setup"}
	}
}
