package visionagent

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/visionkit/llm"
	"github.com/BaSui01/visionkit/providers"
	"github.com/BaSui01/visionkit/vision"
)

// VisionAgentProvider 实现 Vision Agent 平台客户端。
// 平台提供两类能力：
// 1. 代码生成——针对 prompt + 图片生成可执行的视觉处理代码与配套测试
// 2. 工具调用——如 countgd 开放词汇目标检测
// 认证使用 Authorization: Basic <api key>。
type VisionAgentProvider struct {
	cfg     providers.VisionAgentConfig
	client  *http.Client
	logger  *zap.Logger
	limiter *rate.Limiter
}

// CodeContext 是代码生成的返回产物：主代码与配套测试
type CodeContext struct {
	Code string `json:"code"`
	Test string `json:"test"`
}

// NewVisionAgentProvider 创建 Vision Agent 客户端
func NewVisionAgentProvider(cfg providers.VisionAgentConfig, logger *zap.Logger) *VisionAgentProvider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second // 代码生成链路较长
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.landing.ai"
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), 1)
	}

	return &VisionAgentProvider{
		cfg: cfg,
		client: &http.Client{
			Timeout: timeout,
		},
		logger:  logger,
		limiter: limiter,
	}
}

func (p *VisionAgentProvider) Name() string { return "vision-agent" }

func (p *VisionAgentProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	endpoint := fmt.Sprintf("%s/v1/health", strings.TrimRight(p.cfg.BaseURL, "/"))
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	p.buildHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return &llm.HealthStatus{Healthy: false, Latency: latency}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := readVAErrMsg(resp.Body)
		return &llm.HealthStatus{Healthy: false, Latency: latency}, fmt.Errorf("vision agent health check failed: status=%d msg=%s", resp.StatusCode, msg)
	}
	return &llm.HealthStatus{Healthy: true, Latency: latency}, nil
}

// 代码生成请求/响应
type codegenMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Media   []string `json:"media,omitempty"` // base64 编码的图片
}

type codegenRequest struct {
	Model    string           `json:"model,omitempty"`
	Messages []codegenMessage `json:"messages"`
}

type codegenResponse struct {
	Code string `json:"code"`
	Test string `json:"test"`
}

// 检测工具请求/响应
type detectRequest struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model"`
	Image  string `json:"image"` // base64 编码
}

type wireDetection struct {
	Label string     `json:"label"`
	Score float64    `json:"score"`
	BBox  [4]float64 `json:"bounding_box"`
}

type detectResponse struct {
	Data []wireDetection `json:"data"`
}

type vaErrorResp struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

func (p *VisionAgentProvider) buildHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Basic "+p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}

func (p *VisionAgentProvider) wait(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}

// GenerateCode 针对 prompt + 图片生成视觉处理代码。
// Media 路径读取后 base64 内联；密钥缺失在上游以 401 报告。
func (p *VisionAgentProvider) GenerateCode(ctx context.Context, messages []llm.Message) (*CodeContext, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}

	wireMsgs := make([]codegenMessage, 0, len(messages))
	for _, m := range messages {
		wm := codegenMessage{
			Role:    string(m.Role),
			Content: m.Content,
		}
		for _, media := range m.Media {
			encoded, err := encodeImage(media)
			if err != nil {
				return nil, &llm.Error{
					Code:       llm.ErrInvalidRequest,
					Message:    fmt.Sprintf("failed to attach media %s: %v", media, err),
					HTTPStatus: http.StatusBadRequest,
					Provider:   p.Name(),
				}
			}
			wm.Media = append(wm.Media, encoded)
		}
		wireMsgs = append(wireMsgs, wm)
	}

	body := codegenRequest{
		Model:    p.cfg.Model,
		Messages: wireMsgs,
	}

	payload, _ := json.Marshal(body)
	endpoint := fmt.Sprintf("%s/v1/agent/code", strings.TrimRight(p.cfg.BaseURL, "/"))

	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	p.buildHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &llm.Error{
			Code:       llm.ErrUpstreamError,
			Message:    err.Error(),
			HTTPStatus: http.StatusBadGateway,
			Retryable:  true,
			Provider:   p.Name(),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := readVAErrMsg(resp.Body)
		return nil, mapVAError(resp.StatusCode, msg, p.Name())
	}

	var codeResp codegenResponse
	if err := json.NewDecoder(resp.Body).Decode(&codeResp); err != nil {
		return nil, &llm.Error{
			Code:       llm.ErrUpstreamError,
			Message:    err.Error(),
			HTTPStatus: http.StatusBadGateway,
			Retryable:  true,
			Provider:   p.Name(),
		}
	}

	return &CodeContext{Code: codeResp.Code, Test: codeResp.Test}, nil
}

// DetectObjects 调用 countgd 开放词汇检测工具。
// 返回的坐标是像素空间的 [x1, y1, x2, y2]。
func (p *VisionAgentProvider) DetectObjects(ctx context.Context, prompt, imagePath string) ([]vision.Detection, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}

	encoded, err := encodeImage(imagePath)
	if err != nil {
		return nil, &llm.Error{
			Code:       llm.ErrInvalidRequest,
			Message:    fmt.Sprintf("failed to read image %s: %v", imagePath, err),
			HTTPStatus: http.StatusBadRequest,
			Provider:   p.Name(),
		}
	}

	body := detectRequest{
		Prompt: prompt,
		Model:  "countgd",
		Image:  encoded,
	}

	payload, _ := json.Marshal(body)
	endpoint := fmt.Sprintf("%s/v1/tools/text-to-object-detection", strings.TrimRight(p.cfg.BaseURL, "/"))

	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	p.buildHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &llm.Error{
			Code:       llm.ErrUpstreamError,
			Message:    err.Error(),
			HTTPStatus: http.StatusBadGateway,
			Retryable:  true,
			Provider:   p.Name(),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := readVAErrMsg(resp.Body)
		return nil, mapVAError(resp.StatusCode, msg, p.Name())
	}

	var detectResp detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&detectResp); err != nil {
		return nil, &llm.Error{
			Code:       llm.ErrUpstreamError,
			Message:    err.Error(),
			HTTPStatus: http.StatusBadGateway,
			Retryable:  true,
			Provider:   p.Name(),
		}
	}

	detections := make([]vision.Detection, 0, len(detectResp.Data))
	for _, d := range detectResp.Data {
		detections = append(detections, vision.Detection{
			Label: d.Label,
			Score: d.Score,
			Box: vision.Box{
				X1: int(d.BBox[0]),
				Y1: int(d.BBox[1]),
				X2: int(d.BBox[2]),
				Y2: int(d.BBox[3]),
			},
		})
	}

	return detections, nil
}

func encodeImage(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".bmp", ".webp":
	default:
		return "", fmt.Errorf("unsupported image format %q", ext)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func readVAErrMsg(body io.Reader) string {
	data, _ := io.ReadAll(body)
	var errResp vaErrorResp
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		return fmt.Sprintf("%s (code: %s)", errResp.Error.Message, errResp.Error.Code)
	}
	return string(data)
}

func mapVAError(status int, msg string, provider string) *llm.Error {
	switch status {
	case http.StatusUnauthorized:
		return &llm.Error{Code: llm.ErrUnauthorized, Message: msg, HTTPStatus: status, Provider: provider}
	case http.StatusForbidden:
		return &llm.Error{Code: llm.ErrForbidden, Message: msg, HTTPStatus: status, Provider: provider}
	case http.StatusTooManyRequests:
		return &llm.Error{Code: llm.ErrRateLimited, Message: msg, HTTPStatus: status, Retryable: true, Provider: provider}
	case http.StatusBadRequest:
		if strings.Contains(msg, "credit") || strings.Contains(msg, "quota") {
			return &llm.Error{Code: llm.ErrQuotaExceeded, Message: msg, HTTPStatus: status, Provider: provider}
		}
		return &llm.Error{Code: llm.ErrInvalidRequest, Message: msg, HTTPStatus: status, Provider: provider}
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return &llm.Error{Code: llm.ErrUpstreamError, Message: msg, HTTPStatus: status, Retryable: true, Provider: provider}
	default:
		return &llm.Error{Code: llm.ErrUpstreamError, Message: msg, HTTPStatus: status, Retryable: status >= 500, Provider: provider}
	}
}
