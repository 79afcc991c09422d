package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/visionkit/llm"
	"github.com/BaSui01/visionkit/providers"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *GeminiProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewGeminiProvider(providers.GeminiConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
	}, zap.NewNop())
}

func TestCompletion(t *testing.T) {
	var gotBody geminiRequest
	var gotKey string

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-goog-api-key")
		data, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(data, &gotBody))

		json.NewEncoder(w).Encode(geminiResponse{
			ResponseID: "resp-1",
			Candidates: []geminiCandidate{{
				Content: geminiContent{
					Role:  "model",
					Parts: []geminiPart{{Text: "two flowers"}},
				},
				FinishReason: "STOP",
			}},
			UsageMetadata: &geminiUsageMetadata{
				PromptTokenCount:     10,
				CandidatesTokenCount: 3,
				TotalTokenCount:      13,
			},
		})
	})

	resp, err := p.Completion(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "you count things"},
			{Role: llm.RoleUser, Content: "how many flowers?"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "test-key", gotKey)
	require.NotNil(t, gotBody.SystemInstruction)
	assert.Equal(t, "you count things", gotBody.SystemInstruction.Parts[0].Text)
	require.Len(t, gotBody.Contents, 1)
	assert.Equal(t, "user", gotBody.Contents[0].Role)

	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "two flowers", resp.Choices[0].Message.Content)
	assert.Equal(t, 13, resp.Usage.TotalTokens)
	assert.Equal(t, "gemini", resp.Provider)
}

func TestCompletionNormalizesFunctionCallArgs(t *testing.T) {
	var gotBody geminiRequest

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(data, &gotBody))
		json.NewEncoder(w).Encode(geminiResponse{})
	})

	// 参数是 JSON 字符串 + 相对 path，出站前必须改写
	_, err := p.Completion(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{
			{
				Role: llm.RoleAssistant,
				ToolCalls: []llm.ToolCall{{
					Name:      "load_image",
					Arguments: json.RawMessage(`{"path": "images/flower.jpg", "scale": 2}`),
				}},
			},
		},
	})
	require.NoError(t, err)

	require.Len(t, gotBody.Contents, 1)
	require.Len(t, gotBody.Contents[0].Parts, 1)
	fc := gotBody.Contents[0].Parts[0].FunctionCall
	require.NotNil(t, fc)
	assert.Equal(t, "load_image", fc.Name)

	path, ok := fc.Args["path"].(string)
	require.True(t, ok)
	assert.True(t, filepath.IsAbs(path))
	assert.Equal(t, float64(2), fc.Args["scale"])
}

func TestCompletionRejectsInvalidFunctionCallArgs(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request must not reach upstream")
	})

	_, err := p.Completion(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{
			{
				Role: llm.RoleAssistant,
				ToolCalls: []llm.ToolCall{{
					Name:      "load_image",
					Arguments: json.RawMessage(`{"broken": `),
				}},
			},
		},
	})
	require.Error(t, err)

	var llmErr *llm.Error
	require.True(t, errors.As(err, &llmErr))
	assert.Equal(t, llm.ErrToolValidation, llmErr.Code)
}

func TestCompletionAssistantRoleBecomesModel(t *testing.T) {
	var gotBody geminiRequest

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(data, &gotBody))
		json.NewEncoder(w).Encode(geminiResponse{})
	})

	_, err := p.Completion(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "hi"},
			{Role: llm.RoleAssistant, Content: "hello"},
		},
	})
	require.NoError(t, err)

	require.Len(t, gotBody.Contents, 2)
	assert.Equal(t, "model", gotBody.Contents[1].Role)
}

func TestCompletionErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		message  string
		wantCode llm.ErrorCode
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, message: "bad key", wantCode: llm.ErrUnauthorized},
		{name: "rate limited", status: http.StatusTooManyRequests, message: "slow down", wantCode: llm.ErrRateLimited},
		{name: "quota", status: http.StatusBadRequest, message: "quota exceeded", wantCode: llm.ErrQuotaExceeded},
		{name: "bad request", status: http.StatusBadRequest, message: "malformed", wantCode: llm.ErrInvalidRequest},
		{name: "unavailable", status: http.StatusServiceUnavailable, message: "down", wantCode: llm.ErrUpstreamError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]any{"code": tt.status, "message": tt.message},
				})
			})

			_, err := p.Completion(context.Background(), &llm.ChatRequest{
				Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
			})
			require.Error(t, err)

			var llmErr *llm.Error
			require.True(t, errors.As(err, &llmErr))
			assert.Equal(t, tt.wantCode, llmErr.Code)
			assert.Equal(t, tt.status, llmErr.HTTPStatus)
		})
	}
}

func TestHealthCheck(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})

	status, err := p.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Healthy)
	assert.Greater(t, status.Latency, time.Duration(0))
}

func TestHealthCheckFailure(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	status, err := p.HealthCheck(context.Background())
	require.Error(t, err)
	assert.False(t, status.Healthy)
}
