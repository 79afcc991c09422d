package agent

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/visionkit/artifacts"
	"github.com/BaSui01/visionkit/llm"
	"github.com/BaSui01/visionkit/providers/visionagent"
)

type fakeGenerator struct {
	ctx      *visionagent.CodeContext
	err      error
	lastMsgs []llm.Message
}

func (f *fakeGenerator) GenerateCode(_ context.Context, messages []llm.Message) (*visionagent.CodeContext, error) {
	f.lastMsgs = messages
	if f.err != nil {
		return nil, f.err
	}
	return f.ctx, nil
}

func writeSampleImage(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("not a real image"), 0o644))
	return path
}

func TestCoderGenerate(t *testing.T) {
	sampleDir := t.TempDir()
	writeSampleImage(t, sampleDir, "flower.jpg")

	gen := &fakeGenerator{ctx: &visionagent.CodeContext{
		Code: "def count_flowers(image):\n    return 3",
		Test: "def test_count_flowers():\n    assert count_flowers(None) == 3",
	}}

	cfg := artifacts.DefaultConfig()
	cfg.BasePath = t.TempDir()
	store, err := artifacts.NewStore(cfg, zap.NewNop())
	require.NoError(t, err)

	coder := NewCoder(gen, store, sampleDir, zap.NewNop())

	outPath := filepath.Join(t.TempDir(), "generated_code.py")
	result, err := coder.Generate(context.Background(), "count the flowers", "flower.jpg", outPath)
	require.NoError(t, err)

	// 产物内容 = 代码 + 换行 + 测试
	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, gen.ctx.Code+"\n"+gen.ctx.Test, string(data))

	require.NotNil(t, result.Artifact)
	assert.Equal(t, artifacts.TypeCode, result.Artifact.Type)
	assert.Equal(t, "generated_code.py", result.Artifact.Name)

	// prompt 与解析后的图片路径一起传给后端
	require.Len(t, gen.lastMsgs, 1)
	assert.Equal(t, "count the flowers", gen.lastMsgs[0].Content)
	require.Len(t, gen.lastMsgs[0].Media, 1)
	assert.True(t, filepath.IsAbs(gen.lastMsgs[0].Media[0]))
}

func TestCoderGeneratePreviewTruncated(t *testing.T) {
	sampleDir := t.TempDir()
	writeSampleImage(t, sampleDir, "flower.jpg")

	gen := &fakeGenerator{ctx: &visionagent.CodeContext{
		Code: strings.Repeat("line\n", 30),
		Test: "pass",
	}}
	coder := NewCoder(gen, nil, sampleDir, zap.NewNop())

	result, err := coder.Generate(context.Background(), "p", "flower.jpg",
		filepath.Join(t.TempDir(), "out.py"))
	require.NoError(t, err)
	assert.Len(t, result.Preview, previewLines)
}

func TestCoderGenerateImageNotFound(t *testing.T) {
	coder := NewCoder(&fakeGenerator{}, nil, t.TempDir(), zap.NewNop())

	_, err := coder.Generate(context.Background(), "p", "missing.jpg", "")
	assert.ErrorContains(t, err, "image not found")
}

func TestCoderGenerateBackendError(t *testing.T) {
	sampleDir := t.TempDir()
	writeSampleImage(t, sampleDir, "flower.jpg")

	gen := &fakeGenerator{err: &llm.Error{
		Code:       llm.ErrUnauthorized,
		Message:    "invalid api key",
		HTTPStatus: http.StatusUnauthorized,
	}}
	coder := NewCoder(gen, nil, sampleDir, zap.NewNop())

	_, err := coder.Generate(context.Background(), "p", "flower.jpg",
		filepath.Join(t.TempDir(), "out.py"))
	require.Error(t, err)

	var llmErr *llm.Error
	require.True(t, errors.As(err, &llmErr))
	assert.Equal(t, llm.ErrUnauthorized, llmErr.Code)
}

func TestClassifyFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureKind
	}{
		{
			name: "unauthorized provider error",
			err:  &llm.Error{Code: llm.ErrUnauthorized, Message: "bad key"},
			want: FailureAuth,
		},
		{
			name: "upstream error",
			err:  &llm.Error{Code: llm.ErrUpstreamError, Message: "502"},
			want: FailureNetwork,
		},
		{
			name: "missing key by message",
			err:  errors.New("no API key configured"),
			want: FailureMissingKey,
		},
		{
			name: "network by message",
			err:  errors.New("dial tcp: connection refused"),
			want: FailureNetwork,
		},
		{
			name: "anything else",
			err:  errors.New("boom"),
			want: FailureOther,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyFailure(tt.err)
			assert.Equal(t, tt.want, got.Kind)
			assert.NotEmpty(t, got.Hint)
		})
	}
}
