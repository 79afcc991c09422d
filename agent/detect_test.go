package agent

import (
	"context"
	"errors"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/visionkit/artifacts"
	"github.com/BaSui01/visionkit/vision"
)

func writeTestPNG(t *testing.T, dir, name string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 400, 350))
	for y := 0; y < 350; y++ {
		for x := 0; x < 400; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 200, B: 200, A: 255})
		}
	}
	path := filepath.Join(dir, name)
	require.NoError(t, vision.SavePNG(img, path))
	return path
}

func TestAnnotatorRun(t *testing.T) {
	sampleDir := t.TempDir()
	writeTestPNG(t, sampleDir, "sample.png")

	cfg := artifacts.DefaultConfig()
	cfg.BasePath = t.TempDir()
	store, err := artifacts.NewStore(cfg, zap.NewNop())
	require.NoError(t, err)

	annotator := NewAnnotator(vision.MockDetector{}, store, sampleDir, zap.NewNop())

	outPath := filepath.Join(t.TempDir(), "annotated.png")
	result, err := annotator.Run(context.Background(), "flower", "sample.png", outPath)
	require.NoError(t, err)

	assert.Len(t, result.Detections, 2)
	assert.Equal(t, outPath, result.OutPath)

	// 标注图可被重新解码
	annotated, err := vision.LoadImage(outPath)
	require.NoError(t, err)
	assert.Equal(t, 400, annotated.Bounds().Dx())

	require.NotNil(t, result.Artifact)
	assert.Equal(t, artifacts.TypeImage, result.Artifact.Type)
	assert.Contains(t, result.Artifact.Tags, "overlay")
}

func TestAnnotatorRunDefaultOutPath(t *testing.T) {
	sampleDir := t.TempDir()
	imagePath := writeTestPNG(t, sampleDir, "sample.png")

	annotator := NewAnnotator(vision.MockDetector{}, nil, sampleDir, zap.NewNop())

	result, err := annotator.Run(context.Background(), "flower", imagePath, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(sampleDir, "sample_annotated.png"), result.OutPath)
}

func TestAnnotatorRunDetectorError(t *testing.T) {
	sampleDir := t.TempDir()
	writeTestPNG(t, sampleDir, "sample.png")

	failing := vision.DetectFunc(func(context.Context, string, string) ([]vision.Detection, error) {
		return nil, errors.New("upstream down")
	})
	annotator := NewAnnotator(failing, nil, sampleDir, zap.NewNop())

	_, err := annotator.Run(context.Background(), "flower", "sample.png", "")
	assert.ErrorContains(t, err, "upstream down")
}

func TestAnnotatorFallsBackToMock(t *testing.T) {
	sampleDir := t.TempDir()
	writeTestPNG(t, sampleDir, "sample.png")

	failing := vision.DetectFunc(func(context.Context, string, string) ([]vision.Detection, error) {
		return nil, errors.New("no api key")
	})
	detector := &vision.FallbackDetector{
		Primary:  failing,
		Fallback: vision.MockDetector{},
		Logger:   zap.NewNop(),
	}
	annotator := NewAnnotator(detector, nil, sampleDir, zap.NewNop())

	result, err := annotator.Run(context.Background(), "flower", "sample.png",
		filepath.Join(t.TempDir(), "out.png"))
	require.NoError(t, err)
	assert.Len(t, result.Detections, 2)
	assert.Equal(t, 0.95, result.Detections[0].Score)
}
