package vision

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMockDetector(t *testing.T) {
	detections, err := MockDetector{}.Detect(context.Background(), "flower", "any.jpg")
	require.NoError(t, err)

	require.Len(t, detections, 2)
	assert.Equal(t, "flower", detections[0].Label)
	assert.Equal(t, Box{X1: 100, Y1: 50, X2: 200, Y2: 300}, detections[0].Box)
	assert.Equal(t, 0.95, detections[0].Score)
	assert.Equal(t, Box{X1: 250, Y1: 80, X2: 350, Y2: 280}, detections[1].Box)
	assert.Equal(t, 0.87, detections[1].Score)
}

func TestFallbackDetectorUsesPrimary(t *testing.T) {
	primary := DetectFunc(func(context.Context, string, string) ([]Detection, error) {
		return []Detection{{Label: "real", Score: 0.5}}, nil
	})
	fallbackCalled := false
	fallback := DetectFunc(func(context.Context, string, string) ([]Detection, error) {
		fallbackCalled = true
		return nil, nil
	})

	d := &FallbackDetector{Primary: primary, Fallback: fallback, Logger: zap.NewNop()}

	detections, err := d.Detect(context.Background(), "flower", "img.jpg")
	require.NoError(t, err)
	require.Len(t, detections, 1)
	assert.Equal(t, "real", detections[0].Label)
	assert.False(t, fallbackCalled)
}

func TestFallbackDetectorFallsBack(t *testing.T) {
	primary := DetectFunc(func(context.Context, string, string) ([]Detection, error) {
		return nil, errors.New("no api key")
	})

	notified := false
	d := &FallbackDetector{
		Primary:    primary,
		Fallback:   MockDetector{},
		Logger:     zap.NewNop(),
		OnFallback: func() { notified = true },
	}

	detections, err := d.Detect(context.Background(), "flower", "img.jpg")
	require.NoError(t, err)
	assert.Len(t, detections, 2)
	assert.True(t, notified)
}

func TestFallbackDetectorBothFail(t *testing.T) {
	failing := DetectFunc(func(context.Context, string, string) ([]Detection, error) {
		return nil, errors.New("down")
	})

	d := &FallbackDetector{Primary: failing, Fallback: failing}

	_, err := d.Detect(context.Background(), "flower", "img.jpg")
	assert.ErrorContains(t, err, "down")
}
