package vision

import (
	"context"

	"go.uber.org/zap"
)

// Detector locates object instances matching a text prompt in an image.
type Detector interface {
	Detect(ctx context.Context, prompt, imagePath string) ([]Detection, error)
}

// DetectFunc adapts a function to the Detector interface.
type DetectFunc func(ctx context.Context, prompt, imagePath string) ([]Detection, error)

func (f DetectFunc) Detect(ctx context.Context, prompt, imagePath string) ([]Detection, error) {
	return f(ctx, prompt, imagePath)
}

// MockDetector returns canned detections for demos and offline runs.
// The boxes assume a roughly 400x350 or larger image.
type MockDetector struct{}

func (MockDetector) Detect(_ context.Context, prompt, _ string) ([]Detection, error) {
	return []Detection{
		{Label: prompt, Box: Box{X1: 100, Y1: 50, X2: 200, Y2: 300}, Score: 0.95},
		{Label: prompt, Box: Box{X1: 250, Y1: 80, X2: 350, Y2: 280}, Score: 0.87},
	}, nil
}

// FallbackDetector tries the primary detector and falls back on error.
// Used to keep the demo drivers usable when the platform is unreachable
// or no API key is configured.
type FallbackDetector struct {
	Primary  Detector
	Fallback Detector
	Logger   *zap.Logger

	// OnFallback, when set, is invoked each time the fallback answers.
	OnFallback func()
}

// Detect returns primary results when available. A primary failure is
// logged and answered from the fallback.
func (d *FallbackDetector) Detect(ctx context.Context, prompt, imagePath string) ([]Detection, error) {
	detections, err := d.Primary.Detect(ctx, prompt, imagePath)
	if err == nil {
		return detections, nil
	}

	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Warn("primary detector failed, using fallback",
		zap.String("prompt", prompt),
		zap.String("image", imagePath),
		zap.Error(err),
	)
	if d.OnFallback != nil {
		d.OnFallback()
	}

	return d.Fallback.Detect(ctx, prompt, imagePath)
}
