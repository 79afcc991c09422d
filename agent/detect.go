package agent

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/BaSui01/visionkit/artifacts"
	"github.com/BaSui01/visionkit/vision"
)

// DetectResult 一次检测运行的结果
type DetectResult struct {
	Detections []vision.Detection
	OutPath    string
	Artifact   *artifacts.Artifact
}

// Annotator 驱动一次完整的检测：调用检测器、画框、落盘标注图
type Annotator struct {
	detector  vision.Detector
	store     *artifacts.Store
	logger    *zap.Logger
	sampleDir string
}

// NewAnnotator 创建检测驱动。store 可为 nil。
func NewAnnotator(detector vision.Detector, store *artifacts.Store, sampleDir string, logger *zap.Logger) *Annotator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Annotator{
		detector:  detector,
		store:     store,
		logger:    logger.With(zap.String("component", "annotator")),
		sampleDir: sampleDir,
	}
}

// Run 检测 prompt 指定的目标并写出标注图。
// outPath 为空时写到图片同目录，文件名加 _annotated 后缀。
func (a *Annotator) Run(ctx context.Context, prompt, image, outPath string) (*DetectResult, error) {
	imagePath, err := resolveImage(image, a.sampleDir)
	if err != nil {
		return nil, err
	}

	detections, err := a.detector.Detect(ctx, prompt, imagePath)
	if err != nil {
		return nil, err
	}

	a.logger.Info("detection completed",
		zap.String("prompt", prompt),
		zap.String("image", imagePath),
		zap.Int("count", len(detections)),
	)
	for _, d := range detections {
		a.logger.Info("detection",
			zap.String("label", d.Label),
			zap.Float64("score", d.Score),
			zap.String("bbox", d.Box.String()),
		)
	}

	img, err := vision.LoadImage(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load image: %w", err)
	}

	annotated := vision.Overlay(img, detections)

	if outPath == "" {
		ext := filepath.Ext(imagePath)
		outPath = imagePath[:len(imagePath)-len(ext)] + "_annotated.png"
	}
	if err := vision.SavePNG(annotated, outPath); err != nil {
		return nil, fmt.Errorf("failed to save annotated image: %w", err)
	}

	result := &DetectResult{
		Detections: detections,
		OutPath:    outPath,
	}

	if a.store != nil {
		encoded, err := vision.EncodePNG(annotated)
		if err == nil {
			artifact, aerr := a.store.Create(ctx, filepath.Base(outPath), artifacts.TypeImage,
				bytes.NewReader(encoded),
				artifacts.WithMimeType("image/png"),
				artifacts.WithMetadata(map[string]any{
					"prompt":     prompt,
					"image":      imagePath,
					"detections": len(detections),
				}),
				artifacts.WithTags("detect", "overlay"),
			)
			if aerr != nil {
				a.logger.Warn("failed to register overlay artifact", zap.Error(aerr))
			} else {
				result.Artifact = artifact
			}
		}
	}

	a.logger.Info("annotated image saved", zap.String("out", outPath))
	return result, nil
}

// resolveImage 解析图片参数：绝对路径直接用，否则在样例目录下找
func resolveImage(image, sampleDir string) (string, error) {
	candidates := []string{image}
	if !filepath.IsAbs(image) && sampleDir != "" {
		candidates = append(candidates, filepath.Join(sampleDir, image))
	}
	for _, p := range candidates {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return filepath.Abs(p)
		}
	}
	return "", fmt.Errorf("image not found: %s", image)
}
