package vision

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"os"
)

// Overlay colors cycle per detection, matching the demo palette.
var overlayPalette = []color.RGBA{
	{R: 0xE5, G: 0x39, B: 0x35, A: 0xFF}, // red
	{R: 0x1E, G: 0x88, B: 0xE5, A: 0xFF}, // blue
	{R: 0x43, G: 0xA0, B: 0x47, A: 0xFF}, // green
	{R: 0xFD, G: 0xD8, B: 0x35, A: 0xFF}, // yellow
	{R: 0x8E, G: 0x24, B: 0xAA, A: 0xFF}, // purple
	{R: 0xFB, G: 0x8C, B: 0x00, A: 0xFF}, // orange
}

const (
	borderWidth = 2
	tagHeight   = 10
	tagWidth    = 40
)

// LoadImage decodes a JPEG/PNG/GIF image from disk.
func LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}
	return img, nil
}

// Overlay draws one colored bounding box per detection onto a copy of img.
// Each box gets a filled tag anchor at its top-left corner in the same
// color, so instances remain distinguishable without font rendering.
func Overlay(img image.Image, detections []Detection) *image.RGBA {
	bounds := img.Bounds()
	out := image.NewRGBA(bounds)
	draw.Draw(out, bounds, img, bounds.Min, draw.Src)

	for i, det := range detections {
		if !det.Box.Valid() {
			continue
		}
		c := overlayPalette[i%len(overlayPalette)]
		drawBox(out, det.Box, c)
	}

	return out
}

func drawBox(img *image.RGBA, box Box, c color.RGBA) {
	bounds := img.Bounds()
	clamped := Box{
		X1: max(box.X1, bounds.Min.X),
		Y1: max(box.Y1, bounds.Min.Y),
		X2: min(box.X2, bounds.Max.X-1),
		Y2: min(box.Y2, bounds.Max.Y-1),
	}
	if !clamped.Valid() {
		return
	}

	// 边框
	for t := 0; t < borderWidth; t++ {
		for x := clamped.X1; x <= clamped.X2; x++ {
			img.SetRGBA(x, clamp(clamped.Y1+t, bounds.Min.Y, bounds.Max.Y-1), c)
			img.SetRGBA(x, clamp(clamped.Y2-t, bounds.Min.Y, bounds.Max.Y-1), c)
		}
		for y := clamped.Y1; y <= clamped.Y2; y++ {
			img.SetRGBA(clamp(clamped.X1+t, bounds.Min.X, bounds.Max.X-1), y, c)
			img.SetRGBA(clamp(clamped.X2-t, bounds.Min.X, bounds.Max.X-1), y, c)
		}
	}

	// 左上角标签锚块
	tag := image.Rect(clamped.X1, clamped.Y1-tagHeight, clamped.X1+tagWidth, clamped.Y1)
	tag = tag.Intersect(bounds)
	draw.Draw(img, tag, &image.Uniform{C: c}, image.Point{}, draw.Src)
}

// SavePNG writes an annotated image as PNG.
func SavePNG(img image.Image, path string) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("failed to encode png: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// EncodePNG renders an annotated image to PNG bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// SaveJPEG writes an annotated image as JPEG with the given quality.
func SaveJPEG(img image.Image, path string, quality int) error {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return fmt.Errorf("failed to encode jpeg: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
