//go:build !darwin

package capture

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"time"

	"github.com/lmeyer/session-scribe/internal/screenshot"
)

// Capture writes a synthetic gradient PNG so the enrichment path can be
// exercised on platforms without a screen capture backend.
func (c *ScreenCapturer) Capture(ctx context.Context, req screenshot.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	const width, height = 640, 400
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	hue := uint8(req.Sequence % 255)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, color.RGBA{R: hue, G: uint8(x % 255), B: uint8(y % 255), A: 255})
		}
	}

	path := c.capturePath(req.Sequence, time.Now())
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create capture file: %w", err)
	}
	defer file.Close()
	if err := png.Encode(file, img); err != nil {
		return "", fmt.Errorf("encode capture: %w", err)
	}
	return path, file.Close()
}
