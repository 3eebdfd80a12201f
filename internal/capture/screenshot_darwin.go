//go:build darwin

package capture

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/lmeyer/session-scribe/internal/screenshot"
)

// Capture grabs the full screen with the system screencapture utility and
// returns the written file path.
func (c *ScreenCapturer) Capture(ctx context.Context, req screenshot.Request) (string, error) {
	path := c.capturePath(req.Sequence, time.Now())
	cmd := exec.CommandContext(ctx, "screencapture", "-x", path)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("screencapture: %w: %s", err, out)
	}
	return path, nil
}
