// Package capture holds the OS-level collaborators that sit outside the
// monitor interfaces: the global input event tap, the foreground window and
// text selection queries, and the screen capturer. Real implementations are
// darwin-only; other platforms get stubs so the pipeline above them stays
// buildable and testable everywhere.
package capture

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

var (
	// ErrAccessibilityPermission means the process is not trusted for
	// accessibility and the event tap cannot be installed.
	ErrAccessibilityPermission = errors.New("accessibility permission not granted")

	// ErrUnsupportedPlatform means no input capture backend exists for this OS.
	ErrUnsupportedPlatform = errors.New("input capture is not supported on this platform")
)

// KeyHandler receives raw keyboard callbacks from the tap.
type KeyHandler interface {
	HandleKeyDown(code int, char string, flags uint64)
	HandleKeyUp(code int, char string, flags uint64)
}

// MouseHandler receives raw mouse callbacks from the tap.
type MouseHandler interface {
	HandleClick(button string, x, y float64)
	HandleScroll(x, y, deltaX, deltaY float64)
}

// Tap delivers global keyboard and mouse events to the handlers. Run blocks
// until the context is cancelled; installation failures (missing permission,
// unsupported platform) are returned before any event is delivered.
type Tap struct {
	keys  KeyHandler
	mouse MouseHandler
}

// NewTap creates a tap feeding the given handlers.
func NewTap(keys KeyHandler, mouse MouseHandler) *Tap {
	return &Tap{keys: keys, mouse: mouse}
}

// ScreenCapturer writes full-screen captures as PNG files under a directory
// and returns the file path as the screenshot reference.
type ScreenCapturer struct {
	dir string
}

// NewScreenCapturer creates a capturer writing into dir.
func NewScreenCapturer(dir string) *ScreenCapturer {
	return &ScreenCapturer{dir: dir}
}

// capturePath names one capture file by sequence and wall clock.
func (c *ScreenCapturer) capturePath(seq uint64, at time.Time) string {
	name := fmt.Sprintf("shot_%d_%s.png", seq, at.Format("20060102_150405.000"))
	return filepath.Join(c.dir, name)
}
