//go:build !darwin

package capture

import "context"

// Run reports that no tap backend exists on this platform.
func (t *Tap) Run(ctx context.Context) error {
	return ErrUnsupportedPlatform
}

// FrontmostWindow has no backend on this platform.
func FrontmostWindow() (app, title string, pid int32, err error) {
	return "", "", 0, ErrUnsupportedPlatform
}

// SelectedText has no backend on this platform.
func SelectedText() (text, source string, err error) {
	return "", "", ErrUnsupportedPlatform
}
