package screenshot

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/kbinani/screenshot"
)

// Capturer produces a PNG image of the screen.
type Capturer interface {
	Capture() ([]byte, error)
}

// ScreenCapturer captures the real screen.
type ScreenCapturer struct{}

func (ScreenCapturer) Capture() ([]byte, error) { return Capture() }

// Capture captures the entire virtual screen across all active displays
// and returns it PNG encoded.
func Capture() ([]byte, error) {
	bounds, err := VirtualBounds()
	if err != nil {
		return nil, err
	}
	img, err := screenshot.CaptureRect(bounds)
	if err != nil {
		return nil, fmt.Errorf("failed to capture screen: %w", err)
	}
	return Encode(img)
}

// VirtualBounds returns the union of all active display bounds.
func VirtualBounds() (image.Rectangle, error) {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return image.Rectangle{}, fmt.Errorf("no active displays found")
	}
	union := screenshot.GetDisplayBounds(0)
	for i := 1; i < n; i++ {
		union = union.Union(screenshot.GetDisplayBounds(i))
	}
	if union.Empty() {
		return image.Rectangle{}, fmt.Errorf("empty display bounds %v", union)
	}
	return union, nil
}

// Encode converts an image to PNG bytes.
func Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image as PNG: %w", err)
	}
	return buf.Bytes(), nil
}
