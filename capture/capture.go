// Package capture provides display enumeration and raw screen capture,
// plus the JPEG encoding used to put captured frames on the wire.
package capture

import (
	"fmt"

	"github.com/kbinani/screenshot"
)

// Display describes one attached monitor and its position in the virtual
// screen layout.
type Display struct {
	Index  int
	X      int
	Y      int
	Width  int
	Height int
}

// Frame is a single raw capture: packed RGBA pixels, 4 bytes per pixel,
// row-major with no padding between rows.
type Frame struct {
	Width  int
	Height int
	Pix    []byte
}

// Source produces frames for a chosen display. The display list can change
// between calls (monitors plugged or unplugged), so callers revalidate the
// index against Displays before every Capture.
type Source interface {
	Displays() ([]Display, error)
	Capture(index int) (*Frame, error)
}

// ScreenSource captures the real displays attached to this machine.
type ScreenSource struct{}

func NewScreenSource() *ScreenSource {
	return &ScreenSource{}
}

func (s *ScreenSource) Displays() ([]Display, error) {
	n := screenshot.NumActiveDisplays()
	displays := make([]Display, 0, n)
	for i := 0; i < n; i++ {
		bounds := screenshot.GetDisplayBounds(i)
		displays = append(displays, Display{
			Index:  i,
			X:      bounds.Min.X,
			Y:      bounds.Min.Y,
			Width:  bounds.Dx(),
			Height: bounds.Dy(),
		})
	}
	return displays, nil
}

func (s *ScreenSource) Capture(index int) (*Frame, error) {
	if index < 0 || index >= screenshot.NumActiveDisplays() {
		return nil, fmt.Errorf("display %d not found", index)
	}

	img, err := screenshot.CaptureDisplay(index)
	if err != nil {
		return nil, fmt.Errorf("capture display %d: %w", index, err)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	// image.RGBA rows can carry stride padding; repack so Frame.Pix is
	// exactly width*height*4 bytes.
	if img.Stride == width*4 {
		return &Frame{Width: width, Height: height, Pix: img.Pix}, nil
	}

	pix := make([]byte, width*height*4)
	for y := 0; y < height; y++ {
		copy(pix[y*width*4:(y+1)*width*4], img.Pix[y*img.Stride:])
	}
	return &Frame{Width: width, Height: height, Pix: pix}, nil
}
