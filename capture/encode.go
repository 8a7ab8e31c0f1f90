package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
)

// DropAlpha converts packed RGBA pixel data to packed RGB. Alpha is
// capture-only metadata and has no meaning on the wire.
func DropAlpha(rgba []byte) []byte {
	pixelCount := len(rgba) / 4
	rgb := make([]byte, pixelCount*3)
	for i := 0; i < pixelCount; i++ {
		rgb[i*3] = rgba[i*4]
		rgb[i*3+1] = rgba[i*4+1]
		rgb[i*3+2] = rgba[i*4+2]
	}
	return rgb
}

// rgbImage exposes packed RGB bytes as an image.Image so the stdlib JPEG
// encoder can consume them without another copy into an image.RGBA.
type rgbImage struct {
	width  int
	height int
	pix    []byte
}

func (m *rgbImage) ColorModel() color.Model {
	return color.RGBAModel
}

func (m *rgbImage) Bounds() image.Rectangle {
	return image.Rect(0, 0, m.width, m.height)
}

func (m *rgbImage) At(x, y int) color.Color {
	i := (y*m.width + x) * 3
	return color.RGBA{R: m.pix[i], G: m.pix[i+1], B: m.pix[i+2], A: 255}
}

// EncodeJPEG drops the frame's alpha channel and encodes the result as a
// JPEG at the given quality (1-100).
func EncodeJPEG(frame *Frame, quality int) ([]byte, error) {
	if frame.Width <= 0 || frame.Height <= 0 {
		return nil, fmt.Errorf("invalid frame dimensions %dx%d", frame.Width, frame.Height)
	}
	if len(frame.Pix) < frame.Width*frame.Height*4 {
		return nil, fmt.Errorf("frame buffer too short: %d bytes for %dx%d",
			len(frame.Pix), frame.Width, frame.Height)
	}

	img := &rgbImage{
		width:  frame.Width,
		height: frame.Height,
		pix:    DropAlpha(frame.Pix[:frame.Width*frame.Height*4]),
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
