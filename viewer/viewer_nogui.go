//go:build !gui

package viewer

import (
	"image"
	"log"
)

// FrameViewer is a no-op when built without the 'gui' tag.
type FrameViewer struct{}

func (v *FrameViewer) UpdateFrame(img image.Image) {}

func (v *FrameViewer) Close() {}

// RunWithStreamClient runs the client function directly; there is no window
// to manage in a headless build.
func RunWithStreamClient(title string, width, height int, clientFunc func(*FrameViewer)) {
	log.Printf("GUI viewer disabled (built without 'gui' tag). Title: %s, Size: %dx%d", title, width, height)
	clientFunc(&FrameViewer{})
}
