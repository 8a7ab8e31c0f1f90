//go:build gui

// Package viewer shows received stream frames in a native window. Built
// without the 'gui' tag it compiles to a no-op, so headless builds of the
// client need no display stack.
package viewer

import (
	"image"
	"log"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
)

// FrameViewer renders stream frames into a fyne window. Frames arrive from
// the network goroutine; the window repaints at most every 50ms and keeps
// only the newest pending frame.
type FrameViewer struct {
	app       fyne.App
	window    fyne.Window
	image     *canvas.Image
	mutex     sync.Mutex
	frameChan chan image.Image
	closeChan chan struct{}
	closeOnce sync.Once
}

// UpdateFrame queues a frame for display. When the window cannot keep up,
// older pending frames are dropped.
func (v *FrameViewer) UpdateFrame(img image.Image) {
	select {
	case v.frameChan <- img:
	default:
	}
}

// Close shuts down the repaint loop and closes the window.
func (v *FrameViewer) Close() {
	v.closeOnce.Do(func() { close(v.closeChan) })
	fyne.Do(v.window.Close)
}

func (v *FrameViewer) repaintLoop() {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	var pending image.Image
	for {
		select {
		case img := <-v.frameChan:
			pending = img
		case <-ticker.C:
			if pending == nil {
				continue
			}
			img := pending
			pending = nil
			fyne.Do(func() {
				v.mutex.Lock()
				v.image.Image = img
				v.image.Refresh()
				v.mutex.Unlock()
			})
		case <-v.closeChan:
			return
		}
	}
}

// RunWithStreamClient creates the window on the main thread, runs the given
// client function on a goroutine, and blocks in the GUI event loop. macOS
// requires the event loop to own the main thread.
func RunWithStreamClient(title string, width, height int, clientFunc func(*FrameViewer)) {
	a := app.New()
	w := a.NewWindow(title)
	w.Resize(fyne.NewSize(float32(width), float32(height)))

	img := canvas.NewImageFromResource(nil)
	img.FillMode = canvas.ImageFillContain
	img.ScaleMode = canvas.ImageScaleSmooth
	w.SetContent(container.NewBorder(nil, nil, nil, nil, img))

	viewer := &FrameViewer{
		app:       a,
		window:    w,
		image:     img,
		frameChan: make(chan image.Image, 4),
		closeChan: make(chan struct{}),
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("stream client panic: %v", r)
			}
		}()
		clientFunc(viewer)
	}()

	go viewer.repaintLoop()

	w.ShowAndRun()
}
