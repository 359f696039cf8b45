// Package camera captures frames from a video device and shows annotated
// frames in a window. It needs OpenCV through gocv.
package camera

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/kozaktomas/attendance/internal/pipeline"
)

// ErrNoFrame is returned when the device delivers no frame.
var ErrNoFrame = errors.New("no frame available")

// Camera reads frames from a video capture device.
type Camera struct {
	capture *gocv.VideoCapture
	frame   gocv.Mat
	device  int
}

// Open opens the capture device with the given index.
func Open(device int) (*Camera, error) {
	capture, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("failed to open camera %d: %w", device, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("camera %d is not available", device)
	}
	return &Camera{capture: capture, frame: gocv.NewMat(), device: device}, nil
}

// ReadFrame grabs the next frame.
func (c *Camera) ReadFrame() (image.Image, error) {
	if ok := c.capture.Read(&c.frame); !ok || c.frame.Empty() {
		return nil, fmt.Errorf("camera %d: %w", c.device, ErrNoFrame)
	}
	img, err := c.frame.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %w", err)
	}
	return img, nil
}

// Close releases the device.
func (c *Camera) Close() error {
	var errs []error
	if err := c.frame.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := c.capture.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Window renders annotated frames and watches for the quit key.
type Window struct {
	window  *gocv.Window
	quitKey int
	quit    bool
}

// NewWindow opens a display window. Pressing quitKey requests a stop.
func NewWindow(title string, quitKey rune) *Window {
	return &Window{window: gocv.NewWindow(title), quitKey: int(quitKey)}
}

// Render draws the annotations on frame, shows it and polls the keyboard.
func (w *Window) Render(frame image.Image, annotations []pipeline.Annotation) error {
	mat, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		return fmt.Errorf("failed to convert frame: %w", err)
	}
	defer mat.Close()

	for _, a := range annotations {
		gocv.Rectangle(&mat, a.Box, a.Color, 2)
		gocv.Rectangle(&mat, pipeline.LabelBand(a.Box), a.Color, -1)
		gocv.PutText(&mat, a.Label, pipeline.LabelOrigin(a.Box), gocv.FontHersheySimplex, 0.6, pipeline.ColorText, 1)
	}

	w.window.IMShow(mat)
	if key := w.window.WaitKey(1); key >= 0 && key&0xFF == w.quitKey {
		w.quit = true
	}
	return nil
}

// QuitRequested reports whether the quit key was pressed.
func (w *Window) QuitRequested() bool {
	return w.quit
}

// Close destroys the window.
func (w *Window) Close() error {
	return w.window.Close()
}
