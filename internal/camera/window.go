package camera

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/kozaktomas/face-attendance/internal/facematch"
)

var (
	knownColor   = color.RGBA{0, 255, 0, 255}
	unknownColor = color.RGBA{255, 0, 0, 255}
)

// Window is the live preview with its keyboard controls:
// f switches to fullscreen, n back to normal, q quits.
type Window struct {
	win *gocv.Window
}

// NewWindow opens a preview window.
func NewWindow(title string) *Window {
	return &Window{win: gocv.NewWindow(title)}
}

// Show draws detections over img, displays it and polls the keyboard.
// Returns true once quit was requested.
func (w *Window) Show(img image.Image, detections []facematch.Detection) bool {
	mat, err := gocv.ImageToMatRGB(img)
	if err == nil {
		origin := img.Bounds().Min
		for _, d := range detections {
			c := knownColor
			if d.Label.IsUnknown() {
				c = unknownColor
			}
			r := d.Rect.Sub(origin)
			gocv.Rectangle(&mat, r, c, 2)
			label := fmt.Sprintf("%s %.2f", d.Label, d.Distance)
			gocv.PutText(&mat, label, image.Pt(r.Min.X, max(r.Min.Y-6, 12)), gocv.FontHersheySimplex, 0.6, c, 2)
		}
		w.win.IMShow(mat)
		mat.Close()
	}

	switch w.win.WaitKey(1) {
	case 'f':
		w.win.SetWindowProperty(gocv.WindowPropertyFullscreen, gocv.WindowFullscreen)
	case 'n':
		w.win.SetWindowProperty(gocv.WindowPropertyFullscreen, gocv.WindowNormal)
	case 'q':
		return true
	}
	return false
}

// Close destroys the window.
func (w *Window) Close() error {
	return w.win.Close()
}
