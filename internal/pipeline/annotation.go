package pipeline

import (
	"fmt"
	"image"
	"image/color"

	"github.com/kozaktomas/attendance/internal/facematch"
)

// Annotation colors
var (
	ColorMatched = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	ColorUnknown = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	ColorText    = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// Annotation describes one detected face for the renderer. Box is in
// original frame coordinates.
type Annotation struct {
	Box            image.Rectangle
	Label          string
	Color          color.RGBA
	ConfidenceText string
	Matched        bool
}

// Annotate builds the annotation for a match result.
func Annotate(box image.Rectangle, m facematch.MatchResult) Annotation {
	conf := FormatDisplayConfidence(m.Confidence)
	a := Annotation{
		Box:            box,
		Label:          fmt.Sprintf("%s (%s)", m.Name, conf),
		Color:          ColorUnknown,
		ConfidenceText: conf,
		Matched:        m.Matched,
	}
	if m.Matched {
		a.Color = ColorMatched
	}
	return a
}

// FormatDisplayConfidence formats a confidence with one decimal for display.
func FormatDisplayConfidence(c float64) string {
	return fmt.Sprintf("%.1f%%", c)
}

// labelBandHeight is the height of the filled label band at the bottom of a box.
const labelBandHeight = 35

// LabelBand returns the filled band at the bottom of box that holds the label.
func LabelBand(box image.Rectangle) image.Rectangle {
	top := max(box.Max.Y-labelBandHeight, box.Min.Y)
	return image.Rect(box.Min.X, top, box.Max.X, box.Max.Y)
}

// LabelOrigin returns the baseline origin of the label text inside the band.
func LabelOrigin(box image.Rectangle) image.Point {
	return image.Pt(box.Min.X+6, box.Max.Y-6)
}
