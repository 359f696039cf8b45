package facematch

import (
	"image"
	"math"
)

// ScaleBox maps a bounding box detected on a downscaled frame back to the
// original frame. factor is the downscale factor that was applied (0.25 for
// a quarter-size frame). Non-positive factors return the box unchanged.
func ScaleBox(box image.Rectangle, factor float64) image.Rectangle {
	if factor <= 0 || factor == 1 {
		return box
	}
	scale := func(v int) int {
		return int(math.Round(float64(v) / factor))
	}
	return image.Rect(scale(box.Min.X), scale(box.Min.Y), scale(box.Max.X), scale(box.Max.Y))
}

// ClampBox restricts a box to the frame bounds. Detectors occasionally
// report boxes that extend past the image edge.
func ClampBox(box, bounds image.Rectangle) image.Rectangle {
	return box.Intersect(bounds)
}
