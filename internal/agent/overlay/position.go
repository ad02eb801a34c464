package overlay

import (
	"image"

	"github.com/kbinani/screenshot"
)

// anchorPoint returns the window origin for the configured corner of
// the primary display. Without a display (headless CI, SSH sessions)
// it falls back to the margins alone.
func anchorPoint(anchor string, width, height, marginX, marginY int) (int, int) {
	if screenshot.NumActiveDisplays() == 0 {
		return marginX, marginY
	}
	return cornerOrigin(screenshot.GetDisplayBounds(0), anchor, width, height, marginX, marginY)
}

func cornerOrigin(bounds image.Rectangle, anchor string, width, height, marginX, marginY int) (int, int) {
	switch anchor {
	case "top-left":
		return bounds.Min.X + marginX, bounds.Min.Y + marginY
	case "top-right":
		return bounds.Max.X - width - marginX, bounds.Min.Y + marginY
	case "bottom-left":
		return bounds.Min.X + marginX, bounds.Max.Y - height - marginY
	default: // bottom-right
		return bounds.Max.X - width - marginX, bounds.Max.Y - height - marginY
	}
}
