// Package view computes the on-screen arrangement of pages: column grid,
// zoom, current-page tracking, and an auto-scroll driver.
package view

import (
	"errors"
	"math"
)

const (
	// Gap separates columns and rows, in screen pixels.
	Gap = 20

	MinZoom  = 0.2
	MaxZoom  = 5.0
	ZoomStep = 0.1

	// minContainerWidth is the narrowest container a layout is computed for.
	minContainerWidth = 50
)

var ErrContainerTooNarrow = errors.New("container too narrow for layout")

// Size is a page's unscaled pixel size.
type Size struct {
	Width, Height float64
}

// Rect is a page's placement in container coordinates.
type Rect struct {
	X, Y, Width, Height float64
	Scale               float64
}

// CenterY returns the vertical centre of r.
func (r Rect) CenterY() float64 { return r.Y + r.Height/2 }

// Zoom is the single-column magnification; 1 shows pages at their pixel
// size.
type Zoom float64

// Step returns z moved by delta, clamped to [MinZoom, MaxZoom] and rounded
// to one decimal.
func (z Zoom) Step(delta float64) Zoom {
	v := math.Max(MinZoom, math.Min(float64(z)+delta, MaxZoom))
	return Zoom(math.Round(v*10) / 10)
}

// In zooms in one step.
func (z Zoom) In() Zoom { return z.Step(ZoomStep) }

// Out zooms out one step.
func (z Zoom) Out() Zoom { return z.Step(-ZoomStep) }

// Percent returns the zoom as a rounded percentage.
func (z Zoom) Percent() int { return int(math.Round(float64(z) * 100)) }

// Layout places pages in columns. With one column every page is scaled by
// zoom and stacked; with more, each page is scaled to fit its column width
// and zoom is ignored. Rows are separated by Gap.
func Layout(pages []Size, containerWidth float64, columns int, zoom Zoom) ([]Rect, error) {
	if columns < 1 {
		columns = 1
	}
	if containerWidth < minContainerWidth {
		return nil, ErrContainerTooNarrow
	}
	colWidth := (containerWidth - float64(columns-1)*Gap) / float64(columns)
	out := make([]Rect, len(pages))
	y := 0.0
	for row := 0; row*columns < len(pages); row++ {
		rowHeight := 0.0
		for col := 0; col < columns; col++ {
			i := row*columns + col
			if i >= len(pages) {
				break
			}
			p := pages[i]
			scale := float64(zoom)
			if columns > 1 {
				scale = 0
				if p.Width > 0 {
					scale = colWidth / p.Width
				}
			}
			r := Rect{
				X:      float64(col) * (colWidth + Gap),
				Y:      y,
				Width:  p.Width * scale,
				Height: p.Height * scale,
				Scale:  scale,
			}
			out[i] = r
			rowHeight = math.Max(rowHeight, r.Height)
		}
		y += rowHeight + Gap
	}
	return out, nil
}

// CurrentPage returns the 1-based page whose centre is nearest the centre of
// the visible band [scrollTop, scrollTop+viewportHeight), or 0 when there
// are no pages.
func CurrentPage(rects []Rect, scrollTop, viewportHeight float64) int {
	centre := scrollTop + viewportHeight/2
	best, bestDist := 0, math.Inf(1)
	for i, r := range rects {
		if d := math.Abs(r.CenterY() - centre); d < bestDist {
			best, bestDist = i+1, d
		}
	}
	return best
}

// ScrollTo returns the scroll offset that brings page n (1-based) to the top.
func ScrollTo(rects []Rect, n int) (float64, bool) {
	if n < 1 || n > len(rects) {
		return 0, false
	}
	return rects[n-1].Y, true
}
