package editor

import (
	"errors"
	"fmt"
	"math"

	"github.com/wudi/pdfmark/observability"
	"github.com/wudi/pdfmark/pages"
	"github.com/wudi/pdfmark/view"
)

// ErrColumns is returned for a grid with fewer than one column.
var ErrColumns = errors.New("columns must be at least 1")

// Zoom returns the single-column magnification.
func (s *Session) Zoom() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return float64(s.zoom)
}

// SetZoom sets the magnification, clamped to [view.MinZoom, view.MaxZoom]
// and rounded to one decimal.
func (s *Session) SetZoom(z float64) error {
	if math.IsNaN(z) || math.IsInf(z, 0) {
		return fmt.Errorf("set zoom %v: not a number", z)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zoom = view.Zoom(z).Step(0)
	s.log.Debug("zoom changed", observability.Int("percent", s.zoom.Percent()))
	return nil
}

// ZoomIn and ZoomOut move the magnification by one view.ZoomStep.
func (s *Session) ZoomIn() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zoom = s.zoom.In()
	return float64(s.zoom)
}

func (s *Session) ZoomOut() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zoom = s.zoom.Out()
	return float64(s.zoom)
}

// Columns returns the number of grid columns.
func (s *Session) Columns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.columns
}

// SetColumns lays pages out in n columns.
func (s *Session) SetColumns(n int) error {
	if n < 1 {
		return fmt.Errorf("set columns %d: %w", n, ErrColumns)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.columns = n
	return nil
}

// SetViewport resizes the visible area.
func (s *Session) SetViewport(width, height float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewport = view.Size{Width: width, Height: height}
}

// Layout places every page for the current grid, zoom and viewport.
func (s *Session) Layout() ([]view.Rect, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.layout()
}

func (s *Session) layout() ([]view.Rect, error) {
	ps := s.pages.Pages()
	sizes := make([]view.Size, len(ps))
	for i, p := range ps {
		sizes[i] = view.Size{Width: float64(p.Width), Height: float64(p.Height)}
	}
	return view.Layout(sizes, s.viewport.Width, s.columns, s.zoom)
}

// ScrollTop returns the vertical scroll offset.
func (s *Session) ScrollTop() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scrollTop
}

// ScrollTo brings page n to the top of the viewport.
func (s *Session) ScrollTo(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rects, err := s.layout()
	if err != nil {
		return err
	}
	top, ok := view.ScrollTo(rects, n)
	if !ok {
		return fmt.Errorf("scroll to page %d of %d: %w", n, len(rects), pages.ErrPageRange)
	}
	s.scrollTop = math.Min(top, maxScroll(rects, s.viewport.Height))
	return nil
}

// ScrollBy moves the scroll offset by dy pixels within the content. It
// reports false once the offset is pinned at the top or bottom.
func (s *Session) ScrollBy(dy int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rects, err := s.layout()
	if err != nil || len(rects) == 0 {
		return false
	}
	limit := maxScroll(rects, s.viewport.Height)
	want := s.scrollTop + float64(dy)
	s.scrollTop = math.Max(0, math.Min(want, limit))
	return s.scrollTop == want && s.scrollTop > 0 && s.scrollTop < limit
}

// CurrentPage returns the page nearest the centre of the viewport, or 0
// without pages.
func (s *Session) CurrentPage() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	rects, err := s.layout()
	if err != nil {
		return 0
	}
	return view.CurrentPage(rects, s.scrollTop, s.viewport.Height)
}

// AutoScroller returns a scroller that scrolls this session and stops
// itself at either end of the document.
func (s *Session) AutoScroller(opts ...view.ScrollOption) *view.AutoScroller {
	var a *view.AutoScroller
	opts = append([]view.ScrollOption{view.WithLogger(s.log)}, opts...)
	a = view.NewAutoScroller(func(dy int) {
		if !s.ScrollBy(dy) {
			a.Stop()
		}
	}, opts...)
	return a
}

func maxScroll(rects []view.Rect, viewportHeight float64) float64 {
	bottom := 0.0
	for _, r := range rects {
		bottom = math.Max(bottom, r.Y+r.Height)
	}
	return math.Max(0, bottom-viewportHeight)
}
