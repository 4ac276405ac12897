package editor

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/wudi/pdfmark/pages"
	"github.com/wudi/pdfmark/view"
)

var cmpApprox = cmpopts.EquateApprox(0, 1e-9)

func TestZoomAndColumns(t *testing.T) {
	s := loaded(t, 4)
	if err := s.SetZoom(9); err != nil {
		t.Fatalf("SetZoom() error = %v", err)
	}
	if s.Zoom() != view.MaxZoom {
		t.Fatalf("Zoom() = %v, want clamp to %v", s.Zoom(), view.MaxZoom)
	}
	if err := s.SetZoom(0.5); err != nil {
		t.Fatalf("SetZoom() error = %v", err)
	}
	if got := s.ZoomIn(); got != 0.6 {
		t.Fatalf("ZoomIn() = %v, want 0.6", got)
	}
	if got := s.ZoomOut(); got != 0.5 {
		t.Fatalf("ZoomOut() = %v, want 0.5", got)
	}

	if err := s.SetColumns(0); !errors.Is(err, ErrColumns) {
		t.Fatalf("SetColumns(0) error = %v, want ErrColumns", err)
	}
	if err := s.SetColumns(2); err != nil {
		t.Fatalf("SetColumns() error = %v", err)
	}
	rects, err := s.Layout()
	if err != nil {
		t.Fatalf("Layout() error = %v", err)
	}
	// 600x900 pages in two 630px columns of a 1280px viewport.
	got := []float64{rects[1].X, rects[1].Width, rects[2].Y}
	if diff := cmp.Diff([]float64{650, 630, 965}, got, cmpApprox); diff != "" {
		t.Fatalf("grid mismatch (-want +got):\n%s", diff)
	}
}

func TestScrollAndCurrentPage(t *testing.T) {
	s := loaded(t, 4)
	// One column at zoom 1: 900px pages at y = 0, 920, 1840, 2760.
	if err := s.ScrollTo(3); err != nil {
		t.Fatalf("ScrollTo() error = %v", err)
	}
	if s.ScrollTop() != 1840 || s.CurrentPage() != 3 {
		t.Fatalf("after ScrollTo(3): top %v, current %d", s.ScrollTop(), s.CurrentPage())
	}
	if err := s.ScrollTo(9); !errors.Is(err, pages.ErrPageRange) {
		t.Fatalf("ScrollTo(9) error = %v, want ErrPageRange", err)
	}
	if !s.ScrollBy(100) {
		t.Fatalf("ScrollBy() inside the document reported an end")
	}
	if s.ScrollBy(5000) {
		t.Fatalf("ScrollBy() past the end did not report it")
	}
	if s.ScrollTop() != 2860 {
		t.Fatalf("ScrollTop() = %v, want 2860 (content 3660 - viewport 800)", s.ScrollTop())
	}
	if s.CurrentPage() != 4 {
		t.Fatalf("CurrentPage() = %d, want 4", s.CurrentPage())
	}
	if s.ScrollBy(-5000) || s.ScrollTop() != 0 {
		t.Fatalf("scrolling above the top left %v", s.ScrollTop())
	}
}

func TestAutoScrollStopsAtEnd(t *testing.T) {
	s := loaded(t, 4)
	if err := s.ScrollTo(4); err != nil {
		t.Fatalf("ScrollTo() error = %v", err)
	}
	a := s.AutoScroller(view.WithInterval(time.Millisecond))
	a.SetSpeed(100)
	a.Start(view.Down)
	deadline := time.Now().Add(3 * time.Second)
	for {
		if running, _ := a.Running(); !running {
			break
		}
		if time.Now().After(deadline) {
			a.Stop()
			t.Fatalf("auto-scroll did not stop at the end (top %v)", s.ScrollTop())
		}
		time.Sleep(2 * time.Millisecond)
	}
	if s.ScrollTop() != 2860 {
		t.Fatalf("ScrollTop() = %v, want 2860", s.ScrollTop())
	}
}
