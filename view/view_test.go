package view

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

var approx = cmpopts.EquateApprox(0, 1e-9)

func TestZoomSteps(t *testing.T) {
	z := Zoom(1)
	for i := 0; i < 3; i++ {
		z = z.In()
	}
	if z != 1.3 || z.Percent() != 130 {
		t.Fatalf("zoom after 3 steps in = %v (%d%%)", z, z.Percent())
	}
	z = Zoom(0.3).Out().Out().Out()
	if z != MinZoom {
		t.Fatalf("zoom clamped low = %v, want %v", z, MinZoom)
	}
	if z := Zoom(4.95).In(); z != MaxZoom {
		t.Fatalf("zoom clamped high = %v, want %v", z, MaxZoom)
	}
}

func TestLayoutSingleColumn(t *testing.T) {
	rects, err := Layout([]Size{{600, 900}, {900, 600}}, 1000, 1, 0.5)
	if err != nil {
		t.Fatalf("Layout() error = %v", err)
	}
	want := []Rect{
		{X: 0, Y: 0, Width: 300, Height: 450, Scale: 0.5},
		{X: 0, Y: 470, Width: 450, Height: 300, Scale: 0.5},
	}
	if diff := cmp.Diff(want, rects); diff != "" {
		t.Fatalf("layout mismatch (-want +got):\n%s", diff)
	}
}

func TestLayoutGridFitsColumns(t *testing.T) {
	rects, err := Layout([]Size{{600, 900}, {300, 300}, {600, 600}}, 1020, 2, 3)
	if err != nil {
		t.Fatalf("Layout() error = %v", err)
	}
	want := []Rect{
		{X: 0, Y: 0, Width: 500, Height: 750, Scale: 500.0 / 600},
		{X: 520, Y: 0, Width: 500, Height: 500, Scale: 500.0 / 300},
		{X: 0, Y: 770, Width: 500, Height: 500, Scale: 500.0 / 600},
	}
	if diff := cmp.Diff(want, rects, approx); diff != "" {
		t.Fatalf("layout mismatch (-want +got):\n%s", diff)
	}

	if _, err := Layout([]Size{{1, 1}}, 40, 2, 1); !errors.Is(err, ErrContainerTooNarrow) {
		t.Fatalf("Layout(narrow) error = %v", err)
	}
}

func TestCurrentPageNearestCentre(t *testing.T) {
	rects, _ := Layout([]Size{{100, 400}, {100, 400}, {100, 400}}, 200, 1, 1)
	cases := []struct {
		top, height float64
		want        int
	}{
		{0, 400, 1},
		{300, 400, 2},
		{840, 400, 3},
		{10000, 400, 3},
	}
	for _, tc := range cases {
		if got := CurrentPage(rects, tc.top, tc.height); got != tc.want {
			t.Fatalf("CurrentPage(top=%v) = %d, want %d", tc.top, got, tc.want)
		}
	}
	if got := CurrentPage(nil, 0, 100); got != 0 {
		t.Fatalf("CurrentPage(empty) = %d", got)
	}
	if y, ok := ScrollTo(rects, 2); !ok || y != 420 {
		t.Fatalf("ScrollTo(2) = %v, %v", y, ok)
	}
	if _, ok := ScrollTo(rects, 4); ok {
		t.Fatalf("ScrollTo(4) should fail")
	}
}

func TestAccumulatorCarriesFraction(t *testing.T) {
	var a accumulator
	// speed 1 = 20 px/s; 16ms ticks move 0.32 px each.
	total := 0
	for i := 0; i < 100; i++ {
		total += a.advance(16*time.Millisecond, 1, Down)
	}
	if total < 31 || total > 32 || math.Abs(float64(total)+a.frac-32) > 1e-6 {
		t.Fatalf("scrolled %d px (+%v) over 1.6s, want 32", total, a.frac)
	}
	if px := a.advance(time.Second, 3, Up); px != -59 && px != -60 {
		t.Fatalf("upward step = %d", px)
	}
}

func TestAutoScrollerToggle(t *testing.T) {
	var mu sync.Mutex
	moved := 0
	var states []bool
	a := NewAutoScroller(func(dy int) {
		mu.Lock()
		moved += dy
		mu.Unlock()
	}, WithInterval(time.Millisecond))
	a.OnState(func(running bool, _ Direction) { states = append(states, running) })
	a.SetSpeed(50)

	a.Toggle(Down)
	if running, dir := a.Running(); !running || dir != Down {
		t.Fatalf("Running() = %v, %v", running, dir)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		m := moved
		mu.Unlock()
		if m > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("scroller never moved")
		}
		time.Sleep(5 * time.Millisecond)
	}

	a.Toggle(Up)
	if running, dir := a.Running(); !running || dir != Up {
		t.Fatalf("after switching: Running() = %v, %v", running, dir)
	}
	a.Toggle(Up)
	if running, _ := a.Running(); running {
		t.Fatalf("same-direction toggle did not stop")
	}
	mu.Lock()
	stopped := moved
	mu.Unlock()
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if moved != stopped {
		t.Fatalf("scroller kept moving after Stop")
	}
	if diff := cmp.Diff([]bool{true, false, true, false}, states); diff != "" {
		t.Fatalf("state changes mismatch (-want +got):\n%s", diff)
	}
}

func TestAutoScrollerStopFromScroll(t *testing.T) {
	var a *AutoScroller
	calls := make(chan int, 16)
	a = NewAutoScroller(func(dy int) {
		calls <- dy
		a.Stop()
	}, WithInterval(time.Millisecond))
	a.SetSpeed(100)
	a.Start(Down)

	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatalf("scroller never moved")
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		if running, _ := a.Running(); !running {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Stop from the scroll function did not stop the driver")
		}
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	if n := len(calls); n != 0 {
		t.Fatalf("scroll called %d more times after Stop", n)
	}

	// The scroller can be restarted and stopped normally afterwards.
	a.Start(Up)
	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatalf("restarted scroller never moved")
	}
	a.Stop()
}
