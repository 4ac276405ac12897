package surface

import (
	"math"
	"strings"

	"github.com/wudi/pdfmark/fonts"
)

// HitTolerance is the extra distance in pixels within which a pointer
// still hits a stroke.
const HitTolerance = 3

// Rect is an axis-aligned box in page pixels.
type Rect struct {
	Min, Max Point
}

// Contains reports whether p lies inside r (edges included).
func (r Rect) Contains(p Point) bool {
	return p.X >= r.Min.X && p.X <= r.Max.X && p.Y >= r.Min.Y && p.Y <= r.Max.Y
}

// Empty reports whether r has no area.
func (r Rect) Empty() bool { return r.Max.X <= r.Min.X || r.Max.Y <= r.Min.Y }

// Bounds returns the box covered by o.
func Bounds(o Object) Rect {
	switch o.Kind {
	case KindPath, KindHighlight, KindLine:
		if len(o.Points) == 0 {
			return Rect{}
		}
		r := Rect{Min: o.Points[0], Max: o.Points[0]}
		for _, p := range o.Points[1:] {
			r.Min.X = math.Min(r.Min.X, p.X)
			r.Min.Y = math.Min(r.Min.Y, p.Y)
			r.Max.X = math.Max(r.Max.X, p.X)
			r.Max.Y = math.Max(r.Max.Y, p.Y)
		}
		h := o.Width / 2
		r.Min = r.Min.Add(-h, -h)
		r.Max = r.Max.Add(h, h)
		return r
	case KindText:
		w, h := textExtent(o)
		return Rect{Min: o.Position, Max: o.Position.Add(w, h)}
	case KindImage:
		return Rect{Min: o.Position, Max: o.Position.Add(float64(o.NaturalWidth)*o.Scale, float64(o.NaturalHeight)*o.Scale)}
	}
	return Rect{}
}

func textExtent(o Object) (float64, float64) {
	lines := strings.Split(o.Text, "\n")
	lh, err := fonts.LineHeight(o.FontFamily, o.FontSize)
	if err != nil {
		lh = o.FontSize * 1.2
	}
	var w float64
	for _, line := range lines {
		lw, err := fonts.Measure(line, o.FontFamily, o.FontSize)
		if err != nil {
			lw = float64(len([]rune(line))) * o.FontSize * 0.6
		}
		w = math.Max(w, lw)
	}
	return w, lh * float64(len(lines))
}

// HitTest returns the topmost object under p.
func (s *Surface) HitTest(p Point) (ID, bool) {
	for i := len(s.objects) - 1; i >= 0; i-- {
		if hits(*s.objects[i], p) {
			return s.objects[i].ID, true
		}
	}
	return 0, false
}

func hits(o Object, p Point) bool {
	switch o.Kind {
	case KindPath, KindHighlight, KindLine:
		limit := o.Width/2 + HitTolerance
		if len(o.Points) == 1 {
			return dist(o.Points[0], p) <= limit
		}
		for i := 1; i < len(o.Points); i++ {
			if segmentDist(o.Points[i-1], o.Points[i], p) <= limit {
				return true
			}
		}
		return false
	default:
		return Bounds(o).Contains(p)
	}
}

func dist(a, b Point) float64 { return math.Hypot(a.X-b.X, a.Y-b.Y) }

func segmentDist(a, b, p Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return dist(a, p)
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / l2
	t = math.Max(0, math.Min(1, t))
	return dist(Point{a.X + t*dx, a.Y + t*dy}, p)
}
