package surface

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"

	"github.com/wudi/pdfmark/fonts"
)

// FlattenToImage paints every object onto a transparent canvas the size of
// the surface, bottom object first.
func (s *Surface) FlattenToImage() (*image.RGBA, error) {
	if s.width <= 0 || s.height <= 0 {
		return nil, fmt.Errorf("flatten: invalid surface size %dx%d", s.width, s.height)
	}
	dst := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	r := vector.NewRasterizer(s.width, s.height)
	for _, o := range s.objects {
		if err := paint(dst, r, *o); err != nil {
			return nil, fmt.Errorf("flatten object %d (%s): %w", o.ID, o.Kind, err)
		}
	}
	return dst, nil
}

func paint(dst *image.RGBA, r *vector.Rasterizer, o Object) error {
	switch o.Kind {
	case KindPath, KindHighlight:
		fillStroke(dst, r, o.Points, o.Width, true, o.Color)
	case KindLine:
		fillStroke(dst, r, o.Points, o.Width, false, o.Color)
	case KindText:
		return paintText(dst, o)
	case KindImage:
		return paintImage(dst, o)
	default:
		return fmt.Errorf("unknown object kind %q", o.Kind)
	}
	return nil
}

// fillStroke rasterizes a polyline of the given width as one coverage
// mask, so overlapping parts of a translucent stroke blend only once.
func fillStroke(dst *image.RGBA, r *vector.Rasterizer, pts []Point, width float64, round bool, c color.NRGBA) {
	if len(pts) == 0 || width <= 0 {
		return
	}
	b := dst.Bounds()
	r.Reset(b.Dx(), b.Dy())
	r.DrawOp = xdraw.Over
	h := width / 2
	for i := 1; i < len(pts); i++ {
		a, e := pts[i-1], pts[i]
		dx, dy := e.X-a.X, e.Y-a.Y
		l := math.Hypot(dx, dy)
		if l == 0 {
			continue
		}
		nx, ny := -dy/l*h, dx/l*h
		addPolygon(r, []Point{
			{a.X + nx, a.Y + ny},
			{e.X + nx, e.Y + ny},
			{e.X - nx, e.Y - ny},
			{a.X - nx, a.Y - ny},
		})
	}
	if round || len(pts) == 1 {
		for _, p := range pts {
			addPolygon(r, circle(p, h))
		}
	}
	r.Draw(dst, b, image.NewUniform(c), image.Point{})
}

func circle(c Point, radius float64) []Point {
	n := int(math.Max(12, math.Min(64, radius*4)))
	out := make([]Point, n)
	for i := range out {
		a := 2 * math.Pi * float64(i) / float64(n)
		out[i] = Point{c.X + radius*math.Cos(a), c.Y + radius*math.Sin(a)}
	}
	return out
}

// addPolygon adds a closed polygon with a fixed winding so that
// overlapping shapes accumulate instead of cancelling.
func addPolygon(r *vector.Rasterizer, pts []Point) {
	if len(pts) < 3 {
		return
	}
	var area float64
	for i := range pts {
		j := (i + 1) % len(pts)
		area += pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
	}
	if area < 0 {
		rev := make([]Point, len(pts))
		for i, p := range pts {
			rev[len(pts)-1-i] = p
		}
		pts = rev
	}
	r.MoveTo(float32(pts[0].X), float32(pts[0].Y))
	for _, p := range pts[1:] {
		r.LineTo(float32(p.X), float32(p.Y))
	}
	r.ClosePath()
}

func paintText(dst *image.RGBA, o Object) error {
	face, err := fonts.Face(o.FontFamily, o.FontSize)
	if err != nil {
		return err
	}
	m := face.Metrics()
	d := &font.Drawer{Dst: dst, Src: image.NewUniform(o.Color), Face: face}
	for i, line := range strings.Split(o.Text, "\n") {
		d.Dot = fixed.Point26_6{
			X: fixed.Int26_6(math.Round(o.Position.X * 64)),
			Y: fixed.Int26_6(math.Round(o.Position.Y*64)) + m.Ascent + fixed.Int26_6(i)*m.Height,
		}
		d.DrawString(line)
	}
	return nil
}

func paintImage(dst *image.RGBA, o Object) error {
	src, _, err := DecodeImage(o.Image)
	if err != nil {
		return err
	}
	scale := o.Scale
	if scale <= 0 {
		scale = 1
	}
	sb := src.Bounds()
	w := int(math.Round(float64(sb.Dx()) * scale))
	h := int(math.Round(float64(sb.Dy()) * scale))
	x := int(math.Round(o.Position.X))
	y := int(math.Round(o.Position.Y))
	if w <= 0 || h <= 0 {
		return nil
	}
	xdraw.CatmullRom.Scale(dst, image.Rect(x, y, x+w, y+h), src, sb, xdraw.Over, nil)
	return nil
}
