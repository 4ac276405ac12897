package surface

import (
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"
)

// Kind discriminates annotation objects.
type Kind string

const (
	KindPath      Kind = "path"
	KindLine      Kind = "line"
	KindHighlight Kind = "highlight"
	KindText      Kind = "text"
	KindImage     Kind = "image"
)

// ID identifies an object within one surface. Zero is never assigned.
type ID int

// Point is a position in page pixels, origin top-left.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns p translated by (dx, dy).
func (p Point) Add(dx, dy float64) Point { return Point{p.X + dx, p.Y + dy} }

// Object is one annotation. Only the fields relevant to Kind are set.
type Object struct {
	ID    ID          `json:"id"`
	Kind  Kind        `json:"kind"`
	Color color.NRGBA `json:"color"`

	// Path, highlight and line geometry. Lines carry exactly two points.
	Points []Point `json:"points,omitempty"`
	Width  float64 `json:"width,omitempty"`

	// Text and image placement (top-left corner).
	Position Point `json:"position"`

	Text       string  `json:"text,omitempty"`
	FontFamily string  `json:"fontFamily,omitempty"`
	FontSize   float64 `json:"fontSize,omitempty"`
	Editing    bool    `json:"editing,omitempty"`

	// Image holds the encoded bitmap (PNG or JPEG); NaturalWidth and
	// NaturalHeight are its decoded size before Scale.
	Image         []byte  `json:"image,omitempty"`
	NaturalWidth  int     `json:"naturalWidth,omitempty"`
	NaturalHeight int     `json:"naturalHeight,omitempty"`
	Scale         float64 `json:"scale,omitempty"`
}

// Clone returns a deep copy of o.
func (o Object) Clone() Object {
	c := o
	if o.Points != nil {
		c.Points = append([]Point(nil), o.Points...)
	}
	if o.Image != nil {
		c.Image = append([]byte(nil), o.Image...)
	}
	return c
}

// Translate moves every coordinate of o by (dx, dy).
func (o *Object) Translate(dx, dy float64) {
	for i := range o.Points {
		o.Points[i] = o.Points[i].Add(dx, dy)
	}
	o.Position = o.Position.Add(dx, dy)
}

// NewPath returns a freehand stroke.
func NewPath(points []Point, c color.NRGBA, width float64) Object {
	return Object{Kind: KindPath, Points: append([]Point(nil), points...), Color: c, Width: width}
}

// NewLine returns a straight line from a to b.
func NewLine(a, b Point, c color.NRGBA, width float64) Object {
	return Object{Kind: KindLine, Points: []Point{a, b}, Color: c, Width: width}
}

// Highlighter stroke constants.
const (
	HighlightWidth = 15
	HighlightAlpha = 0.4
)

// NewHighlight returns a highlighter stroke. The width is fixed and c's
// alpha is replaced by HighlightAlpha.
func NewHighlight(points []Point, c color.NRGBA) Object {
	return Object{Kind: KindHighlight, Points: append([]Point(nil), points...), Color: WithAlpha(c, HighlightAlpha), Width: HighlightWidth}
}

// NewText returns a text box anchored at p.
func NewText(p Point, text, family string, size float64, c color.NRGBA) Object {
	return Object{Kind: KindText, Position: p, Text: text, FontFamily: family, FontSize: size, Color: c}
}

// NewImage returns an image placed at p. data must stay decodable.
func NewImage(p Point, data []byte, naturalW, naturalH int, scale float64) Object {
	return Object{Kind: KindImage, Position: p, Image: data, NaturalWidth: naturalW, NaturalHeight: naturalH, Scale: scale, Color: color.NRGBA{A: 255}}
}

// WithAlpha returns c with its alpha set to a (0..1).
func WithAlpha(c color.NRGBA, a float64) color.NRGBA {
	c.A = uint8(math.Round(math.Max(0, math.Min(1, a)) * 255))
	return c
}

// ParseColor parses "#rrggbb" or "#rgb".
func ParseColor(s string) (color.NRGBA, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) != 6 {
		return color.NRGBA{}, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}

// HexColor formats c as "#rrggbb", dropping alpha.
func HexColor(c color.NRGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
