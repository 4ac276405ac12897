// Package rendertest provides an in-memory render.Document for tests.
package rendertest

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/wudi/pdfmark/render"
)

// Page describes one fake source page in PDF points.
type Page struct {
	Width, Height float64
	Fill          color.Color
	Text          []string
	// Fail makes Render return an error for this page.
	Fail bool
}

// Document is a fake render.Document.
type Document struct {
	Pages []Page
	// Renders counts Render calls per 1-based page.
	Renders map[int]int
}

// New returns a document with n letter-sized grey pages.
func New(n int) *Document {
	d := &Document{}
	for i := 0; i < n; i++ {
		d.Pages = append(d.Pages, Page{Width: 400, Height: 600, Fill: color.Gray{Y: 200}})
	}
	return d
}

func (d *Document) NumPages() int { return len(d.Pages) }

func (d *Document) Page(_ context.Context, n int) (render.PageHandle, error) {
	if n < 1 || n > len(d.Pages) {
		return nil, fmt.Errorf("page %d: %w", n, render.ErrPageRange)
	}
	return &handle{doc: d, n: n}, nil
}

type handle struct {
	doc *Document
	n   int
}

func (h *handle) page() Page { return h.doc.Pages[h.n-1] }

func (h *handle) Viewport(scale float64, rotation int) render.Viewport {
	p := h.page()
	rotation = render.NormalizeRotation(rotation)
	w := int(math.Round(p.Width * scale))
	ht := int(math.Round(p.Height * scale))
	if rotation == 90 || rotation == 270 {
		w, ht = ht, w
	}
	return render.Viewport{Width: w, Height: ht, Scale: scale, Rotation: rotation}
}

func (h *handle) Render(ctx context.Context, vp render.Viewport) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := h.page()
	if p.Fail {
		return nil, fmt.Errorf("render page %d: corrupt content stream", h.n)
	}
	if h.doc.Renders == nil {
		h.doc.Renders = make(map[int]int)
	}
	h.doc.Renders[h.n]++
	fill := p.Fill
	if fill == nil {
		fill = color.White
	}
	img := image.NewRGBA(vp.Bounds())
	draw.Draw(img, img.Bounds(), image.NewUniform(fill), image.Point{}, draw.Src)
	return img, nil
}

func (h *handle) TextContent(context.Context) (render.TextContent, error) {
	var tc render.TextContent
	for i, s := range h.page().Text {
		tc.Items = append(tc.Items, render.TextItem{Text: s, X: 10, Y: float64(20 * (i + 1)), Width: float64(7 * len(s)), Height: 12})
	}
	return tc, nil
}
